// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package watch observes an ingestion folder and reports files that are
// ready to process.
//
// Writers rarely produce a file in one atomic operation, so each
// Create/Write event arms a per-path settle timer; only when writes stop
// for the settle delay is the file reported. A Remove or Rename before
// the timer fires cancels the pending report. Files already in the
// folder are reported on start.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/extract"
)

// DefaultSettleDelay is how long a file must stay quiet before it is
// reported.
const DefaultSettleDelay = 2 * time.Second

// IngestionEvent identifies a file ready for processing.
type IngestionEvent struct {
	Path     string
	MimeType string
}

// SubmitFunc receives ingestion events. It is called from the watcher's
// goroutine and should hand work off quickly.
type SubmitFunc func(event IngestionEvent)

// Config describes one watched folder.
type Config struct {
	// Path is the folder to watch.
	Path string

	// Patterns are glob patterns matched against file base names.
	// Empty means "any file with a supported extension".
	Patterns []string

	// SettleDelay is how long writes must be quiet before a file is
	// reported. Zero means DefaultSettleDelay.
	SettleDelay time.Duration
}

// Watcher reports settled files in a folder.
type Watcher struct {
	config Config
	submit SubmitFunc
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWatcher creates a watcher for the configured folder. Call Start to
// begin watching.
func NewWatcher(config Config, submit SubmitFunc, opts ...Option) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("%w: watch path is empty", core.ErrConfiguration)
	}
	if submit == nil {
		return nil, fmt.Errorf("%w: submit callback is nil", core.ErrConfiguration)
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	for _, pattern := range config.Patterns {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", core.ErrConfiguration, pattern, err)
		}
	}

	w := &Watcher{
		config:  config,
		submit:  submit,
		logger:  slog.Default().With("component", "watcher"),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Start begins watching. Files already present in the folder are
// scheduled as if they had just been written.
func (w *Watcher) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(w.config.Path); err != nil {
		fs.Close()
		return err
	}
	w.fs = fs

	if err := w.scanExisting(); err != nil {
		fs.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watching folder", "path", w.config.Path, "settleDelay", w.config.SettleDelay)
	return nil
}

// Stop cancels pending reports and stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.config.Path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Path, entry.Name())
		if w.matches(path) {
			w.schedule(path)
		}
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "path", w.config.Path, "err", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		if w.matches(event.Name) {
			w.schedule(event.Name)
		}
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// matches reports whether a path is a candidate for ingestion.
func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.config.Patterns) == 0 {
		return extract.MimeTypeForFilename(path) != ""
	}
	for _, pattern := range w.config.Patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// schedule arms (or re-arms) the settle timer for a path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.config.SettleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.config.SettleDelay, func() {
		w.fire(path)
	})
}

// cancel drops a pending report for a path.
func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

// fire reports a settled file.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	// The file may have vanished while settling.
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.submit(IngestionEvent{
		Path:     path,
		MimeType: extract.MimeTypeForFilename(path),
	})
}
