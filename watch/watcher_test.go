package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docflow/core"
)

type eventCollector struct {
	mu     sync.Mutex
	events []IngestionEvent
}

func (c *eventCollector) submit(event IngestionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) snapshot() []IngestionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]IngestionEvent(nil), c.events...)
}

func startWatcher(t *testing.T, dir string, patterns []string) *eventCollector {
	t.Helper()
	collector := &eventCollector{}
	w, err := NewWatcher(Config{
		Path:        dir,
		Patterns:    patterns,
		SettleDelay: 50 * time.Millisecond,
	}, collector.submit)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return collector
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(Config{}, func(IngestionEvent) {})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewWatcher(Config{Path: t.TempDir()}, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewWatcher(Config{Path: t.TempDir(), Patterns: []string{"[bad"}}, func(IngestionEvent) {})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestWatcher_ReportsSettledFile(t *testing.T) {
	dir := t.TempDir()
	collector := startWatcher(t, dir, nil)

	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := collector.snapshot()[0]
	assert.Equal(t, path, event.Path)
	assert.Equal(t, "application/pdf", event.MimeType)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	collector := startWatcher(t, dir, nil)

	path := filepath.Join(dir, "growing.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.WriteString("more data\n")
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Settling collapses the write burst into one event.
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, collector.snapshot(), 1)
}

func TestWatcher_IgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()
	collector := startWatcher(t, dir, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "core.dump"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, collector.snapshot())
}

func TestWatcher_PatternFilter(t *testing.T) {
	dir := t.TempDir()
	collector := startWatcher(t, dir, []string{"*.pdf"})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manual.pdf"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "manual.pdf", filepath.Base(collector.snapshot()[0].Path))

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, collector.snapshot(), 1)
}

func TestWatcher_RemoveCancelsPending(t *testing.T) {
	dir := t.TempDir()
	collector := startWatcher(t, dir, nil)

	path := filepath.Join(dir, "transient.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, os.Remove(path))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, collector.snapshot())
}

func TestWatcher_ScansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preexisting.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	collector := startWatcher(t, dir, nil)

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, path, collector.snapshot()[0].Path)
}
