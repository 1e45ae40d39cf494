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


// Package chunk splits extracted text into bounded, overlapping spans
// for embedding.
//
// Chunking is deterministic: the same text with the same configuration
// always yields the same spans. Spans are expressed as byte offsets into
// the source text, so the original document is always reconstructible
// and every chunk can be located exactly.
package chunk

import (
	"fmt"
	"unicode/utf8"

	"github.com/poiesic/docflow/core"
)

// Default chunking configuration.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Span is one chunk as a half-open byte range [Start, End) into the
// source text.
type Span struct {
	Start int
	End   int
}

// Chunker produces overlapping spans of at most Size bytes, preferring
// to end spans at sentence or paragraph boundaries.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Size must be positive and overlap must
// be non-negative and strictly smaller than size; anything else is a
// configuration error.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative, got %d", core.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", core.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum span length in bytes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in bytes.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into spans. Guarantees:
//
//   - every span is at most Size bytes and non-empty
//   - spans cover the whole text with no gaps
//   - consecutive spans overlap by Overlap bytes, except where a span
//     would not fit or a rune boundary forces a small shift
//   - spans never split a UTF-8 rune
//
// Empty text yields no spans.
func (c *Chunker) Chunk(text string) []Span {
	if len(text) == 0 {
		return nil
	}

	boundaries := findBoundaries(text)

	var spans []Span
	pos := 0
	for pos < len(text) {
		end := pos + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			if b, ok := bestBoundary(boundaries, pos, end); ok {
				end = b
			} else {
				end = alignRune(text, end)
			}
		}
		if end <= pos {
			// Pathological input (a rune longer than size); take the
			// whole rune rather than loop forever.
			_, width := utf8.DecodeRuneInString(text[pos:])
			end = pos + width
		}

		spans = append(spans, Span{Start: pos, End: end})
		if end == len(text) {
			break
		}

		next := alignRune(text, end-c.overlap)
		if next <= pos {
			next = alignRuneForward(text, pos+1)
		}
		pos = next
	}
	return spans
}

// findBoundaries returns the byte offsets directly after each sentence
// terminator or newline. Ends of sentences make better span edges than
// arbitrary byte cuts.
func findBoundaries(text string) []int {
	var out []int
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			out = append(out, i+1)
		case '.', '!', '?':
			// Only treat as a sentence end when followed by whitespace,
			// so "5.5 psi" and "T-101.2" stay intact.
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
				out = append(out, i+1)
			}
		}
	}
	return out
}

// bestBoundary returns the largest boundary b with pos < b <= limit,
// provided it lands in the back half of the span. A boundary too close
// to the start would degenerate into tiny chunks.
func bestBoundary(boundaries []int, pos, limit int) (int, bool) {
	best := -1
	for _, b := range boundaries {
		if b > pos && b <= limit && b > best {
			best = b
		}
	}
	if best < 0 || best-pos < (limit-pos)/2 {
		return 0, false
	}
	return best, true
}

// alignRune moves an offset left to the nearest rune start.
func alignRune(text string, off int) int {
	if off <= 0 {
		return 0
	}
	if off >= len(text) {
		return len(text)
	}
	for off > 0 && !utf8.RuneStart(text[off]) {
		off--
	}
	return off
}

// alignRuneForward moves an offset right to the nearest rune start.
func alignRuneForward(text string, off int) int {
	for off < len(text) && !utf8.RuneStart(text[off]) {
		off++
	}
	return off
}
