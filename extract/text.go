package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docflow/core"
)

// extractText handles plain text and markdown files.
func extractText(content []byte) (*Result, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: file is not valid UTF-8", core.ErrExtraction)
	}
	return &Result{
		Text:      string(content),
		PageCount: 1,
	}, nil
}

// normalizeText canonicalizes line endings, strips NUL bytes some PDF
// producers leak into text streams, and collapses runs of three or more
// newlines to a paragraph break.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
