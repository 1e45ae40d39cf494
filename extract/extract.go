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


// Package extract turns supported document formats into plain text.
//
// Supported formats: PDF, DOCX, XLSX, PPTX and plain text/markdown.
// Each extractor produces a Result whose Text field is the canonical
// input for the downstream classification, entity and chunking stages.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/docflow/core"
)

// Result is the output of text extraction.
type Result struct {
	// Text is the extracted plain text. Page and section breaks are
	// collapsed to newlines.
	Text string

	// PageCount is the page, sheet or slide count where the format has
	// one; 1 for flat text files.
	PageCount int

	// Tables holds tabular content recovered from spreadsheet sheets.
	// The rows are also flattened into Text.
	Tables []Table
}

// Table is one recovered table with its origin label.
type Table struct {
	Name string
	Rows [][]string
}

// mime types for the supported formats.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeText = "text/plain"
	MimeMD   = "text/markdown"
)

// MimeTypeForFilename maps a filename extension to the mime type used
// throughout the pipeline. Unknown extensions return an empty string.
func MimeTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".xlsx":
		return MimeXLSX
	case ".pptx":
		return MimePPTX
	case ".txt":
		return MimeText
	case ".md":
		return MimeMD
	}
	return ""
}

// Supported reports whether the mime type has an extractor.
func Supported(mimeType string) bool {
	switch mimeType {
	case MimePDF, MimeDOCX, MimeXLSX, MimePPTX, MimeText, MimeMD:
		return true
	}
	return false
}

// Extractor dispatches file content to the format-specific extraction
// routine. Safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		logger: slog.Default().With("component", "extractor"),
	}
}

// Extract produces plain text from file content of the given mime type.
// Unsupported mime types fail with core.ErrUnsupportedFormat; corrupt or
// unreadable content fails with core.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, content []byte, mimeType string) (*Result, error) {
	var (
		result *Result
		err    error
	)
	switch mimeType {
	case MimePDF:
		result, err = extractPDF(ctx, content)
	case MimeDOCX:
		result, err = extractDOCX(content)
	case MimePPTX:
		result, err = extractPPTX(content)
	case MimeXLSX:
		result, err = extractXLSX(content)
	case MimeText, MimeMD:
		result, err = extractText(content)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		e.logger.Error("extraction failed", "mimeType", mimeType, "err", err)
		return nil, err
	}

	result.Text = normalizeText(result.Text)
	e.logger.Debug("extracted text",
		"mimeType", mimeType,
		"pages", result.PageCount,
		"chars", len(result.Text))
	return result, nil
}
