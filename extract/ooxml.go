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


package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/poiesic/docflow/core"
)

// DOCX and PPTX are zip containers of WordprocessingML / PresentationML.
// Only text runs (<w:t>, <a:t>) matter here; formatting is discarded.
// Paragraph and slide boundaries become newlines.

// extractDOCX pulls text from word/document.xml.
func extractDOCX(content []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening docx container: %w", core.ErrExtraction, err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: docx missing word/document.xml", core.ErrExtraction)
	}

	text, err := textFromOOXML(doc, "t", "p")
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:      text,
		PageCount: 1, // page breaks are render-time in docx
	}, nil
}

// extractPPTX pulls text from each ppt/slides/slideN.xml in slide order.
func extractPPTX(content []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pptx container: %w", core.ErrExtraction, err)
	}

	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: pptx has no slides", core.ErrExtraction)
	}

	// Slide file names carry their ordinal, but lexicographic order puts
	// slide10 before slide2.
	sort.Slice(slides, func(i, j int) bool {
		return slideOrdinal(slides[i].Name) < slideOrdinal(slides[j].Name)
	})

	var sb strings.Builder
	for _, slide := range slides {
		text, err := textFromOOXML(slide, "t", "p")
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return &Result{
		Text:      sb.String(),
		PageCount: len(slides),
	}, nil
}

// slideOrdinal parses N out of "ppt/slides/slideN.xml".
func slideOrdinal(name string) int {
	name = strings.TrimSuffix(name, ".xml")
	idx := strings.LastIndex(name, "slide")
	if idx < 0 {
		return 0
	}
	var n int
	fmt.Sscanf(name[idx+len("slide"):], "%d", &n)
	return n
}

// textFromOOXML streams an XML part and collects the character data of
// every element named textEl, inserting a newline at the close of every
// element named breakEl. Namespace prefixes are ignored: both w:t and
// a:t decode with Local "t".
func textFromOOXML(f *zip.File, textEl, breakEl string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %w", core.ErrExtraction, f.Name, err)
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parsing %s: %w", core.ErrExtraction, f.Name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textEl {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == textEl {
				inText = false
			}
			if t.Name.Local == breakEl {
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
