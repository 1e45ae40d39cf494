package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/poiesic/docflow/core"
	"github.com/xuri/excelize/v2"
)

// extractXLSX flattens every sheet into tab-separated rows. Sheets map
// to pages and are also kept as structured tables for callers that want
// row access.
func extractXLSX(content []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %w", core.ErrExtraction, err)
	}
	defer f.Close()

	var (
		sb     strings.Builder
		tables []Table
	)
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %w", core.ErrExtraction, sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		tables = append(tables, Table{Name: sheet, Rows: rows})

		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return &Result{
		Text:      sb.String(),
		PageCount: len(sheets),
		Tables:    tables,
	}, nil
}
