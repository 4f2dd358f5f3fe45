package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser parses bank exports saved as Excel workbooks.
type XLSXParser struct{}

// Format returns the parser name.
func (p *XLSXParser) Format() string { return "xlsx" }

// Parse reads the first sheet of a workbook.
func (p *XLSXParser) Parse(r io.Reader) ([]ParsedRow, error) {
	return ParseXLSX(r)
}

// ParseXLSX reads the first sheet of a workbook laid out like the CSV export.
// Blank rows are skipped.
func ParseXLSX(r io.Reader) ([]ParsedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	// Raw values keep amounts free of display formatting such as thousands separators.
	sheetRows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(sheetRows) == 0 {
		return nil, nil
	}

	cols, err := indexColumns(sheetRows[0])
	if err != nil {
		return nil, err
	}

	var rows []ParsedRow
	for _, rec := range sheetRows[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, buildRow(len(rows)+1, cols, rec))
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
