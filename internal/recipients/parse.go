package recipients

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// row is one raw spreadsheet line with its 1-based position in the file.
type row struct {
	line  int
	cells []string
}

// Parse turns an uploaded .xlsx or .csv file into recipient records in source
// order. The whole file is rejected on the first defective row.
func Parse(ctx context.Context, fileName string, data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}

	var (
		rows []row
		err  error
	)
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))) {
	case ".xlsx":
		rows, err = readXLSX(data)
	case ".csv":
		rows, err = readCSV(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return toRecords(ctx, rows)
}

// SupportedFormat reports whether Parse understands the file's extension.
func SupportedFormat(fileName string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

func toRecords(ctx context.Context, rows []row) ([]Record, error) {
	header := -1
	for i, r := range rows {
		if !blank(r.cells) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, ErrNoRows
	}

	index := columnIndex(rows[header].cells)
	cell := func(cells []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	var out []Record
	for _, r := range rows[header+1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(r.cells) {
			continue
		}
		rec := Record{
			Name:     cell(r.cells, ColumnName),
			Email:    cell(r.cells, ColumnEmail),
			Company:  cell(r.cells, ColumnCompany),
			JobTitle: cell(r.cells, ColumnJobTitle),
		}
		if missing := rec.missing(); len(missing) > 0 {
			return nil, &RowError{Row: r.line, Missing: missing}
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// columnIndex maps each trimmed header to its position. The first occurrence
// of a repeated header wins.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, seen := index[h]; !seen && h != "" {
			index[h] = i
		}
	}
	return index
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(data []byte) ([]row, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []row
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		// encoding/csv skips empty lines, so take the line from the reader.
		line, _ := r.FieldPos(0)
		rows = append(rows, row{line: line, cells: cells})
	}
	return rows, nil
}

func readXLSX(data []byte) ([]row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	rows := make([]row, len(cells))
	for i, c := range cells {
		rows[i] = row{line: i + 1, cells: c}
	}
	return rows, nil
}
