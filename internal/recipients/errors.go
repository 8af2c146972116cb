package recipients

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoFile            = errors.New("no spreadsheet provided")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format: upload .xlsx or .csv")
	ErrUnreadable        = errors.New("spreadsheet could not be read")
	ErrNoRows            = errors.New("spreadsheet has no recipient rows")
	ErrTooLarge          = errors.New("spreadsheet exceeds the size limit")
	ErrInvalidRow        = errors.New("spreadsheet row is missing required fields")
)

// RowError reports the first row that failed validation. Row is the 1-based
// line in the original file, so the first data row under the header is 2.
type RowError struct {
	Row     int
	Missing []string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d is missing %s", e.Row, strings.Join(e.Missing, ", "))
}

func (e *RowError) Unwrap() error { return ErrInvalidRow }
