// Package tabular reads and writes a header-addressed sheet of text cells.
package tabular

import (
	"context"
	"strings"
)

// Table is a grid of text cells. Row 0 is the header. Row and column indexes are 0-based.
type Table interface {
	// Values returns every populated row, header included. Short rows are not padded.
	Values(ctx context.Context) ([][]string, error)
	// Append adds rows after the last populated row.
	Append(ctx context.Context, rows [][]string) error
	// WriteColumn replaces column col from the header row down with values.
	WriteColumn(ctx context.Context, col int, values []string) error
	// UpdateCell replaces a single cell.
	UpdateCell(ctx context.Context, row, col int, value string) error
}

// ColumnIndex returns the position of name in header, or -1.
func ColumnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// FindRow returns the index of the first data row whose column equals value after
// trimming, or -1 when the column or the row is missing.
func FindRow(values [][]string, column, value string) int {
	if len(values) == 0 {
		return -1
	}
	col := ColumnIndex(values[0], column)
	if col < 0 {
		return -1
	}
	for i := 1; i < len(values); i++ {
		if col < len(values[i]) && strings.TrimSpace(values[i][col]) == value {
			return i
		}
	}
	return -1
}

// ColumnLetter converts a 0-based column index to A1 letters (0 -> A, 26 -> AA).
func ColumnLetter(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}
