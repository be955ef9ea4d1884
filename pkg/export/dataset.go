package export

import (
	"errors"
	"time"
)

var errNoColumns = errors.New("dataset has no columns")

// Column is one table column. Weight sets its share of the PDF page width; zero counts as 1.
type Column struct {
	Title  string
	Weight float64
}

// Dataset is a positional table. Rows shorter than Columns are padded with empty cells.
type Dataset struct {
	Title       string
	GeneratedAt time.Time
	Columns     []Column
	Rows        [][]string
}

// Titles returns the column headers in order.
func (d Dataset) Titles() []string {
	titles := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		titles[i] = col.Title
	}
	return titles
}

func (d Dataset) cells(row []string) []string {
	out := make([]string, len(d.Columns))
	copy(out, row)
	return out
}

func (d Dataset) widths(total float64) []float64 {
	var sum float64
	for _, col := range d.Columns {
		sum += weight(col)
	}
	widths := make([]float64, len(d.Columns))
	for i, col := range d.Columns {
		widths[i] = total * weight(col) / sum
	}
	return widths
}

func weight(col Column) float64 {
	if col.Weight <= 0 {
		return 1
	}
	return col.Weight
}
