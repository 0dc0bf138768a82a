package slotmap

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRowTolerance is the vertical distance, in map pixels, within which
// two slots are considered to be on the same row. It is tied to the fixed
// 1551x1171 lot image and is not scaled.
const DefaultRowTolerance = 5.0

// Layout is the target numbering table: Positions[row][col] is the display
// number given to the col-th slot (left to right) of the row-th row (top to
// bottom).
type Layout struct {
	RowTolerance float64 `yaml:"row_tolerance"`
	Positions    [][]int `yaml:"positions"`
}

// DefaultLayout returns the 24-slot lot numbering. The left and right halves
// of each block of three rows are numbered as separate contiguous runs:
//
//	1  4    13  16
//	2  5    14  17
//	3  6    15  18
//	7  10   19  22
//	8  11   20  23
//	9  12   21  24
func DefaultLayout() Layout {
	return Layout{
		RowTolerance: DefaultRowTolerance,
		Positions: [][]int{
			{1, 4, 13, 16},
			{2, 5, 14, 17},
			{3, 6, 15, 18},
			{7, 10, 19, 22},
			{8, 11, 20, 23},
			{9, 12, 21, 24},
		},
	}
}

// Capacity returns the number of display positions in the table.
func (l Layout) Capacity() int {
	n := 0
	for _, row := range l.Positions {
		n += len(row)
	}
	return n
}

// Validate checks that the table is usable: at least one non-empty row,
// positive display numbers, no number used twice and a non-negative
// tolerance.
func (l Layout) Validate() error {
	if l.RowTolerance < 0 {
		return fmt.Errorf("row_tolerance must be >= 0, got %v", l.RowTolerance)
	}
	if len(l.Positions) == 0 {
		return errors.New("layout must define at least one row")
	}
	seen := make(map[int]struct{}, l.Capacity())
	for r, row := range l.Positions {
		if len(row) == 0 {
			return fmt.Errorf("layout row %d is empty", r)
		}
		for c, n := range row {
			if n <= 0 {
				return fmt.Errorf("layout position [%d][%d] must be positive, got %d", r, c, n)
			}
			if _, dup := seen[n]; dup {
				return fmt.Errorf("layout display number %d used more than once", n)
			}
			seen[n] = struct{}{}
		}
	}
	return nil
}

// LoadLayout reads a YAML layout file. An empty path yields DefaultLayout.
// A file that omits row_tolerance gets DefaultRowTolerance.
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}

	layout := Layout{RowTolerance: DefaultRowTolerance}
	if err := yaml.Unmarshal(content, &layout); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, fmt.Errorf("invalid layout %s: %w", path, err)
	}
	return layout, nil
}
