// Package slotmap derives the human reading-order numbering of parking slots
// from their raw map coordinates. Coordinates are never modified; the mapping
// is a presentation concern only.
package slotmap

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"lotplayback/internal/analytics"
)

// Mapping is an immutable backend slot id -> display number table.
type Mapping struct {
	display map[analytics.SlotID]int
}

// Build groups slots into rows and numbers them from layout.
//
// Rows are formed greedily in input order: each slot not yet placed anchors a
// new row that takes every unplaced slot whose y is within RowTolerance of the
// anchor's y. Each row is ordered by x, and rows are ordered by the y of their
// leftmost slot. Slots past the table's rows or columns stay unmapped.
func Build(slots []analytics.Slot, layout Layout) Mapping {
	m := Mapping{display: make(map[analytics.SlotID]int, len(slots))}
	if len(slots) == 0 {
		return m
	}

	rows := groupRows(slots, layout.RowTolerance)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][0].Y < rows[j][0].Y
	})

	for r, row := range rows {
		if r >= len(layout.Positions) {
			break
		}
		positions := layout.Positions[r]
		for c, slot := range row {
			if c >= len(positions) {
				break
			}
			m.display[slot.SlotID] = positions[c]
		}
	}
	return m
}

func groupRows(slots []analytics.Slot, tolerance float64) [][]analytics.Slot {
	placed := make(map[analytics.SlotID]bool, len(slots))
	var rows [][]analytics.Slot

	for _, anchor := range slots {
		if placed[anchor.SlotID] {
			continue
		}
		var row []analytics.Slot
		for _, s := range slots {
			if !placed[s.SlotID] && math.Abs(s.Y-anchor.Y) <= tolerance {
				row = append(row, s)
			}
		}
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		for _, s := range row {
			placed[s.SlotID] = true
		}
		rows = append(rows, row)
	}
	return rows
}

// Len returns the number of mapped slots.
func (m Mapping) Len() int {
	return len(m.display)
}

// Lookup returns the display number for id, if mapped.
func (m Mapping) Lookup(id analytics.SlotID) (int, bool) {
	n, ok := m.display[id]
	return n, ok
}

// DisplayID returns the display number of id, or id itself when unmapped.
func (m Mapping) DisplayID(id analytics.SlotID) analytics.SlotID {
	if n, ok := m.display[id]; ok {
		return analytics.SlotID(strconv.Itoa(n))
	}
	return id
}

// Reverse returns display number -> backend slot id.
func (m Mapping) Reverse() map[int]analytics.SlotID {
	out := make(map[int]analytics.SlotID, len(m.display))
	for id, n := range m.display {
		out[n] = id
	}
	return out
}

// Once holds the session's mapping: computed from the first non-empty frame
// offered to Ensure and never recomputed.
type Once struct {
	layout Layout

	mu      sync.RWMutex
	mapping Mapping
	built   bool
}

// NewOnce returns an empty holder that will build with layout.
func NewOnce(layout Layout) *Once {
	return &Once{layout: layout}
}

// Ensure builds the mapping from frame if it has not been built yet and frame
// is non-empty. It reports whether this call built it.
func (o *Once) Ensure(frame analytics.Frame) bool {
	if len(frame) == 0 {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.built {
		return false
	}
	o.mapping = Build(frame, o.layout)
	o.built = true
	return true
}

// Mapping returns the built mapping; before Ensure succeeds it is empty and
// every lookup falls back to the raw id.
func (o *Once) Mapping() (Mapping, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mapping, o.built
}

// DisplayID is Mapping().DisplayID(id).
func (o *Once) DisplayID(id analytics.SlotID) analytics.SlotID {
	m, _ := o.Mapping()
	return m.DisplayID(id)
}
