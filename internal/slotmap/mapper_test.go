package slotmap

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lotplayback/internal/analytics"
)

var wantTable = [][]int{
	{1, 4, 13, 16},
	{2, 5, 14, 17},
	{3, 6, 15, 18},
	{7, 10, 19, 22},
	{8, 11, 20, 23},
	{9, 12, 21, 24},
}

// gridSlots lays out rows x cols slots with ids "r<row>c<col>". Each row's y
// wobbles by up to 3px so grouping has to use the tolerance.
func gridSlots(rows, cols int) []analytics.Slot {
	var out []analytics.Slot
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, analytics.Slot{
				SlotID: analytics.SlotID(fmt.Sprintf("r%dc%d", r, c)),
				X:      float64(200 + c*180),
				Y:      float64(150+r*120) + float64(c%4),
			})
		}
	}
	return out
}

func TestBuild_reproduces_lot_table(t *testing.T) {
	slots := gridSlots(6, 4)
	rand.New(rand.NewSource(7)).Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	m := Build(slots, DefaultLayout())
	if m.Len() != 24 {
		t.Fatalf("expected 24 mapped slots, got %d", m.Len())
	}
	for r, row := range wantTable {
		for c, want := range row {
			id := analytics.SlotID(fmt.Sprintf("r%dc%d", r, c))
			got, ok := m.Lookup(id)
			if !ok || got != want {
				t.Errorf("slot %s: got %d (ok=%v), want %d", id, got, ok, want)
			}
		}
	}
}

func TestBuild_numeric_backend_ids(t *testing.T) {
	// Backend numbers slots column-major; the display table is unrelated.
	var slots []analytics.Slot
	id := 1
	for c := 0; c < 4; c++ {
		for r := 0; r < 6; r++ {
			slots = append(slots, analytics.Slot{
				SlotID: analytics.SlotID(fmt.Sprint(id)),
				X:      float64(100 + c*50),
				Y:      float64(100 + r*40),
			})
			id++
		}
	}
	m := Build(slots, DefaultLayout())

	// Backend slot 7 is row 0, column 1.
	if got := m.DisplayID("7"); got != "4" {
		t.Errorf("DisplayID(7): got %s, want 4", got)
	}
	// Backend slot 24 is row 5, column 3.
	if got := m.DisplayID("24"); got != "24" {
		t.Errorf("DisplayID(24): got %s, want 24", got)
	}
}

func TestMapping_DisplayID_identity_fallback(t *testing.T) {
	m := Build(gridSlots(6, 4), DefaultLayout())
	if got := m.DisplayID("not-a-slot"); got != "not-a-slot" {
		t.Errorf("unmapped id should be returned unchanged, got %s", got)
	}

	var zero Mapping
	if got := zero.DisplayID("42"); got != "42" {
		t.Errorf("zero Mapping should fall back to raw id, got %s", got)
	}
}

func TestBuild_overflow_stays_unmapped(t *testing.T) {
	slots := gridSlots(7, 5)
	m := Build(slots, DefaultLayout())

	if m.Len() != 24 {
		t.Errorf("expected only 24 mapped, got %d", m.Len())
	}
	if _, ok := m.Lookup("r6c0"); ok {
		t.Error("seventh row should not be mapped")
	}
	if _, ok := m.Lookup("r0c4"); ok {
		t.Error("fifth column should not be mapped")
	}
	if got := m.DisplayID("r6c0"); got != "r6c0" {
		t.Errorf("overflow slot should keep raw id, got %s", got)
	}
}

func TestBuild_rows_use_anchor_tolerance(t *testing.T) {
	// b is within 5px of a, c is within 5px of b but 8px from a: c starts a new row.
	slots := []analytics.Slot{
		{SlotID: "a", X: 10, Y: 100},
		{SlotID: "b", X: 20, Y: 104},
		{SlotID: "c", X: 30, Y: 108},
	}
	layout := Layout{RowTolerance: 5, Positions: [][]int{{1, 2, 3}, {4, 5, 6}}}
	m := Build(slots, layout)

	want := map[analytics.SlotID]int{"a": 1, "b": 2, "c": 4}
	for id, n := range want {
		if got, _ := m.Lookup(id); got != n {
			t.Errorf("slot %s: got %d want %d", id, got, n)
		}
	}
}

func TestBuild_empty(t *testing.T) {
	m := Build(nil, DefaultLayout())
	if m.Len() != 0 {
		t.Errorf("expected empty mapping, got %d", m.Len())
	}
}

func TestMapping_Reverse(t *testing.T) {
	m := Build(gridSlots(6, 4), DefaultLayout())
	rev := m.Reverse()
	if len(rev) != 24 {
		t.Fatalf("expected 24 reverse entries, got %d", len(rev))
	}
	if rev[13] != "r0c2" {
		t.Errorf("reverse[13]: got %s, want r0c2", rev[13])
	}
	for display, backend := range rev {
		if got, _ := m.Lookup(backend); got != display {
			t.Errorf("reverse not inverse for %s", backend)
		}
	}
}

func TestOnce_builds_only_from_first_non_empty_frame(t *testing.T) {
	o := NewOnce(DefaultLayout())

	if o.Ensure(nil) {
		t.Error("empty frame should not build")
	}
	if _, built := o.Mapping(); built {
		t.Fatal("mapping should not be built yet")
	}
	if got := o.DisplayID("r0c1"); got != "r0c1" {
		t.Errorf("before build lookups fall back, got %s", got)
	}

	if !o.Ensure(gridSlots(6, 4)) {
		t.Fatal("first non-empty frame should build")
	}
	if got := o.DisplayID("r0c1"); got != "4" {
		t.Errorf("DisplayID after build: got %s", got)
	}

	// A later frame with different geometry is ignored.
	moved := gridSlots(6, 4)
	moved[0].X, moved[1].X = moved[1].X, moved[0].X
	if o.Ensure(moved) {
		t.Error("second Ensure should not rebuild")
	}
	if got := o.DisplayID("r0c1"); got != "4" {
		t.Errorf("mapping changed after rebuild attempt: got %s", got)
	}
}

func TestLayout_Validate(t *testing.T) {
	cases := []struct {
		name   string
		layout Layout
		errSub string
	}{
		{"default_ok", DefaultLayout(), ""},
		{"no_rows", Layout{}, "at least one row"},
		{"empty_row", Layout{Positions: [][]int{{1}, {}}}, "row 1 is empty"},
		{"non_positive", Layout{Positions: [][]int{{0}}}, "must be positive"},
		{"duplicate", Layout{Positions: [][]int{{1, 2}, {2, 3}}}, "more than once"},
		{"negative_tolerance", Layout{RowTolerance: -1, Positions: [][]int{{1}}}, "row_tolerance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.layout.Validate()
			if tc.errSub == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errSub) {
				t.Errorf("expected error containing %q, got %v", tc.errSub, err)
			}
		})
	}
}

func TestLoadLayout(t *testing.T) {
	t.Run("empty_path_is_default", func(t *testing.T) {
		l, err := LoadLayout("")
		if err != nil {
			t.Fatal(err)
		}
		if l.Capacity() != 24 || l.RowTolerance != DefaultRowTolerance {
			t.Errorf("unexpected default layout: %+v", l)
		}
	})

	t.Run("yaml_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "layout.yaml")
		content := "positions:\n  - [1, 3]\n  - [2, 4]\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		l, err := LoadLayout(path)
		if err != nil {
			t.Fatalf("LoadLayout: %v", err)
		}
		if l.RowTolerance != DefaultRowTolerance {
			t.Errorf("tolerance should default, got %v", l.RowTolerance)
		}
		if l.Capacity() != 4 || l.Positions[1][0] != 2 {
			t.Errorf("positions: got %v", l.Positions)
		}
	})

	t.Run("invalid_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "layout.yaml")
		if err := os.WriteFile(path, []byte("row_tolerance: 2\npositions: []\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadLayout(path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadLayout(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected read error")
		}
	})
}
