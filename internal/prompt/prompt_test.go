package prompt

import (
	"strings"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestBuildFloorExample(t *testing.T) {
	t.Parallel()

	out := Build(Scope{Kind: ScopeFloor, FloorName: "F1"}, []Row{
		{Product: "A", CurrentStock: 2, Category: "x"},
	})

	if !strings.Contains(out, "| A | 2 | ? |") {
		t.Fatalf("missing table row in:\n%s", out)
	}
	if !strings.Contains(out, `Scope: Floor "F1"`) {
		t.Fatalf("missing scope header in:\n%s", out)
	}
	if !strings.Contains(out, "### x\n") {
		t.Fatalf("missing category heading in:\n%s", out)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	scope := Scope{Kind: ScopeZone, ZoneName: "Z4", FloorName: "F2", WarehouseName: "North"}
	rows := []Row{
		{Product: "Pallet wrap", CurrentStock: 12.9, Category: "Packaging", WeeklySales: ptr(3.7)},
		{Product: "Gloves", CurrentStock: 0, Category: "Safety", Price: ptr(4.99)},
		{Product: "Tape", CurrentStock: 40, Category: "Packaging"},
	}
	first := Build(scope, rows)
	second := Build(scope, rows)
	if first != second {
		t.Fatalf("outputs differ:\n%s\n---\n%s", first, second)
	}
}

func TestBuildTruncatesAndGroups(t *testing.T) {
	t.Parallel()

	out := Build(Scope{Kind: ScopeWarehouse, WarehouseName: "North"}, []Row{
		{Product: "Pallet wrap", CurrentStock: 12.9, Category: "Packaging", WeeklySales: ptr(3.7), Price: ptr(19.99)},
		{Product: "Gloves", CurrentStock: -1.5, Category: "Safety"},
		{Product: "Tape", CurrentStock: 40, Category: "Packaging"},
		{Product: "Mystery", CurrentStock: 1},
	})

	for _, want := range []string{
		`Scope: Warehouse "North"`,
		"| Pallet wrap | 12 | 3 | 19 |",
		"| Gloves | -1 | ? | ? |",
		"| Tape | 40 | ? | ? |",
		"### Uncategorized",
		"Products: 4 in 3 categories, 52 units on hand",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}

	packaging := strings.Index(out, "### Packaging")
	safety := strings.Index(out, "### Safety")
	tape := strings.Index(out, "| Tape |")
	if !(packaging < tape && tape < safety) {
		t.Fatalf("rows should be grouped by first-seen category:\n%s", out)
	}
}

func TestBuildEscapesCells(t *testing.T) {
	t.Parallel()

	out := Build(Scope{}, []Row{{Product: "A|B", CurrentStock: 1, Category: "c"}})
	if !strings.Contains(out, `| A\|B | 1 | ? | ? |`) {
		t.Fatalf("pipe not escaped:\n%s", out)
	}
	if !strings.HasPrefix(out, "Scope: Entire warehouse\n") {
		t.Fatalf("unexpected header:\n%s", out)
	}
}

func TestScopeLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scope Scope
		want  string
	}{
		{Scope{Kind: ScopeFloor, FloorName: "F1"}, `Scope: Floor "F1"`},
		{Scope{Kind: ScopeZone, ZoneName: "Z1"}, `Scope: Zone "Z1"`},
		{Scope{Kind: ScopeZone, ZoneName: "Z1", FloorName: "F1"}, `Scope: Zone "Z1" (Floor "F1")`},
		{Scope{Kind: ScopeWarehouse}, "Scope: Entire warehouse"},
	}
	for _, tc := range cases {
		if got := ScopeLine(tc.scope); got != tc.want {
			t.Fatalf("ScopeLine(%+v) = %q want %q", tc.scope, got, tc.want)
		}
	}
}
