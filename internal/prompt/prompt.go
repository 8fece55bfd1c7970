// Package prompt renders inventory rows into the advisor request text.
package prompt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScopeKind selects which part of the warehouse a request covers.
type ScopeKind string

const (
	ScopeWarehouse ScopeKind = "warehouse"
	ScopeFloor     ScopeKind = "floor"
	ScopeZone      ScopeKind = "zone"
)

// Scope describes the warehouse context of a request.
type Scope struct {
	Kind          ScopeKind `json:"kind"`
	WarehouseName string    `json:"warehouseName,omitempty"`
	FloorName     string    `json:"floorName,omitempty"`
	ZoneName      string    `json:"zoneName,omitempty"`
}

// Row is one aggregated inventory line.
type Row struct {
	Product      string   `json:"product"`
	CurrentStock float64  `json:"currentStock"`
	Category     string   `json:"category"`
	Price        *float64 `json:"price,omitempty"`
	WeeklySales  *float64 `json:"weeklySales,omitempty"`
}

const uncategorized = "Uncategorized"

var cellReplacer = strings.NewReplacer("|", `\|`, "\r", " ", "\n", " ")

// SystemMessage is the fixed system instruction sent with every request.
const SystemMessage = "You are an inventory planning assistant for warehouse operators. " +
	"Answer in concise markdown and only use the figures provided."

// Build renders rows for scope. The output depends only on its arguments.
func Build(scope Scope, rows []Row) string {
	var b strings.Builder

	b.WriteString(ScopeLine(scope))
	b.WriteByte('\n')
	if scope.WarehouseName != "" && scope.Kind != ScopeWarehouse && scope.Kind != "" {
		fmt.Fprintf(&b, "Warehouse: %q\n", scope.WarehouseName)
	}

	order, groups := groupByCategory(rows)
	var units int64
	for _, r := range rows {
		units += truncate(r.CurrentStock)
	}
	fmt.Fprintf(&b, "Products: %d in %d categories, %d units on hand\n\n", len(rows), len(order), units)

	b.WriteString("## Inventory\n")
	if len(rows) == 0 {
		b.WriteString("\nNo inventory rows matched this scope.\n")
	}
	for _, category := range order {
		fmt.Fprintf(&b, "\n### %s\n\n", cell(category))
		b.WriteString("| Product | Current Stock | Weekly Sales | Price |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, r := range groups[category] {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(r.Product),
				strconv.FormatInt(truncate(r.CurrentStock), 10),
				optional(r.WeeklySales),
				optional(r.Price),
			)
		}
	}

	b.WriteString("\n## Instructions\n\n")
	b.WriteString("1. Flag products whose current stock covers less than two weeks of sales.\n")
	b.WriteString("2. Flag products with stock but no recorded sales as possible dead stock.\n")
	b.WriteString("3. Suggest reorder quantities for flagged products, grouped by category.\n")
	b.WriteString("4. Treat `?` as unknown; never invent missing figures.\n")

	b.WriteString("\n## Response format\n\n")
	b.WriteString("- Start with a one-paragraph summary of the scope.\n")
	b.WriteString("- Follow with a table: Product | Issue | Suggested action.\n")
	b.WriteString("- End with at most three prioritized next steps.\n")

	return b.String()
}

// ScopeLine renders the header line describing scope.
func ScopeLine(scope Scope) string {
	switch scope.Kind {
	case ScopeFloor:
		return fmt.Sprintf("Scope: Floor %q", scope.FloorName)
	case ScopeZone:
		if scope.FloorName != "" {
			return fmt.Sprintf("Scope: Zone %q (Floor %q)", scope.ZoneName, scope.FloorName)
		}
		return fmt.Sprintf("Scope: Zone %q", scope.ZoneName)
	default:
		if scope.WarehouseName != "" {
			return fmt.Sprintf("Scope: Warehouse %q", scope.WarehouseName)
		}
		return "Scope: Entire warehouse"
	}
}

func groupByCategory(rows []Row) ([]string, map[string][]Row) {
	var order []string
	groups := make(map[string][]Row)
	for _, r := range rows {
		category := strings.TrimSpace(r.Category)
		if category == "" {
			category = uncategorized
		}
		if _, seen := groups[category]; !seen {
			order = append(order, category)
		}
		groups[category] = append(groups[category], r)
	}
	return order, groups
}

// truncate drops the fractional part; non-finite values count as zero.
func truncate(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Trunc(v))
}

func optional(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return "?"
	}
	return strconv.FormatInt(truncate(*v), 10)
}

func cell(s string) string {
	return cellReplacer.Replace(strings.TrimSpace(s))
}
