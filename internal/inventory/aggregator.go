// Package inventory turns stored inventory into prompt rows for a scope.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

type source interface {
	columnLister
	AggregateInventory(ctx context.Context, f store.InventoryFilter) ([]store.InventoryTotal, error)
}

// Aggregator builds prompt rows from the datastore.
type Aggregator struct {
	src  source
	caps *CapabilityCache
}

// NewAggregator creates an Aggregator. A nil cache uses DefaultCapabilities.
func NewAggregator(src source, caps *CapabilityCache) *Aggregator {
	if caps == nil {
		caps = DefaultCapabilities
	}
	return &Aggregator{src: src, caps: caps}
}

// Rows returns the aggregated rows for scope. Rows without a product name are
// dropped.
func (a *Aggregator) Rows(ctx context.Context, scope prompt.Scope) ([]prompt.Row, error) {
	caps, err := a.caps.Get(ctx, a.src)
	if err != nil {
		return nil, fmt.Errorf("probe inventory schema: %w", err)
	}
	totals, err := a.src.AggregateInventory(ctx, Filter(scope, caps))
	if err != nil {
		return nil, err
	}
	rows := make([]prompt.Row, 0, len(totals))
	for _, t := range totals {
		if strings.TrimSpace(t.Product) == "" {
			continue
		}
		rows = append(rows, prompt.Row{
			Product:      t.Product,
			CurrentStock: t.CurrentStock,
			Category:     t.Category,
			Price:        t.Price,
			WeeklySales:  t.WeeklySales,
		})
	}
	return rows, nil
}

// Filter maps a prompt scope onto a datastore filter.
func Filter(scope prompt.Scope, caps Capabilities) store.InventoryFilter {
	f := store.InventoryFilter{
		Warehouse: scope.WarehouseName,
		WithSales: caps.WeeklySales,
	}
	switch scope.Kind {
	case prompt.ScopeFloor:
		f.Floor = scope.FloorName
	case prompt.ScopeZone:
		f.Floor = scope.FloorName
		f.Zone = scope.ZoneName
	}
	return f
}

// ValidScope reports whether scope names what its kind requires.
func ValidScope(scope prompt.Scope) error {
	switch scope.Kind {
	case "", prompt.ScopeWarehouse:
		return nil
	case prompt.ScopeFloor:
		if scope.FloorName == "" {
			return fmt.Errorf("floor scope requires floorName")
		}
	case prompt.ScopeZone:
		if scope.ZoneName == "" {
			return fmt.Errorf("zone scope requires zoneName")
		}
	default:
		return fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	return nil
}
