package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

// InventoryItem is one stocked product at a location.
type InventoryItem struct {
	Warehouse    string   `json:"warehouse"`
	Floor        string   `json:"floor,omitempty"`
	Zone         string   `json:"zone,omitempty"`
	Product      string   `json:"product"`
	Category     string   `json:"category,omitempty"`
	CurrentStock float64  `json:"currentStock"`
	Price        *float64 `json:"price,omitempty"`
	WeeklySales  *float64 `json:"weeklySales,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// InventoryFilter narrows an aggregation. Empty fields match everything.
type InventoryFilter struct {
	Warehouse string
	Floor     string
	Zone      string
	// WithSales selects the weekly_sales column; schemas without it leave
	// WeeklySales nil.
	WithSales bool
}

// InventoryTotal is a product aggregated across the matching locations.
type InventoryTotal struct {
	Product      string
	Category     string
	CurrentStock float64
	Price        *float64
	WeeklySales  *float64
}

// UpsertInventoryItems inserts or replaces items in one transaction.
func (s *Store) UpsertInventoryItems(ctx context.Context, items []InventoryItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := feed.FormatTime(time.Now())
	stmt := s.rebind(`INSERT INTO inventory_items (warehouse, floor, zone, product, category, current_stock, price, weekly_sales, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (warehouse, floor, zone, product) DO UPDATE SET
			category = excluded.category,
			current_stock = excluded.current_stock,
			price = excluded.price,
			weekly_sales = excluded.weekly_sales,
			updated_at = excluded.updated_at`)
	for _, item := range items {
		if strings.TrimSpace(item.Warehouse) == "" || strings.TrimSpace(item.Product) == "" {
			return errors.New("inventory item requires warehouse and product")
		}
		if _, err := tx.ExecContext(ctx, stmt,
			item.Warehouse, item.Floor, item.Zone, item.Product, item.Category, item.CurrentStock,
			nullFloat(item.Price), nullFloat(item.WeeklySales), now,
		); err != nil {
			return fmt.Errorf("upsert inventory %s/%s: %w", item.Warehouse, item.Product, err)
		}
	}
	return tx.Commit()
}

// AggregateInventory sums stock per product and category for the filter,
// ordered by category then product.
func (s *Store) AggregateInventory(ctx context.Context, f InventoryFilter) ([]InventoryTotal, error) {
	sales := "NULL"
	if f.WithSales {
		sales = "SUM(weekly_sales)"
	}
	var (
		where []string
		args  []any
	)
	if f.Warehouse != "" {
		where = append(where, "warehouse = ?")
		args = append(args, f.Warehouse)
	}
	if f.Floor != "" {
		where = append(where, "floor = ?")
		args = append(args, f.Floor)
	}
	if f.Zone != "" {
		where = append(where, "zone = ?")
		args = append(args, f.Zone)
	}
	query := `SELECT product, category, SUM(current_stock), MAX(price), ` + sales + ` FROM inventory_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY product, category ORDER BY category, product"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate inventory: %w", err)
	}
	defer rows.Close()

	var out []InventoryTotal
	for rows.Next() {
		var (
			t             InventoryTotal
			category      sql.NullString
			price, weekly sql.NullFloat64
		)
		if err := rows.Scan(&t.Product, &category, &t.CurrentStock, &price, &weekly); err != nil {
			return nil, err
		}
		t.Category = category.String
		t.Price = floatPtr(price)
		t.WeeklySales = floatPtr(weekly)
		out = append(out, t)
	}
	return out, rows.Err()
}
