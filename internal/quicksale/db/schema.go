package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ktu-bizconnect/internal/models"
)

// CreateTables builds the quick-sale tables from the bun models. PostgreSQL deployments use the
// SQL migrations instead; this is for SQLite dev databases and tests.
func CreateTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.QuickSale)(nil),
		(*models.QuickSaleProduct)(nil),
		(*models.QuickSaleBid)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.QuickSaleBid)(nil), "idx_quick_sale_bids_sale_amount", []string{"sale_id", "bid_amount"}},
		{(*models.QuickSaleProduct)(nil), "idx_quick_sale_products_sale", []string{"sale_id", "position"}},
		{(*models.QuickSale)(nil), "idx_quick_sales_status_ends", []string{"status", "ends_at"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
