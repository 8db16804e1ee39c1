package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

// ---------------- SALES ----------------

// CreateSale inserts the sale and its products in one transaction.
func (d *DB) CreateSale(ctx context.Context, sale *models.QuickSale, products []models.QuickSaleProduct) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(sale).Exec(ctx); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if len(products) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&products).Exec(ctx); err != nil {
			return fmt.Errorf("insert products: %w", err)
		}
		return nil
	})
}

// GetSale → fetch one sale by its ID
func (d *DB) GetSale(ctx context.Context, id string) (*models.QuickSale, error) {
	var sale models.QuickSale
	err := d.Bun.NewSelect().
		Model(&sale).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, saleerrors.ErrSaleNotFound)
	}
	return &sale, nil
}

// GetProducts → products of a sale in submission order
func (d *DB) GetProducts(ctx context.Context, saleID string) ([]models.QuickSaleProduct, error) {
	products := make([]models.QuickSaleProduct, 0)
	err := d.Bun.NewSelect().
		Model(&products).
		Where("sale_id = ?", saleID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// ListSales → sale rows with bid count, highest amount and product count
func (d *DB) ListSales(ctx context.Context, filter models.ListFilter) ([]models.QuickSaleSummary, error) {
	rows := make([]models.QuickSaleSummary, 0)
	q := d.Bun.NewSelect().
		Model(&rows).
		ColumnExpr("qs.*").
		ColumnExpr("(SELECT COUNT(*) FROM quick_sale_bids AS b WHERE b.sale_id = qs.id) AS bid_count").
		ColumnExpr("(SELECT MAX(b.bid_amount) FROM quick_sale_bids AS b WHERE b.sale_id = qs.id) AS highest_amount").
		ColumnExpr("(SELECT COUNT(*) FROM quick_sale_products AS p WHERE p.sale_id = qs.id) AS product_count").
		OrderExpr("qs.created_at DESC")

	if filter.Status != nil {
		q = q.Where("qs.status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiredActive → ids of active, unfinalized sales whose end time has passed
func (d *DB) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Column("id").
		Table("quick_sales").
		Where("status = ?", models.SaleStatusActive).
		Where("finalized_at IS NULL").
		Where("ends_at <= ?", now).
		OrderExpr("ends_at ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateSale applies a partial update under the sale row lock. Finalize fields are never written here.
func (d *DB) UpdateSale(ctx context.Context, id string, req models.UpdateQuickSaleRequest, now time.Time) (*models.QuickSale, error) {
	var updated *models.QuickSale

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		sale, err := d.lockSale(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.Status != nil && *req.Status == models.SaleStatusActive && sale.IsFinalized() {
			return saleerrors.Conflict("a finalized quick sale cannot be re-activated")
		}

		applyUpdate(sale, req)

		if !sale.EndsAt.After(sale.StartsAt) {
			return saleerrors.Validation("ends_at must be after starts_at")
		}
		sale.UpdatedAt = now

		_, err = tx.NewUpdate().
			Model(sale).
			Column("title", "description", "seller_name", "seller_contact", "seller_email",
				"reserve_price", "starts_at", "ends_at", "status", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update sale: %w", err)
		}

		updated = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyUpdate(sale *models.QuickSale, req models.UpdateQuickSaleRequest) {
	if req.Title != nil {
		sale.Title = *req.Title
	}
	if req.Description != nil {
		sale.Description = *req.Description
	}
	if req.SellerName != nil {
		sale.SellerName = *req.SellerName
	}
	if req.SellerContact != nil {
		sale.SellerContact = *req.SellerContact
	}
	if req.SellerEmail != nil {
		sale.SellerEmail = *req.SellerEmail
	}
	if req.ClearReserve {
		sale.ReservePrice = nil
	} else if req.ReservePrice != nil {
		reserve := *req.ReservePrice
		sale.ReservePrice = &reserve
	}
	if req.StartsAt != nil {
		sale.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		sale.EndsAt = req.EndsAt.UTC()
	}
	if req.Status != nil {
		sale.Status = *req.Status
	}
}

// DeleteSale → remove a sale with its bids and products
func (d *DB) DeleteSale(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := d.lockSale(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.QuickSaleBid)(nil)).Where("sale_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete bids: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.QuickSaleProduct)(nil)).Where("sale_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.QuickSale)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		return nil
	})
}

// lockSale reads the sale row inside tx. On PostgreSQL the row is held with FOR UPDATE until the
// transaction ends; SQLite serialises writers on its own.
func (d *DB) lockSale(ctx context.Context, tx bun.Tx, id string) (*models.QuickSale, error) {
	var sale models.QuickSale
	q := tx.NewSelect().
		Model(&sale).
		Where("id = ?", id).
		Limit(1)
	if d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err, saleerrors.ErrSaleNotFound)
	}
	return &sale, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
