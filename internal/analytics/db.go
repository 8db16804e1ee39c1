package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ktu-bizconnect/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

type StatusCount struct {
	Status models.SaleStatus `bun:"status"`
	Count  int               `bun:"count"`
}

type OutcomeCount struct {
	Outcome models.FinalizeOutcome `bun:"finalize_outcome"`
	Count   int                    `bun:"count"`
}

// BidPoint is one bid reduced to what the aggregations need.
type BidPoint struct {
	SaleID        string       `bun:"sale_id"`
	BidAmount     models.Money `bun:"bid_amount"`
	ContactNumber string       `bun:"contact_number"`
	CreatedAt     time.Time    `bun:"created_at"`
}

type ClosedSale struct {
	FinalizedAt time.Time     `bun:"finalized_at"`
	Amount      *models.Money `bun:"amount"`
}

// CountSalesByStatus groups every sale by its status
func (db *DB) CountSalesByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := db.bun.NewSelect().
		Model((*models.QuickSale)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	return rows, err
}

// CountOutcomes groups finalized sales by outcome
func (db *DB) CountOutcomes(ctx context.Context) ([]OutcomeCount, error) {
	var rows []OutcomeCount
	err := db.bun.NewSelect().
		Model((*models.QuickSale)(nil)).
		Column("finalize_outcome").
		ColumnExpr("COUNT(*) AS count").
		Where("finalized_at IS NOT NULL").
		Group("finalize_outcome").
		Scan(ctx, &rows)
	return rows, err
}

// CountBids returns the total number of bids and of distinct bidder contacts
func (db *DB) CountBids(ctx context.Context) (total, bidders int, err error) {
	err = db.bun.NewSelect().
		Model((*models.QuickSaleBid)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COUNT(DISTINCT contact_number)").
		Scan(ctx, &total, &bidders)
	return total, bidders, err
}

// SoldValue sums the winning bids of every sale that closed with a winner
func (db *DB) SoldValue(ctx context.Context) (models.Money, error) {
	var sum int64
	err := db.bun.NewRaw(`
		SELECT COALESCE(SUM(b.bid_amount), 0)
		FROM quick_sales s
		JOIN quick_sale_bids b ON b.id = s.winning_bid_id
		WHERE s.finalized_at IS NOT NULL`).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum winning bids: %w", err)
	}
	return models.Money(sum), nil
}

// SalesCreatedSince returns creation times of sales created at or after since
func (db *DB) SalesCreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := db.bun.NewSelect().
		Model((*models.QuickSale)(nil)).
		Column("created_at").
		Where("created_at >= ?", since).
		Scan(ctx, &times)
	return times, err
}

// BidsSince returns every bid placed at or after since
func (db *DB) BidsSince(ctx context.Context, since time.Time) ([]BidPoint, error) {
	var bids []BidPoint
	err := db.bun.NewSelect().
		Model((*models.QuickSaleBid)(nil)).
		Column("sale_id", "bid_amount", "contact_number", "created_at").
		Where("created_at >= ?", since).
		OrderExpr("created_at ASC").
		Scan(ctx, &bids)
	return bids, err
}

// SalesClosedSince returns sales finalized at or after since with their winning amount, if any
func (db *DB) SalesClosedSince(ctx context.Context, since time.Time) ([]ClosedSale, error) {
	var rows []ClosedSale
	err := db.bun.NewSelect().
		TableExpr("quick_sales AS s").
		ColumnExpr("s.finalized_at AS finalized_at").
		ColumnExpr("b.bid_amount AS amount").
		Join("LEFT JOIN quick_sale_bids AS b ON b.id = s.winning_bid_id").
		Where("s.finalized_at >= ?", since).
		Scan(ctx, &rows)
	return rows, err
}

// SaleBids returns the bids of one sale in the order they were placed
func (db *DB) SaleBids(ctx context.Context, saleID string) ([]BidPoint, error) {
	var bids []BidPoint
	err := db.bun.NewSelect().
		Model((*models.QuickSaleBid)(nil)).
		Column("sale_id", "bid_amount", "contact_number", "created_at").
		Where("sale_id = ?", saleID).
		OrderExpr("created_at ASC, bid_amount ASC").
		Scan(ctx, &bids)
	return bids, err
}

// SaleExists reports whether a sale with id is stored
func (db *DB) SaleExists(ctx context.Context, id string) (bool, error) {
	return db.bun.NewSelect().
		Model((*models.QuickSale)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}
