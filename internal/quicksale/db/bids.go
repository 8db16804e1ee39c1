package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
)

// ---------------- BIDS ----------------

// PlaceBid records bid if it still clears the highest bid once the sale row is locked.
//
// observed is the highest amount the caller saw before the transaction (nil when it saw no bids).
// A bid that loses only because another bid landed after that observation fails with ErrOutbid;
// a bid that was already too low fails with ErrBidTooLow.
func (d *DB) PlaceBid(ctx context.Context, bid *models.QuickSaleBid, observed *models.Money, now time.Time) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		sale, err := d.lockSale(ctx, tx, bid.SaleID)
		if err != nil {
			return err
		}

		if err := CheckBiddable(sale, now); err != nil {
			return err
		}

		highest, err := highestBid(ctx, tx, sale.ID)
		if err != nil {
			return fmt.Errorf("read highest bid: %w", err)
		}

		if err := checkAmount(bid.BidAmount, highest, observed, sale.ReservePrice); err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		return nil
	})
}

// CheckBiddable returns the conflict that stops sale from taking a bid at now, if any.
func CheckBiddable(sale *models.QuickSale, now time.Time) error {
	switch {
	case sale.Status == models.SaleStatusCancelled:
		return saleerrors.ErrSaleCancelled
	case sale.Status != models.SaleStatusActive || sale.IsFinalized():
		return saleerrors.ErrSaleNotActive
	case now.Before(sale.StartsAt):
		return saleerrors.ErrSaleNotStarted
	case !now.Before(sale.EndsAt):
		return saleerrors.ErrSaleEnded
	}
	return nil
}

func checkAmount(amount models.Money, highest *models.QuickSaleBid, observed, reserve *models.Money) error {
	if highest == nil {
		if reserve != nil && amount < *reserve {
			return fmt.Errorf("%w (reserve is %s)", saleerrors.ErrBelowReserve, reserve.String())
		}
		return nil
	}

	if amount > highest.BidAmount {
		return nil
	}
	if observed == nil || amount > *observed {
		return fmt.Errorf("%w (current highest is %s)", saleerrors.ErrOutbid, highest.BidAmount.String())
	}
	return fmt.Errorf("%w (current highest is %s)", saleerrors.ErrBidTooLow, highest.BidAmount.String())
}

// GetBids → bids of a sale, highest first
func (d *DB) GetBids(ctx context.Context, saleID string) ([]models.QuickSaleBid, error) {
	bids := make([]models.QuickSaleBid, 0)
	err := d.Bun.NewSelect().
		Model(&bids).
		Where("sale_id = ?", saleID).
		Order("bid_amount DESC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// GetHighestBid returns nil, nil when the sale has no bids.
func (d *DB) GetHighestBid(ctx context.Context, saleID string) (*models.QuickSaleBid, error) {
	return highestBid(ctx, d.Bun, saleID)
}

func (d *DB) GetBid(ctx context.Context, id string) (*models.QuickSaleBid, error) {
	var bid models.QuickSaleBid
	err := d.Bun.NewSelect().
		Model(&bid).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, saleerrors.ErrBidNotFound)
	}
	return &bid, nil
}

func highestBid(ctx context.Context, idb bun.IDB, saleID string) (*models.QuickSaleBid, error) {
	var bid models.QuickSaleBid
	err := idb.NewSelect().
		Model(&bid).
		Where("sale_id = ?", saleID).
		Order("bid_amount DESC", "created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}
