package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
)

// Finalize picks the winner and closes the sale. A second call returns the stored
// result with AlreadyFinalized set and writes nothing.
func (d *DB) Finalize(ctx context.Context, saleID string, now time.Time) (*models.FinalizeResult, error) {
	var result *models.FinalizeResult

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		sale, err := d.lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}

		highest, err := highestBid(ctx, tx, sale.ID)
		if err != nil {
			return fmt.Errorf("read highest bid: %w", err)
		}

		if sale.IsFinalized() {
			result, err = storedResult(ctx, tx, sale, highest)
			return err
		}
		if sale.Status == models.SaleStatusCancelled {
			return saleerrors.ErrSaleCancelled
		}

		outcome, winner := decideOutcome(highest, sale.ReservePrice)

		var winningBidID *string
		if winner != nil {
			winningBidID = &winner.ID
		}

		res, err := tx.NewUpdate().
			Model((*models.QuickSale)(nil)).
			Set("status = ?", models.SaleStatusEnded).
			Set("winning_bid_id = ?", winningBidID).
			Set("finalized_at = ?", now).
			Set("finalize_outcome = ?", outcome).
			Set("updated_at = ?", now).
			Where("id = ?", sale.ID).
			Where("finalized_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize sale: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return saleerrors.ErrAlreadyFinalized
		}

		result = &models.FinalizeResult{
			SaleID:       sale.ID,
			Outcome:      outcome,
			WinningBidID: winningBidID,
			WinningBid:   winner,
			Status:       models.SaleStatusEnded,
			FinalizedAt:  now,
		}
		if highest != nil {
			amount := highest.BidAmount
			result.HighestAmount = &amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decideOutcome(highest *models.QuickSaleBid, reserve *models.Money) (models.FinalizeOutcome, *models.QuickSaleBid) {
	switch {
	case highest == nil:
		return models.OutcomeNoBids, nil
	case reserve != nil && highest.BidAmount < *reserve:
		return models.OutcomeReserveNotMet, nil
	default:
		return models.OutcomeWon, highest
	}
}

func storedResult(ctx context.Context, tx bun.Tx, sale *models.QuickSale, highest *models.QuickSaleBid) (*models.FinalizeResult, error) {
	result := &models.FinalizeResult{
		SaleID:           sale.ID,
		Outcome:          sale.FinalizeOutcome,
		WinningBidID:     sale.WinningBidID,
		Status:           sale.Status,
		FinalizedAt:      *sale.FinalizedAt,
		AlreadyFinalized: true,
	}
	if highest != nil {
		amount := highest.BidAmount
		result.HighestAmount = &amount
	}

	if sale.WinningBidID != nil {
		var bid models.QuickSaleBid
		err := tx.NewSelect().
			Model(&bid).
			Where("id = ?", *sale.WinningBidID).
			Where("sale_id = ?", sale.ID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("load winning bid: %w", err)
		}
		result.WinningBid = &bid
	}
	return result, nil
}
