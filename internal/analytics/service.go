package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

const (
	dateLayout     = "2006-01-02"
	defaultDays    = 14
	maxDays        = 90
	hourBucketSpan = time.Hour
)

// Service handles analytics operations
type Service struct {
	db  *DB
	now func() time.Time
}

// NewService creates a new analytics service
func NewService(db *DB) *Service {
	return &Service{db: db, now: utils.Now}
}

// Overview is the admin dashboard headline
type Overview struct {
	TotalSales     int                            `json:"total_sales"`
	ByStatus       map[models.SaleStatus]int      `json:"by_status"`
	Finalized      int                            `json:"finalized"`
	ByOutcome      map[models.FinalizeOutcome]int `json:"by_outcome"`
	TotalBids      int                            `json:"total_bids"`
	UniqueBidders  int                            `json:"unique_bidders"`
	SoldValue      models.Money                   `json:"sold_value"`
	AvgBidsPerSale decimal.Decimal                `json:"avg_bids_per_sale"`
	SellThrough    decimal.Decimal                `json:"sell_through_rate"`
}

// DailyMetrics contains metrics for a single UTC day
type DailyMetrics struct {
	Date         string       `json:"date"`
	SalesCreated int          `json:"sales_created"`
	Bids         int          `json:"bids"`
	SalesClosed  int          `json:"sales_closed"`
	SoldValue    models.Money `json:"sold_value"`
}

// SaleAnalytics describes the bidding activity on one sale
type SaleAnalytics struct {
	SaleID           string        `json:"sale_id"`
	BidCount         int           `json:"bid_count"`
	UniqueBidders    int           `json:"unique_bidders"`
	OpeningBid       *models.Money `json:"opening_bid"`
	HighestBid       *models.Money `json:"highest_bid"`
	AverageIncrement *models.Money `json:"average_increment"`
	FirstBidAt       *time.Time    `json:"first_bid_at"`
	LastBidAt        *time.Time    `json:"last_bid_at"`
	BidsByHour       []HourBucket  `json:"bids_by_hour"`
}

type HourBucket struct {
	Hour time.Time `json:"hour"`
	Bids int       `json:"bids"`
}

// GetOverview returns totals across every sale
func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	statuses, err := s.db.CountSalesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sales: %w", err)
	}
	outcomes, err := s.db.CountOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	totalBids, bidders, err := s.db.CountBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bids: %w", err)
	}
	sold, err := s.db.SoldValue(ctx)
	if err != nil {
		return nil, err
	}

	o := &Overview{
		ByStatus:      lo.SliceToMap(statuses, func(c StatusCount) (models.SaleStatus, int) { return c.Status, c.Count }),
		ByOutcome:     lo.SliceToMap(outcomes, func(c OutcomeCount) (models.FinalizeOutcome, int) { return c.Outcome, c.Count }),
		TotalSales:    lo.SumBy(statuses, func(c StatusCount) int { return c.Count }),
		Finalized:     lo.SumBy(outcomes, func(c OutcomeCount) int { return c.Count }),
		TotalBids:     totalBids,
		UniqueBidders: bidders,
		SoldValue:     sold,
	}
	o.AvgBidsPerSale = ratio(o.TotalBids, o.TotalSales)
	o.SellThrough = ratio(o.ByOutcome[models.OutcomeWon], o.Finalized)
	return o, nil
}

func ratio(n, d int) decimal.Decimal {
	if d == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(int64(d))).Round(2)
}

// GetDaily returns one entry per UTC day for the last days days, oldest first. Days without
// activity are included with zero counts.
func (s *Service) GetDaily(ctx context.Context, days int) ([]DailyMetrics, error) {
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		return nil, saleerrors.Validation("days must be at most %d", maxDays)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	created, err := s.db.SalesCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}
	bids, err := s.db.BidsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	closed, err := s.db.SalesClosedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load closed sales: %w", err)
	}

	metrics := make([]DailyMetrics, days)
	index := make(map[string]*DailyMetrics, days)
	for i := range metrics {
		metrics[i].Date = since.AddDate(0, 0, i).Format(dateLayout)
		index[metrics[i].Date] = &metrics[i]
	}
	day := func(t time.Time) *DailyMetrics { return index[t.UTC().Format(dateLayout)] }

	for _, t := range created {
		if m := day(t); m != nil {
			m.SalesCreated++
		}
	}
	for _, b := range bids {
		if m := day(b.CreatedAt); m != nil {
			m.Bids++
		}
	}
	for _, c := range closed {
		m := day(c.FinalizedAt)
		if m == nil {
			continue
		}
		m.SalesClosed++
		if c.Amount != nil {
			m.SoldValue += *c.Amount
		}
	}
	return metrics, nil
}

// GetSaleAnalytics summarises the bidding on one sale
func (s *Service) GetSaleAnalytics(ctx context.Context, saleID string) (*SaleAnalytics, error) {
	exists, err := s.db.SaleExists(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, saleerrors.ErrSaleNotFound
	}

	bids, err := s.db.SaleBids(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}

	a := &SaleAnalytics{
		SaleID:        saleID,
		BidCount:      len(bids),
		UniqueBidders: len(lo.UniqBy(bids, func(b BidPoint) string { return b.ContactNumber })),
		BidsByHour:    []HourBucket{},
	}
	if len(bids) == 0 {
		return a, nil
	}

	first, last := bids[0], bids[len(bids)-1]
	highest := lo.MaxBy(bids, func(a, b BidPoint) bool { return a.BidAmount > b.BidAmount })
	a.OpeningBid = &first.BidAmount
	a.HighestBid = &highest.BidAmount
	a.FirstBidAt = &first.CreatedAt
	a.LastBidAt = &last.CreatedAt
	if len(bids) > 1 {
		// accepted bids only ever rise, so the spread over the gaps is the mean raise
		avg := models.Money(decimal.NewFromInt(int64(highest.BidAmount - first.BidAmount)).
			Div(decimal.NewFromInt(int64(len(bids) - 1))).
			Round(0).IntPart())
		a.AverageIncrement = &avg
	}

	byHour := lo.CountValuesBy(bids, func(b BidPoint) time.Time { return b.CreatedAt.UTC().Truncate(hourBucketSpan) })
	for hour, n := range byHour {
		a.BidsByHour = append(a.BidsByHour, HourBucket{Hour: hour, Bids: n})
	}
	sort.Slice(a.BidsByHour, func(i, j int) bool { return a.BidsByHour[i].Hour.Before(a.BidsByHour[j].Hour) })
	return a, nil
}
