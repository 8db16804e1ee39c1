package models

import (
	"time"

	"ktu-bizconnect/internal/quicksale/countdown"
)

type SaleEventType string

const (
	EventSaleCreated   SaleEventType = "sale_created"
	EventBidPlaced     SaleEventType = "bid_placed"
	EventSaleFinalized SaleEventType = "sale_finalized"
	EventSaleUpdated   SaleEventType = "sale_updated"
	EventSaleDeleted   SaleEventType = "sale_deleted"
	EventTick          SaleEventType = "tick"
	EventEnded         SaleEventType = "ended"
)

// SaleEvent is published to Kafka and fanned out to SSE subscribers.
type SaleEvent struct {
	Type       SaleEventType       `json:"type"`
	SaleID     string              `json:"sale_id"`
	Status     SaleStatus          `json:"status,omitempty"`
	Bid        *QuickSaleBid       `json:"bid,omitempty"`
	Finalize   *FinalizeResult     `json:"finalize,omitempty"`
	Countdown  *countdown.Snapshot `json:"countdown,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Public strips bidder contact details before the event leaves the service over SSE.
func (e SaleEvent) Public() SaleEvent {
	if e.Bid != nil {
		masked := e.Bid.Masked()
		e.Bid = &masked
	}
	if e.Finalize != nil && e.Finalize.WinningBid != nil {
		f := *e.Finalize
		masked := f.WinningBid.Masked()
		f.WinningBid = &masked
		e.Finalize = &f
	}
	return e
}
