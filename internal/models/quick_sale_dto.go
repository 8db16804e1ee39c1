package models

import (
	"time"

	"ktu-bizconnect/internal/quicksale/countdown"
)

type CreateQuickSaleRequest struct {
	Title         string                 `json:"title" validate:"required,max=200"`
	Description   string                 `json:"description" validate:"max=5000"`
	SellerName    string                 `json:"seller_name" validate:"required,max=120"`
	SellerContact string                 `json:"seller_contact" validate:"required,max=40"`
	SellerEmail   string                 `json:"seller_email" validate:"omitempty,email,max=254"`
	ReservePrice  *Money                 `json:"reserve_price"`
	StartsAt      *time.Time             `json:"starts_at"`
	EndsAt        time.Time              `json:"ends_at" validate:"required"`
	Products      []CreateProductRequest `json:"products" validate:"required,min=1,dive"`
}

type CreateProductRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Condition   string   `json:"condition" validate:"required,max=50"`
	Images      []string `json:"images" validate:"omitempty,dive,url"`
}

type PlaceBidRequest struct {
	BidderName    string `json:"bidder_name" validate:"required,max=120"`
	BidAmount     Money  `json:"bid_amount" validate:"required"`
	ContactNumber string `json:"contact_number" validate:"required,min=6,max=20"`
}

// UpdateQuickSaleRequest is a partial update; nil fields are left alone.
type UpdateQuickSaleRequest struct {
	Title         *string     `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string     `json:"description" validate:"omitempty,max=5000"`
	SellerName    *string     `json:"seller_name" validate:"omitempty,min=1,max=120"`
	SellerContact *string     `json:"seller_contact" validate:"omitempty,min=1,max=40"`
	SellerEmail   *string     `json:"seller_email" validate:"omitempty,email,max=254"`
	ReservePrice  *Money      `json:"reserve_price"`
	ClearReserve  bool        `json:"clear_reserve"`
	StartsAt      *time.Time  `json:"starts_at"`
	EndsAt        *time.Time  `json:"ends_at"`
	Status        *SaleStatus `json:"status"`
}

func (r UpdateQuickSaleRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.SellerName == nil && r.SellerContact == nil &&
		r.SellerEmail == nil && r.ReservePrice == nil && !r.ClearReserve && r.StartsAt == nil &&
		r.EndsAt == nil && r.Status == nil
}

type FinalizeResult struct {
	SaleID           string          `json:"sale_id"`
	Outcome          FinalizeOutcome `json:"outcome"`
	WinningBidID     *string         `json:"winning_bid_id"`
	WinningBid       *QuickSaleBid   `json:"winning_bid,omitempty"`
	HighestAmount    *Money          `json:"highest_amount,omitempty"`
	Status           SaleStatus      `json:"status"`
	FinalizedAt      time.Time       `json:"finalized_at"`
	AlreadyFinalized bool            `json:"already_finalized"`
}

type QuickSaleDetail struct {
	QuickSale
	Products   []QuickSaleProduct `json:"products"`
	Bids       []QuickSaleBid     `json:"bids"`
	HighestBid *QuickSaleBid      `json:"highest_bid"`
	BidCount   int                `json:"bid_count"`
	Countdown  countdown.Snapshot `json:"countdown"`
}

// QuickSaleSummary is one row of a sale listing.
type QuickSaleSummary struct {
	QuickSale     `bun:",extend"`
	BidCount      int    `bun:"bid_count" json:"bid_count"`
	HighestAmount *Money `bun:"highest_amount" json:"highest_amount"`
	ProductCount  int    `bun:"product_count" json:"product_count"`
}

type ListFilter struct {
	Status *SaleStatus
	Limit  int
	Offset int
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
