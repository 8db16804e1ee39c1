package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type SaleStatus string

const (
	SaleStatusActive    SaleStatus = "active"
	SaleStatusEnded     SaleStatus = "ended"
	SaleStatusCancelled SaleStatus = "cancelled"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusActive, SaleStatusEnded, SaleStatusCancelled:
		return true
	}
	return false
}

type FinalizeOutcome string

const (
	OutcomeWon           FinalizeOutcome = "won"
	OutcomeNoBids        FinalizeOutcome = "no_bids"
	OutcomeReserveNotMet FinalizeOutcome = "reserve_not_met"
)

type QuickSale struct {
	bun.BaseModel `bun:"table:quick_sales,alias:qs"`

	ID              string          `bun:"id,pk" json:"id"`
	Title           string          `bun:"title,notnull" json:"title"`
	Description     string          `bun:"description" json:"description"`
	SellerName      string          `bun:"seller_name,notnull" json:"seller_name"`
	SellerContact   string          `bun:"seller_contact,notnull" json:"seller_contact"`
	SellerEmail     string          `bun:"seller_email" json:"seller_email,omitempty"`
	ReservePrice    *Money          `bun:"reserve_price,type:bigint" json:"reserve_price,omitempty"`
	StartsAt        time.Time       `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt          time.Time       `bun:"ends_at,notnull" json:"ends_at"`
	Status          SaleStatus      `bun:"status,notnull" json:"status"`
	WinningBidID    *string         `bun:"winning_bid_id" json:"winning_bid_id"`
	FinalizedAt     *time.Time      `bun:"finalized_at" json:"finalized_at,omitempty"`
	FinalizeOutcome FinalizeOutcome `bun:"finalize_outcome,nullzero" json:"finalize_outcome,omitempty"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *QuickSale) IsFinalized() bool {
	return s.FinalizedAt != nil
}

// AcceptsBidsAt reports whether the sale window is open. Status is checked separately.
func (s *QuickSale) AcceptsBidsAt(now time.Time) bool {
	return s.Status == SaleStatusActive && !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

type QuickSaleProduct struct {
	bun.BaseModel `bun:"table:quick_sale_products,alias:qsp"`

	ID          string    `bun:"id,pk" json:"id"`
	SaleID      string    `bun:"sale_id,notnull" json:"sale_id"`
	Position    int       `bun:"position,notnull" json:"-"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description"`
	Condition   string    `bun:"condition,notnull" json:"condition"`
	Images      []string  `bun:"images,type:jsonb" json:"images"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

type QuickSaleBid struct {
	bun.BaseModel `bun:"table:quick_sale_bids,alias:qsb"`

	ID            string    `bun:"id,pk" json:"id"`
	SaleID        string    `bun:"sale_id,notnull" json:"sale_id"`
	BidderName    string    `bun:"bidder_name,notnull" json:"bidder_name"`
	BidAmount     Money     `bun:"bid_amount,type:bigint,notnull" json:"bid_amount"`
	ContactNumber string    `bun:"contact_number,notnull" json:"contact_number"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Masked returns a copy safe for public listings: only the last three digits of the contact survive.
func (b QuickSaleBid) Masked() QuickSaleBid {
	b.ContactNumber = MaskContact(b.ContactNumber)
	return b
}

func MaskContact(contact string) string {
	contact = strings.TrimSpace(contact)
	runes := []rune(contact)
	if len(runes) <= 3 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-3) + string(runes[len(runes)-3:])
}
