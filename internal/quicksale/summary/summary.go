// Package summary renders the printable hand-over sheet for a quick sale.
package summary

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/signintech/gopdf"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"ktu-bizconnect/internal/models"
)

const (
	marginX    = 40.0
	pageWidth  = 595.28 // A4 in points
	lineHeight = 16.0
	maxBidRows = 10
	qrSize     = 110.0
	topY       = 40.0
	bottomY    = 780.0
	footerY    = 810.0
	dateLayout = "2006-01-02 15:04 MST"
)

type PDFGenerator struct {
	location *time.Location
}

// NewPDFGenerator prints times in loc; nil means UTC.
func NewPDFGenerator(loc *time.Location) *PDFGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &PDFGenerator{location: loc}
}

// Generate builds the admin sheet for detail: seller, outcome, winner with full contact,
// products, the highest bids and a QR code pointing at pageURL.
func (g *PDFGenerator) Generate(detail *models.QuickSaleDetail, pageURL string, now time.Time) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFontData("regular", goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.AddTTFFontData("bold", gobold.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	w := &writer{pdf: pdf}
	w.font("bold", 18)
	w.line("KTU BizConnect Quick Sale")
	w.font("regular", 13)
	w.wrapped(detail.Title)
	w.gap()

	w.font("regular", 11)
	g.addSaleInfo(w, detail)
	w.gap()
	g.addOutcome(w, detail)
	w.gap()
	addProducts(w, detail.Products)
	w.gap()
	addBids(w, detail.Bids)

	if pageURL != "" {
		if err := addQRCode(pdf, pageURL); err != nil {
			return nil, err
		}
	}

	w.y = footerY
	w.font("regular", 8)
	w.line(fmt.Sprintf("Generated %s. Sale %s.", now.In(g.location).Format(dateLayout), detail.ID))

	if w.err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", w.err)
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) addSaleInfo(w *writer, detail *models.QuickSaleDetail) {
	seller := detail.SellerName + ", " + detail.SellerContact
	if detail.SellerEmail != "" {
		seller += ", " + detail.SellerEmail
	}

	reserve := "none"
	if detail.ReservePrice != nil {
		reserve = "GHS " + detail.ReservePrice.String()
	}

	info := []struct {
		Label string
		Value string
	}{
		{"Seller", seller},
		{"Opens", detail.StartsAt.In(g.location).Format(dateLayout)},
		{"Closes", detail.EndsAt.In(g.location).Format(dateLayout)},
		{"Status", string(detail.Status)},
		{"Reserve", reserve},
		{"Bids", fmt.Sprintf("%d", detail.BidCount)},
	}
	for _, item := range info {
		w.wrapped(item.Label + ": " + item.Value)
	}
}

func (g *PDFGenerator) addOutcome(w *writer, detail *models.QuickSaleDetail) {
	w.font("bold", 12)
	w.line("Outcome")
	w.font("regular", 11)

	if !detail.IsFinalized() {
		w.line("Not finalized yet.")
		if detail.HighestBid != nil {
			w.line(fmt.Sprintf("Leading bid: GHS %s by %s", detail.HighestBid.BidAmount.String(), detail.HighestBid.BidderName))
		}
		return
	}

	w.line(fmt.Sprintf("Finalized %s: %s", detail.FinalizedAt.In(g.location).Format(dateLayout), outcomeText(detail.FinalizeOutcome)))
	if detail.WinningBidID == nil {
		return
	}
	for _, bid := range detail.Bids {
		if bid.ID == *detail.WinningBidID {
			w.line(fmt.Sprintf("Winner: %s, GHS %s, contact %s", bid.BidderName, bid.BidAmount.String(), bid.ContactNumber))
			return
		}
	}
}

func outcomeText(o models.FinalizeOutcome) string {
	switch o {
	case models.OutcomeWon:
		return "sold to the highest bidder"
	case models.OutcomeNoBids:
		return "closed without bids"
	case models.OutcomeReserveNotMet:
		return "reserve price not met"
	}
	return string(o)
}

func addProducts(w *writer, products []models.QuickSaleProduct) {
	w.font("bold", 12)
	w.line(fmt.Sprintf("Products (%d)", len(products)))
	w.font("regular", 11)
	for i, p := range products {
		w.wrapped(fmt.Sprintf("%d. %s (%s)", i+1, p.Title, p.Condition))
	}
}

func addBids(w *writer, bids []models.QuickSaleBid) {
	w.font("bold", 12)
	w.line("Highest bids")
	w.font("regular", 11)
	if len(bids) == 0 {
		w.line("No bids.")
		return
	}
	for i, bid := range bids {
		if i == maxBidRows {
			w.line(fmt.Sprintf("... and %d more", len(bids)-maxBidRows))
			break
		}
		w.line(fmt.Sprintf("GHS %s  %s  %s  %s", bid.BidAmount.String(), bid.BidderName, bid.ContactNumber, bid.CreatedAt.UTC().Format("15:04:05")))
	}
}

func addQRCode(pdf *gopdf.GoPdf, pageURL string) error {
	code, err := qrcode.Encode(pageURL, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to encode QR code: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(code))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}
	rect := &gopdf.Rect{W: qrSize, H: qrSize}
	if err := pdf.ImageFrom(img, pageWidth-marginX-qrSize, 30, rect); err != nil {
		return fmt.Errorf("failed to draw QR code: %w", err)
	}
	return nil
}

// writer keeps the first error so the layout code reads top to bottom.
type writer struct {
	pdf *gopdf.GoPdf
	y   float64
	err error
}

func (w *writer) font(family string, size int) {
	if w.err == nil {
		w.err = w.pdf.SetFont(family, "", size)
	}
}

func (w *writer) line(text string) {
	if w.err != nil {
		return
	}
	switch {
	case w.y == 0:
		w.y = topY
	case w.y > bottomY && w.y < footerY:
		w.pdf.AddPage()
		w.y = topY
	}
	w.pdf.SetX(marginX)
	w.pdf.SetY(w.y)
	w.err = w.pdf.Cell(nil, text)
	w.y += lineHeight
}

// wrapped splits text to the space left of the QR code.
func (w *writer) wrapped(text string) {
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(text, pageWidth-2*marginX-qrSize)
	if err != nil {
		w.line(text)
		return
	}
	for _, l := range lines {
		w.line(l)
	}
}

func (w *writer) gap() {
	w.y += lineHeight / 2
}
