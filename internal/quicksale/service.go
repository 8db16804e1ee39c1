package quicksale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale/countdown"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/storage"
	"ktu-bizconnect/internal/utils"
)

type Store interface {
	CreateSale(ctx context.Context, sale *models.QuickSale, products []models.QuickSaleProduct) error
	GetSale(ctx context.Context, id string) (*models.QuickSale, error)
	GetProducts(ctx context.Context, saleID string) ([]models.QuickSaleProduct, error)
	ListSales(ctx context.Context, filter models.ListFilter) ([]models.QuickSaleSummary, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error)
	UpdateSale(ctx context.Context, id string, req models.UpdateQuickSaleRequest, now time.Time) (*models.QuickSale, error)
	DeleteSale(ctx context.Context, id string) error
	PlaceBid(ctx context.Context, bid *models.QuickSaleBid, observed *models.Money, now time.Time) error
	GetBids(ctx context.Context, saleID string) ([]models.QuickSaleBid, error)
	GetHighestBid(ctx context.Context, saleID string) (*models.QuickSaleBid, error)
	Finalize(ctx context.Context, saleID string, now time.Time) (*models.FinalizeResult, error)
}

// HighestCache is a read-through cache of each sale's highest amount. It is never
// consulted to accept a bid, only to classify a rejection.
type HighestCache interface {
	GetHighest(ctx context.Context, saleID string) (*models.Money, bool, error)
	SetHighest(ctx context.Context, saleID string, amount *models.Money) error
	InvalidateHighest(ctx context.Context, saleID string) error
}

type Deadlines interface {
	ArmDeadline(ctx context.Context, saleID string, endsAt, now time.Time) error
	DisarmDeadline(ctx context.Context, saleID string) error
}

type Publisher interface {
	PublishSaleEvent(ctx context.Context, event models.SaleEvent) error
}

type Emitter interface {
	Emit(event models.SaleEvent)
}

// Dependencies wires the service. Cache and Deadlines are nil when Redis is disabled.
type Dependencies struct {
	Store     Store
	Cache     HighestCache
	Deadlines Deadlines
	Publisher Publisher
	Emitter   Emitter
	Uploader  storage.Uploader
	Validator *Validator
	Logger    *logger.Logger
}

type Service struct {
	Dependencies
	MaxImageBytes int64
	now           func() time.Time
}

// ImageUpload is a product photo sent with a multipart create request.
type ImageUpload struct {
	Product  int
	Filename string
	Content  io.Reader
}

const expiredBatchSize = 100

func NewService(deps Dependencies, maxImageBytes int64) *Service {
	return &Service{Dependencies: deps, MaxImageBytes: maxImageBytes, now: utils.Now}
}

// SetClock replaces the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ---------------- SALES ----------------

func (s *Service) CreateSale(ctx context.Context, req models.CreateQuickSaleRequest, images []ImageUpload) (*models.QuickSaleDetail, error) {
	now := s.now()

	uploads := lo.CountValuesBy(images, func(img ImageUpload) int { return img.Product })
	if err := s.Validator.ValidateCreate(&req, uploads, now); err != nil {
		return nil, err
	}

	sale := &models.QuickSale{
		ID:            utils.GenerateSaleID(),
		Title:         req.Title,
		Description:   req.Description,
		SellerName:    req.SellerName,
		SellerContact: req.SellerContact,
		SellerEmail:   req.SellerEmail,
		ReservePrice:  req.ReservePrice,
		StartsAt:      now,
		EndsAt:        utils.NormalizeTime(req.EndsAt),
		Status:        models.SaleStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.StartsAt != nil {
		sale.StartsAt = utils.NormalizeTime(*req.StartsAt)
	}

	products := make([]models.QuickSaleProduct, len(req.Products))
	for i, p := range req.Products {
		products[i] = models.QuickSaleProduct{
			ID:          utils.GenerateProductID(),
			SaleID:      sale.ID,
			Position:    i,
			Title:       p.Title,
			Description: p.Description,
			Condition:   p.Condition,
			Images:      append([]string{}, p.Images...),
			CreatedAt:   now,
		}
	}

	if s.Uploader == nil && len(images) > 0 {
		return nil, saleerrors.Validation("image uploads are not enabled")
	}
	// every image is checked before the first upload
	checked := make([]*storage.Image, len(images))
	for i, img := range images {
		image, err := storage.ReadImage(img.Content, s.MaxImageBytes)
		if errors.Is(err, saleerrors.ErrValidation) {
			return nil, saleerrors.Validation("%s: %s", img.Filename, saleerrors.Message(err))
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", img.Filename, err)
		}
		checked[i] = image
	}

	uploaded := make([]string, 0, len(images))
	for i, img := range images {
		key := checked[i].Key(sale.ID)
		url, err := s.Uploader.Upload(ctx, key, checked[i].ContentType, checked[i].Content)
		if err != nil {
			s.discardImages(ctx, uploaded)
			return nil, fmt.Errorf("upload %s: %w", img.Filename, err)
		}
		uploaded = append(uploaded, key)
		products[img.Product].Images = append(products[img.Product].Images, url)
	}

	if err := s.Store.CreateSale(ctx, sale, products); err != nil {
		s.discardImages(ctx, uploaded)
		return nil, fmt.Errorf("create sale: %w", err)
	}
	s.Logger.LogSale("CREATED", sale.ID, fmt.Sprintf("%q by %s, %d products, ends %s",
		sale.Title, sale.SellerName, len(products), sale.EndsAt.Format(time.RFC3339)))

	s.armDeadline(ctx, sale, now)
	if s.Cache != nil {
		if err := s.Cache.SetHighest(ctx, sale.ID, nil); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to prime highest bid for %s: %v", sale.ID, err))
		}
	}
	s.announce(ctx, models.SaleEvent{Type: models.EventSaleCreated, SaleID: sale.ID, Status: sale.Status, OccurredAt: now})

	return &models.QuickSaleDetail{
		QuickSale: *sale,
		Products:  products,
		Bids:      []models.QuickSaleBid{},
		Countdown: SnapshotFor(sale, now),
	}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*models.QuickSale, error) {
	return s.Store.GetSale(ctx, id)
}

// GetDetail returns the sale page. Bidder contacts are masked unless admin is set.
func (s *Service) GetDetail(ctx context.Context, id string, admin bool) (*models.QuickSaleDetail, error) {
	sale, err := s.Store.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	products, err := s.Store.GetProducts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	bids, err := s.Store.GetBids(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get bids: %w", err)
	}
	if !admin {
		bids = maskBids(bids)
	}

	detail := &models.QuickSaleDetail{
		QuickSale: *sale,
		Products:  products,
		Bids:      bids,
		BidCount:  len(bids),
		Countdown: SnapshotFor(sale, s.now()),
	}
	if len(bids) > 0 {
		// GetBids orders highest first, earliest wins ties
		highest := bids[0]
		detail.HighestBid = &highest
	}
	return detail, nil
}

// ListActive is the public listing: active sales only.
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]models.QuickSaleSummary, error) {
	active := models.SaleStatusActive
	return s.Store.ListSales(ctx, models.ListFilter{Status: &active, Limit: limit, Offset: offset})
}

func (s *Service) ListAll(ctx context.Context, filter models.ListFilter) ([]models.QuickSaleSummary, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, saleerrors.Validation("status must be one of active, ended, cancelled")
	}
	return s.Store.ListSales(ctx, filter)
}

// UpdateSale is the admin override. It never picks a winner; Finalize does that.
func (s *Service) UpdateSale(ctx context.Context, id string, req models.UpdateQuickSaleRequest) (*models.QuickSale, error) {
	if err := s.Validator.ValidateUpdate(&req); err != nil {
		return nil, err
	}

	now := s.now()
	sale, err := s.Store.UpdateSale(ctx, id, req, now)
	if err != nil {
		return nil, err
	}
	s.Logger.LogSale("UPDATED", id, fmt.Sprintf("status=%s ends_at=%s", sale.Status, sale.EndsAt.Format(time.RFC3339)))

	if sale.Status == models.SaleStatusActive && !sale.IsFinalized() {
		if req.EndsAt != nil || req.Status != nil {
			s.armDeadline(ctx, sale, now)
		}
	} else {
		s.disarmDeadline(ctx, id)
	}

	s.announce(ctx, models.SaleEvent{Type: models.EventSaleUpdated, SaleID: id, Status: sale.Status, OccurredAt: now})
	return sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if err := s.Store.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.Logger.LogSale("DELETED", id, "Quick sale deleted with its products and bids")

	s.disarmDeadline(ctx, id)
	s.invalidateHighest(ctx, id)
	s.announce(ctx, models.SaleEvent{Type: models.EventSaleDeleted, SaleID: id, OccurredAt: s.now()})
	return nil
}

// ---------------- BIDS ----------------

func (s *Service) GetBids(ctx context.Context, saleID string, admin bool) ([]models.QuickSaleBid, error) {
	if _, err := s.Store.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	bids, err := s.Store.GetBids(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !admin {
		bids = maskBids(bids)
	}
	return bids, nil
}

// GetHighest returns the highest bid, or nil when nobody has bid yet.
func (s *Service) GetHighest(ctx context.Context, saleID string) (*models.QuickSaleBid, error) {
	if _, err := s.Store.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	highest, err := s.Store.GetHighestBid(ctx, saleID)
	if err != nil || highest == nil {
		return nil, err
	}
	masked := highest.Masked()
	return &masked, nil
}

// PlaceBid accepts a bid if it beats the highest bid inside the locked transaction.
func (s *Service) PlaceBid(ctx context.Context, saleID string, req models.PlaceBidRequest) (*models.QuickSaleBid, error) {
	if err := s.Validator.ValidateBid(&req); err != nil {
		return nil, err
	}

	observed, err := s.observeHighest(ctx, saleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	bid := &models.QuickSaleBid{
		ID:            utils.GenerateBidID(),
		SaleID:        saleID,
		BidderName:    req.BidderName,
		BidAmount:     req.BidAmount,
		ContactNumber: req.ContactNumber,
		CreatedAt:     now,
	}

	if err := s.Store.PlaceBid(ctx, bid, observed, now); err != nil {
		if errors.Is(err, saleerrors.ErrOutbid) {
			s.refreshHighest(ctx, saleID)
		}
		s.Logger.LogBid("REJECTED", saleID, fmt.Sprintf("%s by %s: %s", bid.BidAmount, bid.BidderName, saleerrors.Message(err)))
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.SetHighest(ctx, saleID, &bid.BidAmount); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to cache highest bid for %s: %v", saleID, err))
		}
	}
	s.Logger.LogBid("ACCEPTED", saleID, fmt.Sprintf("%s by %s (bid %s)", bid.BidAmount, bid.BidderName, bid.ID))
	s.announce(ctx, models.SaleEvent{Type: models.EventBidPlaced, SaleID: saleID, Status: models.SaleStatusActive, Bid: bid, OccurredAt: now})

	return bid, nil
}

// observeHighest is the caller-side view of the highest amount before the transaction.
// The cache is tried first; a miss falls back to the database and refills the cache.
func (s *Service) observeHighest(ctx context.Context, saleID string) (*models.Money, error) {
	if s.Cache != nil {
		amount, found, err := s.Cache.GetHighest(ctx, saleID)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Highest bid cache read failed for %s: %v", saleID, err))
		} else if found {
			return amount, nil
		}
	}

	highest, err := s.Store.GetHighestBid(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("read highest bid: %w", err)
	}
	var amount *models.Money
	if highest != nil {
		amount = &highest.BidAmount
	}
	if s.Cache != nil {
		if err := s.Cache.SetHighest(ctx, saleID, amount); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to cache highest bid for %s: %v", saleID, err))
		}
	}
	return amount, nil
}

func (s *Service) refreshHighest(ctx context.Context, saleID string) {
	if s.Cache == nil {
		return
	}
	highest, err := s.Store.GetHighestBid(ctx, saleID)
	if err != nil || highest == nil {
		return
	}
	if err := s.Cache.SetHighest(ctx, saleID, &highest.BidAmount); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to cache highest bid for %s: %v", saleID, err))
	}
}

// ---------------- FINALIZE ----------------

// Finalize closes the sale and records the winner. Calling it again returns the stored result.
func (s *Service) Finalize(ctx context.Context, saleID string) (*models.FinalizeResult, error) {
	now := s.now()
	result, err := s.Store.Finalize(ctx, saleID, now)
	if err != nil {
		return nil, err
	}
	if result.AlreadyFinalized {
		return result, nil
	}

	s.Logger.LogSale("FINALIZED", saleID, fmt.Sprintf("outcome=%s winning_bid=%s", result.Outcome, lo.FromPtrOr(result.WinningBidID, "-")))
	s.disarmDeadline(ctx, saleID)
	s.invalidateHighest(ctx, saleID)
	s.announce(ctx, models.SaleEvent{
		Type:       models.EventSaleFinalized,
		SaleID:     saleID,
		Status:     result.Status,
		Finalize:   result,
		OccurredAt: now,
	})
	return result, nil
}

// AutoFinalize is the deadline hook. A sale that was cancelled, deleted or rescheduled in the
// meantime is skipped.
func (s *Service) AutoFinalize(ctx context.Context, saleID string) {
	sale, err := s.Store.GetSale(ctx, saleID)
	if err != nil {
		if !errors.Is(err, saleerrors.ErrNotFound) {
			s.Logger.Error("CLOSER", fmt.Sprintf("Failed to load sale %s: %v", saleID, err))
		}
		return
	}
	now := s.now()
	if sale.Status != models.SaleStatusActive || sale.IsFinalized() {
		return
	}
	if now.Before(sale.EndsAt) {
		// ends_at moved after the deadline key was armed
		s.armDeadline(ctx, sale, now)
		return
	}

	if _, err := s.Finalize(ctx, saleID); err != nil {
		if errors.Is(err, saleerrors.ErrConflict) || errors.Is(err, saleerrors.ErrNotFound) {
			s.Logger.Info("CLOSER", fmt.Sprintf("Skipped sale %s: %s", saleID, saleerrors.Message(err)))
			return
		}
		s.Logger.Error("CLOSER", fmt.Sprintf("Failed to finalize sale %s: %v", saleID, err))
	}
}

// FinalizeExpired finalizes every active sale past its end time and reports how many it closed.
func (s *Service) FinalizeExpired(ctx context.Context) (int, error) {
	closed := 0
	for {
		ids, err := s.Store.ListExpiredActive(ctx, s.now(), expiredBatchSize)
		if err != nil {
			return closed, fmt.Errorf("list expired sales: %w", err)
		}
		if len(ids) == 0 {
			return closed, nil
		}

		progressed := false
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return closed, err
			}
			if _, err := s.Finalize(ctx, id); err != nil {
				s.Logger.Error("CLOSER", fmt.Sprintf("Failed to finalize sale %s: %v", id, err))
				continue
			}
			closed++
			progressed = true
		}
		if !progressed || len(ids) < expiredBatchSize {
			return closed, nil
		}
	}
}

// ---------------- HELPERS ----------------

func (s *Service) announce(ctx context.Context, event models.SaleEvent) {
	if s.Emitter != nil {
		s.Emitter.Emit(event.Public())
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishSaleEvent(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for sale %s: %v", event.Type, event.SaleID, err))
		}
	}
}

func (s *Service) armDeadline(ctx context.Context, sale *models.QuickSale, now time.Time) {
	if s.Deadlines == nil {
		return
	}
	if err := s.Deadlines.ArmDeadline(ctx, sale.ID, sale.EndsAt, now); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to arm deadline for %s: %v", sale.ID, err))
	}
}

func (s *Service) disarmDeadline(ctx context.Context, saleID string) {
	if s.Deadlines == nil {
		return
	}
	if err := s.Deadlines.DisarmDeadline(ctx, saleID); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to disarm deadline for %s: %v", saleID, err))
	}
}

// discardImages removes objects uploaded for a sale that was never stored.
func (s *Service) discardImages(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.Uploader.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.Logger.Warn("STORAGE", fmt.Sprintf("Failed to remove orphaned image %s: %v", key, err))
		}
	}
}

func (s *Service) invalidateHighest(ctx context.Context, saleID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.InvalidateHighest(ctx, saleID); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to drop cached highest bid for %s: %v", saleID, err))
	}
}

func maskBids(bids []models.QuickSaleBid) []models.QuickSaleBid {
	return lo.Map(bids, func(b models.QuickSaleBid, _ int) models.QuickSaleBid {
		return b.Masked()
	})
}

// SnapshotFor is the countdown shown with a sale. A sale closed early shows as ended.
func SnapshotFor(sale *models.QuickSale, now time.Time) countdown.Snapshot {
	if sale.Status != models.SaleStatusActive || sale.IsFinalized() {
		return countdown.Stopped(sale.EndsAt, now)
	}
	return countdown.At(sale.EndsAt, now)
}

// Now is the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}
