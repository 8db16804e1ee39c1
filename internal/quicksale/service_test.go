package quicksale_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale"
	"ktu-bizconnect/internal/quicksale/countdown"
	"ktu-bizconnect/internal/quicksale/db"
	qsredis "ktu-bizconnect/internal/quicksale/redis"
	"ktu-bizconnect/internal/saleerrors"
)

var baseNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishSaleEvent(ctx context.Context, event models.SaleEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingEmitter struct {
	events []models.SaleEvent
}

func (r *recordingEmitter) Emit(event models.SaleEvent) {
	r.events = append(r.events, event)
}

type memoryUploader struct {
	keys    []string
	deleted []string
	failAt  int // 1-based upload that fails, 0 never
}

func (m *memoryUploader) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	if m.failAt > 0 && len(m.keys)+1 == m.failAt {
		return "", errors.New("bucket unavailable")
	}
	m.keys = append(m.keys, key)
	return "https://cdn.test/" + key, nil
}

func (m *memoryUploader) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

// brokenStore fails every insert.
type brokenStore struct {
	quicksale.Store
}

func (brokenStore) CreateSale(context.Context, *models.QuickSale, []models.QuickSaleProduct) error {
	return errors.New("connection reset")
}

type testEnv struct {
	svc       *quicksale.Service
	store     *db.DB
	mr        *miniredis.Miniredis
	publisher *MockPublisher
	emitter   *recordingEmitter
	uploader  *memoryUploader
	now       time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateTables(context.Background(), bunDB))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.Discard()
	cache := qsredis.NewRedis(client, log, time.Minute)

	env := &testEnv{
		store:     db.New(bunDB),
		mr:        mr,
		publisher: new(MockPublisher),
		emitter:   &recordingEmitter{},
		uploader:  &memoryUploader{},
		now:       baseNow,
	}
	env.publisher.On("PublishSaleEvent", mock.Anything, mock.Anything).Return(nil)

	env.svc = quicksale.NewService(quicksale.Dependencies{
		Store:     env.store,
		Cache:     cache,
		Deadlines: cache,
		Publisher: env.publisher,
		Emitter:   env.emitter,
		Uploader:  env.uploader,
		Validator: quicksale.NewValidator(20, 5),
		Logger:    log,
	}, 1<<20)
	env.svc.SetClock(func() time.Time { return env.now })
	return env
}

func validCreate(now time.Time) models.CreateQuickSaleRequest {
	return models.CreateQuickSaleRequest{
		Title:         "Final-year clear-out",
		Description:   "Hall 6 room 12",
		SellerName:    "Ama Mensah",
		SellerContact: "0201234567",
		SellerEmail:   "ama@st.ktu.edu.gh",
		EndsAt:        now.Add(2 * time.Hour),
		Products: []models.CreateProductRequest{
			{Title: "Desk lamp", Condition: "good"},
			{Title: "Rice cooker", Condition: "fair", Images: []string{"https://cdn.test/cooker.jpg"}},
		},
	}
}

func cedis(n int64) models.Money {
	return models.Money(n * 100)
}

func bidReq(name string, amount int64) models.PlaceBidRequest {
	return models.PlaceBidRequest{BidderName: name, BidAmount: cedis(amount), ContactNumber: "0551234567"}
}

func publishedTypes(p *MockPublisher) []models.SaleEventType {
	var types []models.SaleEventType
	for _, call := range p.Calls {
		types = append(types, call.Arguments.Get(1).(models.SaleEvent).Type)
	}
	return types
}

func TestCreateSale_Validation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	tooMany := validCreate(env.now)
	for len(tooMany.Products) <= 20 {
		tooMany.Products = append(tooMany.Products, models.CreateProductRequest{Title: "Book", Condition: "used"})
	}

	tests := []struct {
		name   string
		mutate func(*models.CreateQuickSaleRequest)
		want   string
	}{
		{"missing title", func(r *models.CreateQuickSaleRequest) { r.Title = "" }, "title is required"},
		{"markup only title", func(r *models.CreateQuickSaleRequest) { r.Title = "<script>x()</script>" }, "title is required"},
		{"no products", func(r *models.CreateQuickSaleRequest) { r.Products = nil }, "products is required"},
		{"too many products", func(r *models.CreateQuickSaleRequest) { *r = tooMany }, "at most 20 products"},
		{"product without condition", func(r *models.CreateQuickSaleRequest) { r.Products[0].Condition = "" }, "products[0].condition is required"},
		{"bad email", func(r *models.CreateQuickSaleRequest) { r.SellerEmail = "not-an-email" }, "seller_email must be a valid email address"},
		{"ends before starts", func(r *models.CreateQuickSaleRequest) {
			starts := env.now.Add(3 * time.Hour)
			r.StartsAt = &starts
		}, "ends_at must be after starts_at"},
		{"ends in the past", func(r *models.CreateQuickSaleRequest) {
			starts := env.now.Add(-3 * time.Hour)
			r.StartsAt = &starts
			r.EndsAt = env.now.Add(-time.Hour)
		}, "ends_at must be in the future"},
		{"non positive reserve", func(r *models.CreateQuickSaleRequest) {
			zero := models.Money(0)
			r.ReservePrice = &zero
		}, "reserve_price must be greater than zero"},
		{"too many images", func(r *models.CreateQuickSaleRequest) {
			r.Products[1].Images = strings.Split(strings.Repeat("https://cdn.test/x.png ", 6), " ")[:6]
		}, "at most 5 allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate(env.now)
			tt.mutate(&req)
			_, err := env.svc.CreateSale(ctx, req, nil)
			require.ErrorIs(t, err, saleerrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	env.publisher.AssertNotCalled(t, "PublishSaleEvent", mock.Anything, mock.Anything)
}

func TestCreateSale_Success(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	req := validCreate(env.now)
	req.Title = "<b>Final-year</b> clear-out"
	reserve := cedis(40)
	req.ReservePrice = &reserve

	detail, err := env.svc.CreateSale(ctx, req, []quicksale.ImageUpload{
		{Product: 0, Filename: "lamp.png", Content: bytes.NewReader([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))},
	})
	require.NoError(t, err)

	assert.Equal(t, "Final-year clear-out", detail.Title)
	assert.Equal(t, models.SaleStatusActive, detail.Status)
	assert.Equal(t, env.now, detail.StartsAt)
	assert.Equal(t, countdown.Running, detail.Countdown.State)
	assert.Equal(t, int64(2), detail.Countdown.Hours)
	require.Len(t, detail.Products, 2)
	require.Len(t, detail.Products[0].Images, 1)
	assert.True(t, strings.HasPrefix(detail.Products[0].Images[0], "https://cdn.test/quick-sales/"+detail.ID+"/"))

	stored, err := env.store.GetSale(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, &reserve, stored.ReservePrice)

	assert.True(t, env.mr.Exists("sale_deadline:"+detail.ID))
	assert.Equal(t, 2*time.Hour, env.mr.TTL("sale_deadline:"+detail.ID))
	cached, err := env.mr.Get("sale_highest:" + detail.ID)
	require.NoError(t, err)
	assert.Equal(t, "none", cached)

	assert.Equal(t, []models.SaleEventType{models.EventSaleCreated}, publishedTypes(env.publisher))
}

func TestCreateSale_RejectsNonImageUpload(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CreateSale(context.Background(), validCreate(env.now), []quicksale.ImageUpload{
		{Product: 0, Filename: "notes.txt", Content: strings.NewReader("just some text")},
	})
	require.ErrorIs(t, err, saleerrors.ErrValidation)
	assert.Contains(t, saleerrors.Message(err), "notes.txt: unsupported image type")

	sales, err := env.store.ListSales(context.Background(), models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)

	_, err = env.svc.CreateSale(context.Background(), validCreate(env.now), []quicksale.ImageUpload{
		{Product: 7, Filename: "x.png", Content: strings.NewReader("")},
	})
	assert.ErrorIs(t, err, saleerrors.ErrValidation)
}

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestCreateSale_ChecksAllImagesBeforeUploading(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CreateSale(context.Background(), validCreate(env.now), []quicksale.ImageUpload{
		{Product: 0, Filename: "lamp.png", Content: bytes.NewReader(pngImage)},
		{Product: 1, Filename: "cooker.html", Content: strings.NewReader("<html></html>")},
	})
	require.ErrorIs(t, err, saleerrors.ErrValidation)
	assert.Contains(t, saleerrors.Message(err), "cooker.html")
	assert.Empty(t, env.uploader.keys)
}

func TestCreateSale_RemovesUploadsOnFailure(t *testing.T) {
	images := func() []quicksale.ImageUpload {
		return []quicksale.ImageUpload{
			{Product: 0, Filename: "lamp.png", Content: bytes.NewReader(pngImage)},
			{Product: 1, Filename: "cooker.png", Content: bytes.NewReader(pngImage)},
		}
	}

	t.Run("upload fails", func(t *testing.T) {
		env := setupService(t)
		env.uploader.failAt = 2

		_, err := env.svc.CreateSale(context.Background(), validCreate(env.now), images())
		require.ErrorContains(t, err, "bucket unavailable")
		require.Len(t, env.uploader.keys, 1)
		assert.Equal(t, env.uploader.keys, env.uploader.deleted)
	})

	t.Run("insert fails", func(t *testing.T) {
		env := setupService(t)
		env.svc.Store = brokenStore{Store: env.store}

		_, err := env.svc.CreateSale(context.Background(), validCreate(env.now), images())
		require.ErrorContains(t, err, "connection reset")
		require.Len(t, env.uploader.keys, 2)
		assert.Equal(t, env.uploader.keys, env.uploader.deleted)
		env.publisher.AssertNotCalled(t, "PublishSaleEvent", mock.Anything, mock.Anything)
	})
}

func TestPlaceBid_Flow(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	env.advance(time.Minute)
	first, err := env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	require.NoError(t, err)
	assert.Equal(t, cedis(50), first.BidAmount)
	assert.Equal(t, "0551234567", first.ContactNumber)

	cached, err := env.mr.Get("sale_highest:" + sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "5000", cached)

	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Esi", 40))
	require.ErrorIs(t, err, saleerrors.ErrBidTooLow)
	assert.ErrorIs(t, err, saleerrors.ErrValidation)

	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Esi", 50))
	assert.ErrorIs(t, err, saleerrors.ErrBidTooLow)

	env.advance(time.Minute)
	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Esi", 60))
	require.NoError(t, err)

	detail, err := env.svc.GetDetail(ctx, sale.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.BidCount)
	require.NotNil(t, detail.HighestBid)
	assert.Equal(t, "Esi", detail.HighestBid.BidderName)
	assert.Equal(t, "*******567", detail.HighestBid.ContactNumber)

	admin, err := env.svc.GetDetail(ctx, sale.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "0551234567", admin.Bids[0].ContactNumber)

	// SSE subscribers only ever see masked contacts
	var bidEvents int
	for _, e := range env.emitter.events {
		if e.Type == models.EventBidPlaced {
			bidEvents++
			assert.Equal(t, "*******567", e.Bid.ContactNumber)
		}
	}
	assert.Equal(t, 2, bidEvents)
}

func TestPlaceBid_RequestValidation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  models.PlaceBidRequest
		want string
	}{
		{"missing name", models.PlaceBidRequest{BidAmount: cedis(10), ContactNumber: "0551234567"}, "bidder_name is required"},
		{"missing amount", models.PlaceBidRequest{BidderName: "Kofi", ContactNumber: "0551234567"}, "bid_amount is required"},
		{"short contact", models.PlaceBidRequest{BidderName: "Kofi", BidAmount: cedis(10), ContactNumber: "055"}, "contact_number must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.PlaceBid(ctx, sale.ID, tt.req)
			require.ErrorIs(t, err, saleerrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlaceBid_StaleCacheIsConflict(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	// another instance accepted a bid that this cache has not seen
	other := &models.QuickSaleBid{ID: "b-other", SaleID: sale.ID, BidderName: "Yaw", BidAmount: cedis(50), ContactNumber: "0240000000", CreatedAt: env.now}
	require.NoError(t, env.store.PlaceBid(ctx, other, nil, env.now))

	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	require.ErrorIs(t, err, saleerrors.ErrOutbid)
	assert.ErrorIs(t, err, saleerrors.ErrConflict)

	// the rejection refreshed the cache, so the same amount is now simply too low
	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	assert.ErrorIs(t, err, saleerrors.ErrBidTooLow)
}

func TestPlaceBid_ClosedSale(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	assert.ErrorIs(t, err, saleerrors.ErrSaleEnded)

	_, err = env.svc.PlaceBid(ctx, "9b7a3c1e-0000-4000-8000-000000000000", bidReq("Kofi", 50))
	assert.ErrorIs(t, err, saleerrors.ErrSaleNotFound)
}

func TestFinalize_PublishesOnce(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	require.NoError(t, err)
	env.advance(time.Second)
	winner, err := env.svc.PlaceBid(ctx, sale.ID, bidReq("Esi", 60))
	require.NoError(t, err)

	result, err := env.svc.Finalize(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWon, result.Outcome)
	assert.Equal(t, &winner.ID, result.WinningBidID)
	assert.False(t, result.AlreadyFinalized)
	assert.False(t, env.mr.Exists("sale_deadline:"+sale.ID))
	assert.False(t, env.mr.Exists("sale_highest:"+sale.ID))

	again, err := env.svc.Finalize(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinalized)
	assert.Equal(t, result.WinningBidID, again.WinningBidID)

	assert.Equal(t, []models.SaleEventType{
		models.EventSaleCreated, models.EventBidPlaced, models.EventBidPlaced, models.EventSaleFinalized,
	}, publishedTypes(env.publisher))

	detail, err := env.svc.GetDetail(ctx, sale.ID, false)
	require.NoError(t, err)
	assert.Equal(t, countdown.Ended, detail.Countdown.State)
}

func TestAutoFinalize(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	// deadline fired early relative to a rescheduled end
	env.svc.AutoFinalize(ctx, sale.ID)
	stored, err := env.store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFinalized())
	assert.True(t, env.mr.Exists("sale_deadline:"+sale.ID))

	env.advance(2 * time.Hour)
	env.svc.AutoFinalize(ctx, sale.ID)
	stored, err = env.store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinalized())
	assert.Equal(t, models.OutcomeNoBids, stored.FinalizeOutcome)

	// unknown sale is ignored
	env.svc.AutoFinalize(ctx, "9b7a3c1e-0000-4000-8000-000000000000")
}

func TestFinalizeExpired(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	short := validCreate(env.now)
	short.EndsAt = env.now.Add(time.Minute)
	a, err := env.svc.CreateSale(ctx, short, nil)
	require.NoError(t, err)
	b, err := env.svc.CreateSale(ctx, short, nil)
	require.NoError(t, err)
	long, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	env.advance(5 * time.Minute)
	closed, err := env.svc.FinalizeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	for _, id := range []string{a.ID, b.ID} {
		s, err := env.store.GetSale(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SaleStatusEnded, s.Status)
	}
	s, err := env.store.GetSale(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusActive, s.Status)

	closed, err = env.svc.FinalizeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestUpdateSale(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	_, err = env.svc.UpdateSale(ctx, sale.ID, models.UpdateQuickSaleRequest{})
	assert.ErrorIs(t, err, saleerrors.ErrValidation)

	bogus := models.SaleStatus("paused")
	_, err = env.svc.UpdateSale(ctx, sale.ID, models.UpdateQuickSaleRequest{Status: &bogus})
	assert.ErrorIs(t, err, saleerrors.ErrValidation)

	later := env.now.Add(5 * time.Hour)
	updated, err := env.svc.UpdateSale(ctx, sale.ID, models.UpdateQuickSaleRequest{EndsAt: &later})
	require.NoError(t, err)
	assert.Equal(t, later, updated.EndsAt)
	assert.Equal(t, 5*time.Hour, env.mr.TTL("sale_deadline:"+sale.ID))

	cancelled := models.SaleStatusCancelled
	updated, err = env.svc.UpdateSale(ctx, sale.ID, models.UpdateQuickSaleRequest{Status: &cancelled})
	require.NoError(t, err)
	assert.Nil(t, updated.WinningBidID)
	assert.False(t, env.mr.Exists("sale_deadline:"+sale.ID))

	_, err = env.svc.PlaceBid(ctx, sale.ID, bidReq("Kofi", 50))
	assert.ErrorIs(t, err, saleerrors.ErrSaleCancelled)
}

func TestDeleteSale(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	sale, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteSale(ctx, sale.ID))
	assert.False(t, env.mr.Exists("sale_deadline:"+sale.ID))
	assert.False(t, env.mr.Exists("sale_highest:"+sale.ID))

	_, err = env.svc.GetDetail(ctx, sale.ID, false)
	assert.ErrorIs(t, err, saleerrors.ErrSaleNotFound)

	assert.ErrorIs(t, env.svc.DeleteSale(ctx, sale.ID), saleerrors.ErrSaleNotFound)
}

func TestListActive(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	open, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)
	closed, err := env.svc.CreateSale(ctx, validCreate(env.now), nil)
	require.NoError(t, err)
	_, err = env.svc.Finalize(ctx, closed.ID)
	require.NoError(t, err)

	sales, err := env.svc.ListActive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, open.ID, sales[0].ID)
	assert.Equal(t, 2, sales[0].ProductCount)

	all, err := env.svc.ListAll(ctx, models.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := models.SaleStatus("archived")
	_, err = env.svc.ListAll(ctx, models.ListFilter{Status: &bogus})
	assert.ErrorIs(t, err, saleerrors.ErrValidation)
}
