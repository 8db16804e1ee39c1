//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ktu-bizconnect/internal/database/migrations"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale/db"
	"ktu-bizconnect/internal/saleerrors"
)

func setupPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bizconnect",
				"POSTGRES_PASSWORD": "bizconnect",
				"POSTGRES_DB":       "bizconnect",
			},
			// the server restarts once after initdb
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://bizconnect:bizconnect@%s:%s/bizconnect?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sqldb.PingContext(ctx) == nil }, 10*time.Second, 100*time.Millisecond)

	runner := migrations.NewRunner(sqldb, logger.Discard())
	require.NoError(t, runner.MigrateUp())
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, runner.Close())

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return db.New(bunDB)
}

func TestPostgres_ConcurrentBidsKeepOneHighest(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	sale := seedSale(t, store, nil)

	const bidders = 12
	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// everyone saw an empty sale
			errs[i] = store.PlaceBid(ctx, newBid(sale.ID, fmt.Sprintf("bidder-%d", i), int64(50+i), baseNow), nil, baseNow)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, saleerrors.ErrOutbid)
	}
	// the first bid to take the row lock wins, the rest were outbid after their observation
	require.Equal(t, 1, accepted)

	bids, err := store.GetBids(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, bids, accepted)
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i-1].BidAmount, bids[i].BidAmount, "stored bids must be strictly increasing")
	}

	highest, err := store.GetHighestBid(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, bids[0].ID, highest.ID)
}

func TestPostgres_FinalizeAndDelete(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	sale := seedSale(t, store, func(s *models.QuickSale) { s.ReservePrice = money(30) })

	require.NoError(t, store.PlaceBid(ctx, newBid(sale.ID, "Kofi", 35, baseNow), nil, baseNow))
	winner := newBid(sale.ID, "Esi", 60, baseNow.Add(time.Minute))
	require.NoError(t, store.PlaceBid(ctx, winner, money(35), winner.CreatedAt))

	result, err := store.Finalize(ctx, sale.ID, baseNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWon, result.Outcome)
	require.NotNil(t, result.WinningBidID)
	assert.Equal(t, winner.ID, *result.WinningBidID)

	again, err := store.Finalize(ctx, sale.ID, baseNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinalized)

	products, err := store.GetProducts(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []string{"https://img/1.png"}, products[0].Images)

	// the winner reference must not block deleting the sale with its bids
	require.NoError(t, store.DeleteSale(ctx, sale.ID))
	_, err = store.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, saleerrors.ErrSaleNotFound)
}

func TestPostgres_SchemaRejectsForeignWinner(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	a := seedSale(t, store, nil)
	b := seedSale(t, store, nil)

	foreign := newBid(b.ID, "Yaw", 20, baseNow)
	require.NoError(t, store.PlaceBid(ctx, foreign, nil, baseNow))

	_, err := store.Bun.NewUpdate().
		Model((*models.QuickSale)(nil)).
		Set("winning_bid_id = ?", foreign.ID).
		Set("finalized_at = ?", baseNow).
		Where("id = ?", a.ID).
		Exec(ctx)
	assert.Error(t, err)
}
