// Command migrate manages the quick-sale PostgreSQL schema.
//
//	migrate up | down | version
//	migrate to <version>
//	migrate force <version>
//	migrate seed
//	migrate hash-password <password>
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ktu-bizconnect/internal/auth"
	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/database/migrations"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale/db"
	"ktu-bizconnect/internal/utils"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [--dsn DSN] up|down|version|to N|force N|seed|hash-password PASSWORD\n")
	pflag.PrintDefaults()
}

func main() {
	cfg := config.Load()

	dsn := pflag.String("dsn", cfg.Database.PostgresDSN(), "PostgreSQL connection string")
	timeout := pflag.Duration("timeout", 30*time.Second, "connection timeout")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// needs no database
	if args[0] == "hash-password" {
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		hash, err := auth.HashPassword(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	log := logger.NewLogger()
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(*dsn)))
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	runner := migrations.NewRunner(sqldb, log)
	defer runner.Close()

	if err := run(ctx, runner, sqldb, args, log); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	log.Info("MIGRATION", "✅ Done.")
}

func run(ctx context.Context, runner *migrations.Runner, sqldb *sql.DB, args []string, log *logger.Logger) error {
	switch args[0] {
	case "up":
		return runner.MigrateUp()
	case "down":
		return runner.MigrateDown()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	case "to", "force":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a version", args[0])
		}
		version, err := strconv.Atoi(args[1])
		if err != nil || version < 0 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if args[0] == "force" {
			return runner.Force(version)
		}
		return runner.MigrateTo(uint(version))
	case "seed":
		if err := runner.MigrateUp(); err != nil {
			return err
		}
		return seedData(ctx, bun.NewDB(sqldb, pgdialect.New()), log)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// seedData creates one running demo sale with a couple of bids.
func seedData(ctx context.Context, bunDB *bun.DB, log *logger.Logger) error {
	store := db.New(bunDB)
	now := utils.Now()

	reserve := models.Money(15000)
	sale := &models.QuickSale{
		ID:            utils.GenerateSaleID(),
		Title:         "Final-year hostel clear-out",
		Description:   "Moving out of Brunei hostel, everything must go.",
		SellerName:    "Ama Owusu",
		SellerContact: "0201234567",
		SellerEmail:   "ama.owusu@st.ktu.edu.gh",
		ReservePrice:  &reserve,
		StartsAt:      now,
		EndsAt:        now.Add(24 * time.Hour),
		Status:        models.SaleStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	products := []models.QuickSaleProduct{
		{ID: utils.GenerateProductID(), SaleID: sale.ID, Position: 0, Title: "Study desk", Condition: "good", Images: []string{}, CreatedAt: now},
		{ID: utils.GenerateProductID(), SaleID: sale.ID, Position: 1, Title: "Electric kettle", Condition: "fair", Images: []string{}, CreatedAt: now},
	}
	if err := store.CreateSale(ctx, sale, products); err != nil {
		return fmt.Errorf("seed sale: %w", err)
	}

	var observed *models.Money
	for i, amount := range []models.Money{15000, 18500} {
		bid := &models.QuickSaleBid{
			ID:            utils.GenerateBidID(),
			SaleID:        sale.ID,
			BidderName:    fmt.Sprintf("Demo bidder %d", i+1),
			BidAmount:     amount,
			ContactNumber: "0551112223",
			CreatedAt:     now.Add(time.Duration(i) * time.Minute),
		}
		if err := store.PlaceBid(ctx, bid, observed, bid.CreatedAt); err != nil {
			return fmt.Errorf("seed bid: %w", err)
		}
		observed = &bid.BidAmount
	}

	log.LogSale("SEED", sale.ID, "Demo quick sale created")
	return nil
}
