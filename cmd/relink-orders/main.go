// Command relink-orders runs the retroactive scan-to-order linking pass over
// recent orders. Safe to re-run: already-linked scans are skipped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/repository"
)

func main() {
	var (
		databaseURL string
		daysBack    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&daysBack, "days-back", 7, "how many days of orders to process")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if daysBack < 1 || daysBack > audit.RetentionDays {
		slog.Error("days-back must be between 1 and the retention period",
			slog.Int("days_back", daysBack),
			slog.Int("retention_days", audit.RetentionDays))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, daysBack); err != nil {
		slog.Error("relink failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, daysBack int) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	lg, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer lg.Sync() //nolint:errcheck // best effort on exit

	linker := audit.NewLinker(
		repository.NewScanAuditRepository(pool),
		repository.NewOrderScanRepository(pool),
		repository.NewOrderRepository(pool),
		repository.NewCustomerRepository(pool),
		lg,
	)

	stats, err := linker.RelinkHistoricalOrders(ctx, daysBack)
	if err != nil {
		return errors.Wrap(err, "relink")
	}

	slog.Info("relink finished",
		slog.Int("orders_processed", stats.OrdersProcessed),
		slog.Int("orders_with_links", stats.OrdersWithLinks),
		slog.Int("scans_linked", stats.ScansLinked))
	return nil
}
