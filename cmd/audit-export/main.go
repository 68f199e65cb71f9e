// Command audit-export dumps the scan audit trail and its order links to
// gzip-compressed CSV files, one per table, written concurrently.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/repository"
)

const pageSize = 5000

func main() {
	var (
		databaseURL string
		outDir      string
		daysBack    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out-dir", ".", "directory for the exported files")
	flag.IntVar(&daysBack, "days-back", audit.RetentionDays, "how many days of records to export")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outDir, daysBack); err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("export completed")
}

func run(ctx context.Context, databaseURL, outDir string, daysBack int) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	from := time.Now().AddDate(0, 0, -daysBack)
	stamp := time.Now().Format("20060102")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		path := filepath.Join(outDir, fmt.Sprintf("scan-audits-%s.csv.gz", stamp))
		n, err := exportScans(ctx, pool, path, from)
		if err != nil {
			return errors.Wrap(err, "export scan audits")
		}
		slog.Info("wrote scan audits", slog.String("file", path), slog.Int("records", n))
		return nil
	})
	g.Go(func() error {
		path := filepath.Join(outDir, fmt.Sprintf("order-scans-%s.csv.gz", stamp))
		n, err := exportLinks(ctx, pool, path, from)
		if err != nil {
			return errors.Wrap(err, "export order scans")
		}
		slog.Info("wrote order scans", slog.String("file", path), slog.Int("records", n))
		return nil
	})
	return g.Wait()
}

// exportScans pages through the audit store and streams each record as a CSV
// row through a parallel gzip writer.
func exportScans(ctx context.Context, pool *pgxpool.Pool, path string, from time.Time) (int, error) {
	audits := repository.NewScanAuditRepository(pool)

	w, cw, closeAll, err := openCSVGz(path)
	if err != nil {
		return 0, err
	}
	defer closeAll()

	header := []string{"id", "user_id", "user_display_name", "product_id", "product_sku",
		"product_name", "scan_context", "search_term", "success", "created_at"}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	total := 0
	for offset := 0; ; offset += pageSize {
		recs, err := audits.List(ctx, audit.Filter{From: from, Limit: pageSize, Offset: offset})
		if err != nil {
			return total, err
		}
		for _, rec := range recs {
			row := []string{
				strconv.FormatInt(rec.ID, 10),
				strconv.FormatInt(rec.UserID, 10),
				rec.UserDisplayName,
				strconv.FormatInt(rec.ProductID, 10),
				rec.ProductSKU,
				rec.ProductName,
				string(rec.ScanContext),
				rec.SearchTerm,
				strconv.FormatBool(rec.Success),
				rec.CreatedAt.Format(time.RFC3339),
			}
			if err := cw.Write(row); err != nil {
				return total, err
			}
		}
		total += len(recs)
		if len(recs) < pageSize {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, err
	}
	return total, w.Close()
}

func exportLinks(ctx context.Context, pool *pgxpool.Pool, path string, from time.Time) (int, error) {
	w, cw, closeAll, err := openCSVGz(path)
	if err != nil {
		return 0, err
	}
	defer closeAll()

	if err := cw.Write([]string{"id", "order_id", "scan_audit_id", "product_id", "created_at"}); err != nil {
		return 0, err
	}

	rows, err := pool.Query(ctx, `SELECT id, order_id, scan_audit_id, product_id, created_at
		FROM order_scans WHERE created_at >= $1 ORDER BY id`, from)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var (
			id, orderID, scanID, productID int64
			createdAt                      time.Time
		)
		if err := rows.Scan(&id, &orderID, &scanID, &productID, &createdAt); err != nil {
			return total, err
		}
		row := []string{
			strconv.FormatInt(id, 10),
			strconv.FormatInt(orderID, 10),
			strconv.FormatInt(scanID, 10),
			strconv.FormatInt(productID, 10),
			createdAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return total, err
		}
		total++
	}
	if err := rows.Err(); err != nil {
		return total, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, err
	}
	return total, w.Close()
}

// openCSVGz opens path for writing and layers a CSV writer on a parallel
// gzip writer. closeAll is safe to call after an explicit Close.
func openCSVGz(path string) (*pgzip.Writer, *csv.Writer, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, nil, err
	}
	gz := pgzip.NewWriter(f)
	cw := csv.NewWriter(gz)
	closeAll := func() {
		_ = gz.Close()
		_ = f.Close()
	}
	return gz, cw, closeAll, nil
}
