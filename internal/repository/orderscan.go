package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/audit"
)

const (
	insertOrderScanSQL = `INSERT INTO order_scans (order_id, scan_audit_id, product_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (order_id, scan_audit_id) DO NOTHING`

	purgeOrderScansSQL = `DELETE FROM order_scans WHERE created_at < $1`
)

var _ audit.LinkStore = (*OrderScanRepository)(nil)

// OrderScanRepository implements audit.LinkStore backed by PostgreSQL.
// Duplicate (order, scan) pairs are silently ignored so relinking is
// idempotent.
type OrderScanRepository struct {
	pool *pgxpool.Pool
}

// NewOrderScanRepository returns an OrderScanRepository that uses the given pool.
func NewOrderScanRepository(pool *pgxpool.Pool) *OrderScanRepository {
	return &OrderScanRepository{pool: pool}
}

// InsertLinks associates the scans with the order and returns how many rows
// were actually inserted, excluding pairs that already existed.
func (r *OrderScanRepository) InsertLinks(ctx context.Context, orderID int64, scans []audit.ScanRef) (int, error) {
	if len(scans) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, s := range scans {
		batch.Queue(insertOrderScanSQL, orderID, s.ID, s.ProductID)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int
	for range scans {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting order scan link: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// PurgeOlderThan deletes links created before the cutoff and returns how many
// were removed.
func (r *OrderScanRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, purgeOrderScansSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging order scan links: %w", err)
	}
	return tag.RowsAffected(), nil
}
