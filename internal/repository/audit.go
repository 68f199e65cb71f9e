package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/audit"
)

const (
	insertScanAuditSQL = `INSERT INTO scan_audits (user_id, user_display_name, product_id,
		product_sku, product_name, scan_context, search_term, scan_success, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`

	recentProductScansSQL = `SELECT id, product_id FROM scan_audits
	WHERE user_id = $1 AND product_id = ANY($2) AND scan_success AND created_at >= $3
	ORDER BY created_at DESC`

	unlinkedScansInWindowSQL = `SELECT sa.id, sa.product_id FROM scan_audits sa
	WHERE sa.user_id = $1 AND sa.product_id = ANY($2) AND sa.scan_success
		AND sa.created_at BETWEEN $3 AND $4
		AND NOT EXISTS (SELECT 1 FROM order_scans os WHERE os.scan_audit_id = sa.id)
	ORDER BY sa.created_at DESC`

	purgeScanAuditsSQL = `DELETE FROM scan_audits WHERE created_at < $1`
)

var _ audit.Store = (*ScanAuditRepository)(nil)

// ScanAuditRepository implements audit.Store backed by PostgreSQL.
type ScanAuditRepository struct {
	pool *pgxpool.Pool
}

// NewScanAuditRepository returns a ScanAuditRepository that uses the given pool.
func NewScanAuditRepository(pool *pgxpool.Pool) *ScanAuditRepository {
	return &ScanAuditRepository{pool: pool}
}

// Insert stores a single scan record and returns its ID.
func (r *ScanAuditRepository) Insert(ctx context.Context, rec *audit.Record) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, insertScanAuditSQL,
		rec.UserID, rec.UserDisplayName, nullIfZero(rec.ProductID),
		rec.ProductSKU, rec.ProductName, string(rec.ScanContext),
		rec.SearchTerm, rec.Success, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting scan audit: %w", err)
	}
	return id, nil
}

// InsertBatch stores a flushed batch of scan records in one round trip.
func (r *ScanAuditRepository) InsertBatch(ctx context.Context, recs []audit.Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertScanAuditSQL,
			rec.UserID, rec.UserDisplayName, nullIfZero(rec.ProductID),
			rec.ProductSKU, rec.ProductName, string(rec.ScanContext),
			rec.SearchTerm, rec.Success, rec.CreatedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting scan audit batch: %w", err)
	}
	return nil
}

// RecentProductScans returns the user's successful scans of the given products
// since the cutoff, newest first.
func (r *ScanAuditRepository) RecentProductScans(ctx context.Context, userID int64, productIDs []int64, since time.Time) ([]audit.ScanRef, error) {
	rows, err := r.pool.Query(ctx, recentProductScansSQL, userID, productIDs, since)
	if err != nil {
		return nil, fmt.Errorf("querying recent scans: %w", err)
	}
	return pgx.CollectRows(rows, scanScanRef)
}

// UnlinkedScansInWindow returns the user's successful, not-yet-linked scans of
// the given products inside [from, to].
func (r *ScanAuditRepository) UnlinkedScansInWindow(ctx context.Context, userID int64, productIDs []int64, from, to time.Time) ([]audit.ScanRef, error) {
	rows, err := r.pool.Query(ctx, unlinkedScansInWindowSQL, userID, productIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying unlinked scans: %w", err)
	}
	return pgx.CollectRows(rows, scanScanRef)
}

// List returns scan records matching the filter, newest first.
func (r *ScanAuditRepository) List(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	where, args := auditFilterClauses(f)
	query := `SELECT id, user_id, user_display_name, COALESCE(product_id, 0), product_sku,
		product_name, scan_context, search_term, scan_success, created_at
	FROM scan_audits` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scan audits: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Record, error) {
		var (
			rec     audit.Record
			scanCtx string
		)
		err := row.Scan(
			&rec.ID, &rec.UserID, &rec.UserDisplayName, &rec.ProductID, &rec.ProductSKU,
			&rec.ProductName, &scanCtx, &rec.SearchTerm, &rec.Success, &rec.CreatedAt,
		)
		rec.ScanContext = audit.Context(scanCtx)
		return rec, err
	})
}

// Count returns the number of scan records matching the filter.
func (r *ScanAuditRepository) Count(ctx context.Context, f audit.Filter) (int, error) {
	where, args := auditFilterClauses(f)
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM scan_audits"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting scan audits: %w", err)
	}
	return n, nil
}

// PurgeOlderThan deletes scan records created before the cutoff and returns
// how many were removed.
func (r *ScanAuditRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, purgeScanAuditsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging scan audits: %w", err)
	}
	return tag.RowsAffected(), nil
}

func auditFilterClauses(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= "+arg(f.To))
	}
	if f.UserID != 0 {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.ScanContext != "" {
		conds = append(conds, "scan_context = "+arg(string(f.ScanContext)))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(search_term ILIKE "+p+" OR product_sku ILIKE "+p+" OR product_name ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanScanRef(row pgx.CollectableRow) (audit.ScanRef, error) {
	var ref audit.ScanRef
	err := row.Scan(&ref.ID, &ref.ProductID)
	return ref, err
}
