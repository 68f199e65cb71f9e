// Package audit implements the append-only scan trail and its correlation
// with the orders those scans produced.
package audit

import (
	"context"
	"time"
)

// Context identifies the UI flow a scan originated from.
type Context string

const (
	ContextMainScanner  Context = "main_scanner"
	ContextPOS          Context = "pos"
	ContextVerification Context = "verification"
	ContextCreateOrder  Context = "create_order"
)

// Record is a single scan attempt. Records are immutable once stored: the
// user's display name is frozen at scan time so the trail stays stable even
// if the operator is later renamed or removed. ProductID is zero for failed
// lookups; the scanned term is always preserved.
type Record struct {
	ID              int64
	UserID          int64
	UserDisplayName string
	ProductID       int64
	ProductSKU      string
	ProductName     string
	ScanContext     Context
	SearchTerm      string
	Success         bool
	CreatedAt       time.Time
}

// ScanRef is the minimal projection used when linking scans to orders.
type ScanRef struct {
	ID        int64
	ProductID int64
}

// Filter narrows List queries. Zero values mean "no restriction".
type Filter struct {
	From        time.Time
	To          time.Time
	UserID      int64
	ScanContext Context
	Search      string
	Limit       int
	Offset      int
}

// RetentionDays is how long scan records are kept before the daily purge
// removes them.
const RetentionDays = 90

// Store is the durable sink for scan records.
type Store interface {
	Insert(ctx context.Context, rec *Record) (int64, error)
	InsertBatch(ctx context.Context, recs []Record) error
	// RecentProductScans returns successful scans by the user for any of the
	// given products since the cutoff, newest first.
	RecentProductScans(ctx context.Context, userID int64, productIDs []int64, since time.Time) ([]ScanRef, error)
	// UnlinkedScansInWindow returns successful scans by the user for the
	// given products inside [from, to] that have no order link yet.
	UnlinkedScansInWindow(ctx context.Context, userID int64, productIDs []int64, from, to time.Time) ([]ScanRef, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context, f Filter) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LinkStore persists order-scan associations. Inserting an existing
// (orderID, scanAuditID) pair must be a no-op, not an error, so concurrent
// and repeated linking stays idempotent.
type LinkStore interface {
	InsertLinks(ctx context.Context, orderID int64, scans []ScanRef) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
