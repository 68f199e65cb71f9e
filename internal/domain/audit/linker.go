package audit

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const (
	// RecentScanWindow is how far back prospective linking looks for scans
	// right after an order is placed.
	RecentScanWindow = 10 * time.Minute
	// PreOrderWindow is how far before an order's creation retroactive
	// linking searches for matching scans.
	PreOrderWindow = 30 * time.Minute
)

// OrderInfo is the slice of an order the linker needs. CustomerID is zero for
// guest orders.
type OrderInfo struct {
	ID           int64
	CreatedAt    time.Time
	CustomerID   int64
	BillingEmail string
	ProductIDs   []int64
}

// OrderSource lists orders for retroactive linking.
type OrderSource interface {
	ListOrdersSince(ctx context.Context, since time.Time) ([]OrderInfo, error)
}

// CustomerResolver maps a billing email to a customer ID. Returns zero when
// no registered customer matches.
type CustomerResolver interface {
	FindCustomerIDByEmail(ctx context.Context, email string) (int64, error)
}

// LinkStats reports the outcome of a prospective linking pass.
type LinkStats struct {
	ScansMatched int `json:"scans_matched"`
	ScansLinked  int `json:"scans_linked"`
}

// RelinkStats reports the outcome of a retroactive linking run.
type RelinkStats struct {
	OrdersProcessed int `json:"orders_processed"`
	OrdersWithLinks int `json:"orders_with_links"`
	ScansLinked     int `json:"scans_linked"`
}

// Linker correlates scan records with the orders they contributed to, using
// user identity, product identity, and time-window heuristics.
type Linker struct {
	scans     Store
	links     LinkStore
	orders    OrderSource
	customers CustomerResolver
	lg        *zap.Logger
	now       func() time.Time
}

// NewLinker builds a Linker over the audit stores and order/customer sources.
func NewLinker(scans Store, links LinkStore, orders OrderSource, customers CustomerResolver, lg *zap.Logger) *Linker {
	return &Linker{
		scans:     scans,
		links:     links,
		orders:    orders,
		customers: customers,
		lg:        lg,
		now:       time.Now,
	}
}

// LinkScansToOrder associates the user's recent scans of the ordered products
// with a freshly placed order. Finding no matching scans is a normal outcome:
// items can enter an order without being scanned. Duplicate link inserts are
// ignored by the store, so racing checkouts cannot double-link.
func (l *Linker) LinkScansToOrder(ctx context.Context, orderID int64, productIDs []int64, userID int64) (LinkStats, error) {
	var stats LinkStats
	if len(productIDs) == 0 {
		return stats, nil
	}

	since := l.now().Add(-RecentScanWindow)
	scans, err := l.scans.RecentProductScans(ctx, userID, productIDs, since)
	if err != nil {
		return stats, errors.Wrap(err, "query recent scans")
	}
	stats.ScansMatched = len(scans)
	if len(scans) == 0 {
		return stats, nil
	}

	linked, err := l.links.InsertLinks(ctx, orderID, scans)
	if err != nil {
		return stats, errors.Wrap(err, "insert order scan links")
	}
	stats.ScansLinked = linked

	l.lg.Info("linked scans to order",
		zap.Int64("order_id", orderID),
		zap.Int("matched", stats.ScansMatched),
		zap.Int("linked", stats.ScansLinked),
	)
	return stats, nil
}

// RelinkHistoricalOrders walks orders created in the past daysBack days and
// links each to the not-yet-linked scans made by the responsible user in the
// thirty minutes before the order. Each run reads the live linked state, so
// interrupting and re-running converges instead of duplicating: a second
// immediate run links nothing.
func (l *Linker) RelinkHistoricalOrders(ctx context.Context, daysBack int) (RelinkStats, error) {
	var stats RelinkStats

	since := l.now().AddDate(0, 0, -daysBack)
	orders, err := l.orders.ListOrdersSince(ctx, since)
	if err != nil {
		return stats, errors.Wrap(err, "list orders")
	}

	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.OrdersProcessed++

		userID := o.CustomerID
		if userID == 0 && o.BillingEmail != "" {
			userID, err = l.customers.FindCustomerIDByEmail(ctx, o.BillingEmail)
			if err != nil {
				return stats, errors.Wrapf(err, "resolve customer for order %d", o.ID)
			}
		}
		if userID == 0 {
			// No identity to correlate on; skip as unlinkable.
			continue
		}

		if len(o.ProductIDs) == 0 {
			continue
		}

		from := o.CreatedAt.Add(-PreOrderWindow)
		scans, err := l.scans.UnlinkedScansInWindow(ctx, userID, o.ProductIDs, from, o.CreatedAt)
		if err != nil {
			return stats, errors.Wrapf(err, "query scans for order %d", o.ID)
		}
		if len(scans) == 0 {
			continue
		}

		linked, err := l.links.InsertLinks(ctx, o.ID, scans)
		if err != nil {
			return stats, errors.Wrapf(err, "link scans for order %d", o.ID)
		}
		if linked > 0 {
			stats.OrdersWithLinks++
			stats.ScansLinked += linked
		}
	}

	l.lg.Info("retroactive relink finished",
		zap.Int("orders_processed", stats.OrdersProcessed),
		zap.Int("orders_with_links", stats.OrdersWithLinks),
		zap.Int("scans_linked", stats.ScansLinked),
	)
	return stats, nil
}
