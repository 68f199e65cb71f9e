package consignor

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a consignor number does not exist.
var ErrNotFound = errors.New("consignor not found")

// Consignor is a seller whose inventory the store carries. Backlog sales are
// attributed to a consignor by their number before the items are catalogued.
type Consignor struct {
	ID     int64
	Number string
	Name   string
}

// Repository provides consignor lookups.
type Repository interface {
	FindByNumber(ctx context.Context, number string) (*Consignor, error)
}
