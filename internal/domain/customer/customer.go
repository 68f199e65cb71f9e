package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer matches the given email.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered buyer in the platform directory.
type Customer struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// DisplayName returns "First Last", falling back to the email when both name
// parts are empty.
func (c *Customer) DisplayName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Email
	}
	return name
}

// Repository provides customer directory lookups.
type Repository interface {
	// FindByEmail resolves an exact email match. Returns ErrNotFound when no
	// registered customer has the address.
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	// Search matches customers whose email contains the fragment,
	// capped at limit results.
	Search(ctx context.Context, fragment string, limit int) ([]Customer, error)
}
