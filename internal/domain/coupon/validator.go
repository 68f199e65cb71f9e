package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a coupon code to a usable coupon, checking expiry and
// usage limits at the time of the call. Checkout revalidates through the same
// interface so a coupon that expired between cart build and checkout is
// rejected with the precise reason.
type Validator interface {
	Validate(ctx context.Context, code string) (*Coupon, error)
}

// RepoValidator implements Validator against a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon and checks that it is still usable. It returns
// ErrNotFound, ErrExpired, or ErrUsageLimitReached for the distinct failure
// modes so callers can surface specific messages.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ExpiresAt != nil && v.now().After(*c.ExpiresAt) {
		return nil, ErrExpired
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	return c, nil
}
