package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for unknown, inactive, or mismatched API keys.
var ErrUnauthorized = errors.New("unauthorized")

// Operator is the authenticated identity behind an API key. The scanner
// stations authenticate with per-station keys; OperatorID and DisplayName
// feed the audit trail for every scan made through that key.
type Operator struct {
	KeyID       string
	KeyHash     string
	OperatorID  int64
	DisplayName string
	Scopes      []string
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Operator, error)
}
