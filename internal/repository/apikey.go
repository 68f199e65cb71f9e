package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/auth"
)

const getAPIKeyByHashSQL = `SELECT id, key_hash, display_name, operator_id, scopes
FROM api_keys WHERE key_hash = $1 AND active`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.Operator, error) {
	var op auth.Operator
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).
		Scan(&op.KeyID, &op.KeyHash, &op.DisplayName, &op.OperatorID, &op.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &op, nil
}
