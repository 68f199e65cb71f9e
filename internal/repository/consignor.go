package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/consignor"
)

const getConsignorByNumberSQL = `SELECT id, consignor_number, name
FROM consignors WHERE consignor_number = $1`

var _ consignor.Repository = (*ConsignorRepository)(nil)

// ConsignorRepository implements consignor.Repository backed by PostgreSQL.
type ConsignorRepository struct {
	pool *pgxpool.Pool
}

// NewConsignorRepository returns a ConsignorRepository that uses the given pool.
func NewConsignorRepository(pool *pgxpool.Pool) *ConsignorRepository {
	return &ConsignorRepository{pool: pool}
}

// FindByNumber resolves a consignor by their public number.
func (r *ConsignorRepository) FindByNumber(ctx context.Context, number string) (*consignor.Consignor, error) {
	var c consignor.Consignor
	err := r.pool.QueryRow(ctx, getConsignorByNumberSQL, strings.TrimSpace(number)).
		Scan(&c.ID, &c.Number, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consignor.ErrNotFound
		}
		return nil, fmt.Errorf("finding consignor %q: %w", number, err)
	}
	return &c, nil
}
