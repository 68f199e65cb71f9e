package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/customer"
)

const (
	getCustomerByEmailSQL = `SELECT id, email, first_name, last_name
	FROM customers WHERE lower(email) = lower($1)`

	searchCustomersSQL = `SELECT id, email, first_name, last_name
	FROM customers WHERE email ILIKE '%' || $1 || '%'
	ORDER BY email LIMIT $2`

	getCustomerIDByEmailSQL = `SELECT id FROM customers WHERE lower(email) = lower($1)`
)

var (
	_ customer.Repository    = (*CustomerRepository)(nil)
	_ audit.CustomerResolver = (*CustomerRepository)(nil)
)

// CustomerRepository implements customer.Repository backed by PostgreSQL. It
// also resolves billing emails to customer IDs for the scan linker.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindByEmail resolves an exact (case-insensitive) email match.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByEmailSQL, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("finding customer by email: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer by email: %w", err)
	}
	return &c, nil
}

// Search matches customers whose email contains fragment, capped at limit.
func (r *CustomerRepository) Search(ctx context.Context, fragment string, limit int) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, searchCustomersSQL, fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("searching customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// FindCustomerIDByEmail returns the matching customer's ID, or zero when the
// address belongs to no registered customer.
func (r *CustomerRepository) FindCustomerIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, getCustomerIDByEmailSQL, strings.TrimSpace(email)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolving customer id by email: %w", err)
	}
	return id, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName)
	return c, err
}
