package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource loads a tenant's catalog from the products table of a
// shared Postgres instance. Used by tenants whose storefront already keeps
// inventory there; file sources remain the default.
type PostgresSource struct {
	Pool   *pgxpool.Pool
	Tenant string
}

// NewPostgresSource connects a pool for catalog loading.
func NewPostgresSource(ctx context.Context, dsn, tenant string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting catalog database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging catalog database: %w", err)
	}
	return &PostgresSource{Pool: pool, Tenant: tenant}, nil
}

// Load reads all product rows for the tenant. Row-level validation happens
// in the index loader, so this only maps columns.
func (s *PostgresSource) Load(ctx context.Context) ([]Product, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, color, category, price, final_price, stock
		FROM products
		WHERE tenant = $1
		ORDER BY id`, s.Tenant)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Color, &p.Category, &p.Price, &p.FinalPrice, &p.Stock); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.Pool.Close()
}
