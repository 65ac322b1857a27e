package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrNotFound = errors.New("product not found")

func Create(ctx context.Context, db sqlx.ExtContext, p Product) error {
	const q = `
	INSERT INTO products
		(product_id, category, team, name, slug, description, price, available, created_at, updated_at)
	VALUES
		(:product_id, :category, :team, :name, :slug, :description, :price, :available, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, p Product) error {
	const q = `
	UPDATE products SET
		category = :category,
		team = :team,
		name = :name,
		slug = :slug,
		description = :description,
		price = :price,
		available = :available,
		updated_at = :updated_at
	WHERE product_id = :product_id`

	res, err := sqlx.NamedExecContext(ctx, db, q, p)
	if err != nil {
		return fmt.Errorf("updating product[%s]: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, id string) error {
	const q = `DELETE FROM products WHERE product_id = $1`

	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting product[%s]: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Product, error) {
	const q = `SELECT * FROM products WHERE product_id = $1`

	var p Product
	if err := sqlx.GetContext(ctx, db, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%s]: %w", id, err)
	}
	return p, nil
}

// FetchAvailable returns the product only when both id and slug match and
// it is on sale.
func FetchAvailable(ctx context.Context, db sqlx.QueryerContext, id, slug string) (Product, error) {
	const q = `
	SELECT * FROM products
	WHERE product_id = $1 AND slug = $2 AND available = TRUE`

	var p Product
	if err := sqlx.GetContext(ctx, db, &p, q, id, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%s/%s]: %w", id, slug, err)
	}
	return p, nil
}

// FetchByIDs returns the products that still exist among ids, in no
// particular order. Unknown ids are silently absent from the result.
func FetchByIDs(ctx context.Context, db sqlx.QueryerContext, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `SELECT * FROM products WHERE product_id = ANY($1)`

	var ps []Product
	if err := sqlx.SelectContext(ctx, db, &ps, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("selecting products by id: %w", err)
	}
	return ps, nil
}

// List returns the available products matching f, newest first.
func List(ctx context.Context, db sqlx.QueryerContext, f Filter) ([]Product, error) {
	const q = `
	SELECT * FROM products
	WHERE available = TRUE
		AND ($1::text = '' OR category = $1)
		AND ($2::text = '' OR team = $2)
		AND ($3::text = '' OR strpos(lower(name), lower($3)) > 0)
	ORDER BY created_at DESC`

	ps := []Product{}
	if err := sqlx.SelectContext(ctx, db, &ps, q, f.Category, f.Team, strings.TrimSpace(f.Query)); err != nil {
		return nil, fmt.Errorf("selecting products: %w", err)
	}
	return ps, nil
}

// Store adapts the package functions to a fixed database handle.
type Store struct {
	DB *sqlx.DB
}

func (s Store) FetchByIDs(ctx context.Context, ids []string) ([]Product, error) {
	return FetchByIDs(ctx, s.DB, ids)
}
