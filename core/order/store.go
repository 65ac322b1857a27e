package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("order not found")

func Create(ctx context.Context, db sqlx.ExtContext, ord Order) error {
	const q = `
	INSERT INTO orders
		(order_id, user_id, first_name, last_name, email, address, postal_code, city,
		 paid, stripe_id, stripe_kind, created_at, updated_at)
	VALUES
		(:order_id, :user_id, :first_name, :last_name, :email, :address, :postal_code, :city,
		 :paid, :stripe_id, :stripe_kind, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ord); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO order_items
		(order_id, product_id, product_name, price, quantity)
	VALUES
		(:order_id, :product_id, :product_name, :price, :quantity)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Order, error) {
	const q = `SELECT * FROM orders WHERE order_id = $1`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order[%s]: %w", id, err)
	}
	return ord, nil
}

func FetchItems(ctx context.Context, db sqlx.QueryerContext, orderID string) ([]Item, error) {
	const q = `
	SELECT * FROM order_items
	WHERE order_id = $1
	ORDER BY product_name`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting items of order[%s]: %w", orderID, err)
	}
	return items, nil
}

// ListByUser returns the orders owned by userID, newest first.
func ListByUser(ctx context.Context, db sqlx.QueryerContext, userID string) ([]Order, error) {
	const q = `
	SELECT * FROM orders
	WHERE user_id = $1
	ORDER BY created_at DESC`

	ords := []Order{}
	if err := sqlx.SelectContext(ctx, db, &ords, q, userID); err != nil {
		return nil, fmt.Errorf("selecting orders of user[%s]: %w", userID, err)
	}
	return ords, nil
}

// MarkPaid flips paid to true and stores ref, but only while the order is
// still unpaid. It reports whether this call performed the transition.
func MarkPaid(ctx context.Context, db sqlx.ExtContext, id string, ref Ref, now time.Time) (bool, error) {
	const q = `
	UPDATE orders SET
		paid = TRUE,
		stripe_id = COALESCE($2, stripe_id),
		stripe_kind = COALESCE($3, stripe_kind),
		updated_at = $4
	WHERE order_id = $1 AND paid = FALSE`

	res, err := db.ExecContext(ctx, q, id, nullable(ref.Value), nullable(string(ref.Kind)), now)
	if err != nil {
		return false, fmt.Errorf("marking order[%s] paid: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking order[%s] paid: %w", id, err)
	}
	return n == 1, nil
}

// SetRef stores ref on the order without touching its paid flag.
func SetRef(ctx context.Context, db sqlx.ExtContext, id string, ref Ref, now time.Time) error {
	const q = `
	UPDATE orders SET
		stripe_id = $2,
		stripe_kind = $3,
		updated_at = $4
	WHERE order_id = $1`

	res, err := db.ExecContext(ctx, q, id, ref.Value, string(ref.Kind), now)
	if err != nil {
		return fmt.Errorf("updating reference of order[%s]: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
