package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
)

var ErrEmptyCart = errors.New("cart is empty")

const awaitingKey = "order_id"

// Pointer is the session view used to remember the order awaiting payment.
type Pointer interface {
	GetString(ctx context.Context, key string) string
	Put(ctx context.Context, key string, val any)
}

// SetAwaiting records id as the order awaiting payment, replacing any
// previous one.
func SetAwaiting(ctx context.Context, sess Pointer, id string) {
	sess.Put(ctx, awaitingKey, id)
}

// Awaiting returns the id of the order awaiting payment, if any.
func Awaiting(ctx context.Context, sess Pointer) string {
	return sess.GetString(ctx, awaitingKey)
}

// Place writes the order header and one item per cart line in a single
// transaction. Item prices come from the cart, never from the catalog.
// userID may be empty for guest checkouts.
func Place(ctx context.Context, db *sqlx.DB, in OrderNew, userID string, lines []cart.Line, now time.Time) (Order, []Item, error) {
	if len(lines) == 0 {
		return Order{}, nil, ErrEmptyCart
	}

	ord := Order{
		ID:         validate.GenerateID(),
		UserID:     nullable(userID),
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Address:    in.Address,
		PostalCode: NormalizePostalCode(in.PostalCode),
		City:       in.City,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, Item{
			OrderID:     ord.ID,
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Price:       l.UnitPrice,
			Quantity:    l.Quantity,
		})
	}

	err := database.Transaction(ctx, db, func(tx sqlx.ExtContext) error {
		if err := Create(ctx, tx, ord); err != nil {
			return fmt.Errorf("creating order: %w", err)
		}

		for _, it := range items {
			if err := CreateItem(ctx, tx, it); err != nil {
				return fmt.Errorf("creating item: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return Order{}, nil, fmt.Errorf("placing order: %w", err)
	}
	return ord, items, nil
}
