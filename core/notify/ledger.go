package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Kind string

const (
	KindOrderCreated     Kind = "order_created"
	KindPaymentCompleted Kind = "payment_completed"
)

// claim records that the kind notification for orderID is being sent. It
// reports false when another execution already holds or completed it.
func claim(ctx context.Context, db sqlx.ExtContext, orderID string, kind Kind) (bool, error) {
	const q = `
	INSERT INTO notifications (order_id, kind, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (order_id, kind) DO NOTHING`

	res, err := db.ExecContext(ctx, q, orderID, string(kind), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claiming %s notification of order[%s]: %w", kind, orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming %s notification of order[%s]: %w", kind, orderID, err)
	}
	return n == 1, nil
}

// release gives a claim back after a failed delivery so a retry may send.
func release(ctx context.Context, db sqlx.ExtContext, orderID string, kind Kind) error {
	const q = `DELETE FROM notifications WHERE order_id = $1 AND kind = $2`

	if _, err := db.ExecContext(ctx, q, orderID, string(kind)); err != nil {
		return fmt.Errorf("releasing %s notification of order[%s]: %w", kind, orderID, err)
	}
	return nil
}
