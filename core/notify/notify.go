// Package notify emails customers about their orders.
//
// Every notification is recorded in a ledger before it is sent, so running
// the same task twice for an order sends at most one email per kind. A
// failed send gives the ledger entry back and returns the error, which lets
// the background dispatcher retry it.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/email"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type Notifier struct {
	db     *sqlx.DB
	sender email.Sender
	log    logrus.FieldLogger
}

func New(db *sqlx.DB, sender email.Sender, log logrus.FieldLogger) *Notifier {
	return &Notifier{db: db, sender: sender, log: log}
}

func (n *Notifier) OrderCreated(ctx context.Context, orderID string) error {
	return n.send(ctx, orderID, KindOrderCreated, func(ord order.Order, _ []order.Item) (email.Message, error) {
		return email.Message{
			To:      []string{ord.Email},
			Subject: fmt.Sprintf("Order nr. %s", ord.ID),
			Body: fmt.Sprintf("Dear %s,\n\nYou have successfully placed an order.\nYour order ID is %s.\n",
				ord.FirstName, ord.ID),
		}, nil
	})
}

func (n *Notifier) PaymentCompleted(ctx context.Context, orderID string) error {
	return n.send(ctx, orderID, KindPaymentCompleted, func(ord order.Order, items []order.Item) (email.Message, error) {
		inv, err := Invoice(ord, items)
		if err != nil {
			return email.Message{}, err
		}

		return email.Message{
			To:      []string{ord.Email},
			Subject: fmt.Sprintf("Invoice no. %s", ord.ID),
			Body:    "Please, find attached the invoice for your recent purchase.\n",
			Attachments: []email.Attachment{{
				Name:        fmt.Sprintf("order_%s.txt", ord.ID),
				ContentType: "text/plain; charset=utf-8",
				Data:        inv,
			}},
		}, nil
	})
}

type compose func(ord order.Order, items []order.Item) (email.Message, error)

func (n *Notifier) send(ctx context.Context, orderID string, kind Kind, build compose) error {
	log := n.log.WithFields(logrus.Fields{"order_id": orderID, "notification": kind})

	ord, err := order.Fetch(ctx, n.db, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			log.Warn("order vanished before notification")
			return nil
		}
		return err
	}

	items, err := order.FetchItems(ctx, n.db, orderID)
	if err != nil {
		return err
	}

	msg, err := build(ord, items)
	if err != nil {
		return err
	}

	ok, err := claim(ctx, n.db, orderID, kind)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("notification already sent")
		return nil
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		if rerr := release(context.WithoutCancel(ctx), n.db, orderID, kind); rerr != nil {
			log.WithField("message", rerr).Error("releasing notification claim")
		}
		return fmt.Errorf("sending %s email: %w", kind, err)
	}

	log.Info("notification sent")
	return nil
}
