package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyPaid = errors.New("order already paid")

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a price to the smallest currency unit, rounding half
// away from zero.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// BuildRequest describes ord to the provider: one line per item, the order
// id as client reference and metadata.
func BuildRequest(ord order.Order, items []order.Item, cfg config.Stripe) CheckoutRequest {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			Name:       it.ProductName,
			UnitAmount: MinorUnits(it.Price),
			Quantity:   int64(it.Quantity),
		})
	}

	return CheckoutRequest{
		OrderID:    ord.ID,
		Currency:   cfg.Currency,
		Lines:      lines,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	}
}

type Initiator struct {
	db       *sqlx.DB
	provider Provider
	cfg      config.Stripe
	log      logrus.FieldLogger
}

func NewInitiator(db *sqlx.DB, provider Provider, cfg config.Stripe, log logrus.FieldLogger) *Initiator {
	return &Initiator{db: db, provider: provider, cfg: cfg, log: log}
}

// Start opens a hosted checkout for the order and records the reference
// the provider returned. A provider failure leaves the order untouched.
func (in *Initiator) Start(ctx context.Context, orderID string) (CheckoutSession, error) {
	ord, err := order.Fetch(ctx, in.db, orderID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if ord.Paid {
		return CheckoutSession{}, ErrAlreadyPaid
	}

	items, err := order.FetchItems(ctx, in.db, orderID)
	if err != nil {
		return CheckoutSession{}, err
	}

	cs, err := in.provider.CreateCheckoutSession(ctx, BuildRequest(ord, items, in.cfg))
	if err != nil {
		return CheckoutSession{}, err
	}

	log := in.log.WithFields(logrus.Fields{"order_id": orderID, "session": cs.ID})

	// Completion is matched by order id, a missing reference is tolerated.
	if ref := cs.Ref(); !ref.IsZero() {
		if err := order.SetRef(ctx, in.db, orderID, ref, time.Now().UTC()); err != nil {
			log.WithField("message", err).Warn("storing checkout reference")
		}
	}

	log.Info("checkout session created")
	return cs, nil
}

func (in *Initiator) summary(ctx context.Context, orderID string) (order.View, error) {
	ord, err := order.Fetch(ctx, in.db, orderID)
	if err != nil {
		return order.View{}, err
	}

	items, err := order.FetchItems(ctx, in.db, orderID)
	if err != nil {
		return order.View{}, fmt.Errorf("fetching order items: %w", err)
	}

	return order.View{Order: ord, Items: items, TotalCost: order.TotalCost(items)}, nil
}
