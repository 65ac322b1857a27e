package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	PaymentCompleted(ctx context.Context, orderID string) error
}

// Reconciler moves orders from unpaid to paid, whichever of the webhook or
// the customer's return gets there first.
type Reconciler struct {
	db       *sqlx.DB
	provider Provider
	bg       background.Dispatcher
	notifier Notifier
	log      logrus.FieldLogger
}

func NewReconciler(db *sqlx.DB, provider Provider, bg background.Dispatcher, notifier Notifier, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		db:       db,
		provider: provider,
		bg:       bg,
		notifier: notifier,
		log:      log,
	}
}

// Finalize marks the order paid and schedules the payment-completed
// notification. Only the call that performs the transition schedules it;
// on an order that is already paid, Finalize at most records a better
// reference. It reports whether this call performed the transition.
func (rc *Reconciler) Finalize(ctx context.Context, orderID string, ref order.Ref) (bool, error) {
	if validate.CheckID(orderID) != nil {
		return false, order.ErrNotFound
	}

	ord, err := order.Fetch(ctx, rc.db, orderID)
	if err != nil {
		return false, err
	}

	log := rc.log.WithFields(logrus.Fields{"order_id": orderID, "ref": ref.Value})

	if !ord.Paid {
		merged, _ := order.MergeRef(ord.Ref(), ref)

		ok, err := order.MarkPaid(ctx, rc.db, orderID, merged, time.Now().UTC())
		if err != nil {
			return false, err
		}

		if ok {
			log.Info("order paid")
			rc.bg.Run("payment_completed", func(ctx context.Context) error {
				return rc.notifier.PaymentCompleted(ctx, orderID)
			})
			return true, nil
		}

		// Someone else got there first.
		if ord, err = order.Fetch(ctx, rc.db, orderID); err != nil {
			return false, err
		}
	}

	if next, changed := order.MergeRef(ord.Ref(), ref); changed {
		if err := order.SetRef(ctx, rc.db, orderID, next, time.Now().UTC()); err != nil {
			return false, err
		}
		log.Info("reference of paid order updated")
	}

	return false, nil
}

// HandleEvent applies a verified provider event. Events that reference no
// known order are acknowledged; only storage failures are returned.
func (rc *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	log := rc.log.WithField("event", ev.EventID())

	var (
		orderID string
		ref     order.Ref
	)

	switch e := ev.(type) {
	case CheckoutCompleted:
		if !e.Session.Paid() {
			log.WithFields(logrus.Fields{
				"mode":           e.Session.Mode,
				"payment_status": e.Session.PaymentStatus,
			}).Info("checkout completed without payment, ignored")
			return nil
		}
		orderID, ref = e.Session.OrderID(), e.Session.Ref()

	case PaymentIntentSucceeded:
		orderID = e.Metadata[metadataOrderID]
		ref = order.Ref{Kind: order.RefPaymentIntent, Value: e.PaymentIntent}

	case Unhandled:
		log.WithField("type", e.Type).Debug("event ignored")
		return nil

	default:
		return fmt.Errorf("unexpected event %T", ev)
	}

	if orderID == "" {
		log.Warn("event carries no order id")
		return nil
	}

	log = log.WithField("order_id", orderID)

	if _, err := rc.Finalize(ctx, orderID, ref); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			log.Warn("event references an unknown order")
			return nil
		}
		return fmt.Errorf("finalizing order[%s]: %w", orderID, err)
	}

	return nil
}

// Return is what the redirect-return path learned about an order.
type Return struct {
	OrderID string `json:"orderId,omitempty"`
	Paid    bool   `json:"paid"`
}

// Confirm runs when the customer comes back from the hosted checkout. The
// order comes from the session pointer when present, else from the
// checkout session named by sessionID. If the order is still unpaid, the
// provider is asked whether it is paid. Provider failures only leave the
// order as it is; the webhook remains authoritative.
func (rc *Reconciler) Confirm(ctx context.Context, pointer string, sessionID string) (Return, error) {
	log := rc.log.WithFields(logrus.Fields{"order_id": pointer, "session": sessionID})

	var (
		cs    CheckoutSession
		found bool
	)
	lookup := func(id string) {
		s, err := rc.provider.RetrieveCheckoutSession(ctx, id)
		if err != nil {
			log.WithField("message", err).Warn("checkout session lookup failed")
			return
		}
		cs, found = s, true
	}

	orderID := pointer
	if orderID == "" {
		if sessionID == "" {
			return Return{}, nil
		}
		lookup(sessionID)
		if !found {
			return Return{}, nil
		}
		orderID = cs.OrderID()
	}

	if validate.CheckID(orderID) != nil {
		return Return{}, nil
	}

	ord, err := order.Fetch(ctx, rc.db, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Return{}, nil
		}
		return Return{}, err
	}

	if ord.Paid {
		return Return{OrderID: ord.ID, Paid: true}, nil
	}

	if !found {
		id := sessionID
		if r := ord.Ref(); id == "" && r.Kind == order.RefCheckoutSession {
			id = r.Value
		}
		if id != "" {
			lookup(id)
		}
	}

	if !found || cs.OrderID() != ord.ID || !cs.Paid() {
		return Return{OrderID: ord.ID}, nil
	}

	if _, err := rc.Finalize(ctx, ord.ID, cs.Ref()); err != nil {
		return Return{}, fmt.Errorf("finalizing order[%s]: %w", ord.ID, err)
	}

	return Return{OrderID: ord.ID, Paid: true}, nil
}
