package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxPayloadBytes = 1 << 16

type ProcessView struct {
	order.View
	PublishableKey string `json:"publishableKey"`
}

// HandleProcessForm shows the order awaiting payment.
func HandleProcessForm(in *Initiator, sess order.Pointer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := order.Awaiting(ctx, sess)
		if id == "" {
			return web.Redirect(w, r, "/orders/create")
		}

		v, err := in.summary(ctx, id)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return web.Redirect(w, r, "/orders/create")
			}
			return fmt.Errorf("fetching awaiting order: %w", err)
		}

		return web.Respond(ctx, w, ProcessView{View: v, PublishableKey: in.cfg.PublishableKey}, http.StatusOK)
	}
}

// HandleProcess sends the customer to the hosted checkout for the order
// awaiting payment.
func HandleProcess(in *Initiator, sess order.Pointer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := order.Awaiting(ctx, sess)
		if id == "" {
			return web.Redirect(w, r, "/orders/create")
		}

		cs, err := in.Start(ctx, id)
		if err != nil {
			var pe *ProviderError
			switch {
			case errors.As(err, &pe):
				return weberr.NewError(err, pe.Message, http.StatusBadGateway, weberr.WithField("order_id", id))
			case errors.Is(err, order.ErrNotFound):
				return web.Redirect(w, r, "/orders/create")
			case errors.Is(err, ErrAlreadyPaid):
				return web.Redirect(w, r, "/payment/completed")
			}
			return fmt.Errorf("starting checkout for order[%s]: %w", id, err)
		}

		return web.Redirect(w, r, cs.URL)
	}
}

// HandleWebhook receives provider events. Anything that verifies is
// acknowledged with 200 unless it could not be stored, so the provider
// only retries what may succeed later.
func HandleWebhook(rc *Reconciler) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		ev, err := rc.provider.ConstructEvent(b, r.Header.Get("Stripe-Signature"))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("rejecting webhook: %w", err))
		}

		if err := rc.HandleEvent(ctx, ev); err != nil {
			return weberr.InternalError(err, weberr.WithField("event", ev.EventID()))
		}

		return web.Respond(ctx, w, nil, http.StatusOK)
	}
}

type completedView struct {
	Return
	TotalCost *decimal.Decimal `json:"totalCost,omitempty"`
}

func HandleCompleted(rc *Reconciler, sess order.Pointer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ret, err := rc.Confirm(ctx, order.Awaiting(ctx, sess), r.URL.Query().Get("session_id"))
		if err != nil {
			return err
		}

		v := completedView{Return: ret}
		if ret.OrderID != "" {
			items, err := order.FetchItems(ctx, rc.db, ret.OrderID)
			if err != nil {
				rc.log.WithFields(logrus.Fields{
					"order_id": ret.OrderID,
					"message":  err,
				}).Warn("cannot load order items for the return page")
			} else {
				tot := order.TotalCost(items)
				v.TotalCost = &tot
			}
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

func HandleCanceled(sess order.Pointer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		v := struct {
			OrderID  string `json:"orderId,omitempty"`
			Canceled bool   `json:"canceled"`
		}{order.Awaiting(ctx, sess), true}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}
