package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Session is what order creation needs from the visitor's session: the
// cart and the pointer to the order awaiting payment.
type Session interface {
	cart.Session
	Pointer
}

type Notifier interface {
	OrderCreated(ctx context.Context, orderID string) error
}

type View struct {
	Order
	Items        []Item          `json:"items"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	DashboardURL string          `json:"dashboardUrl,omitempty"`
}

// HandleCreateForm shows what the order will contain. An empty cart sends
// the customer back to it.
func HandleCreateForm(sess Session, catalog cart.Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sum, err := cart.Load(ctx, sess, catalog).Summarize(ctx)
		if err != nil {
			return fmt.Errorf("reading cart: %w", err)
		}
		if sum.Count == 0 {
			return web.Redirect(w, r, "/cart")
		}
		return web.Respond(ctx, w, sum, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB, sess Session, catalog cart.Catalog, bg background.Dispatcher, n Notifier) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		c := cart.Load(ctx, sess, catalog)

		lines, err := c.Lines(ctx)
		if err != nil {
			return fmt.Errorf("reading cart: %w", err)
		}
		if len(lines) == 0 {
			return web.Redirect(w, r, "/cart")
		}

		var in OrderNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if fields := validate.CheckFields(in); fields != nil {
			return weberr.Invalid(validate.ErrInvalid, fields)
		}

		userID, _ := claims.UserID(ctx)

		ord, _, err := Place(ctx, db, in, userID, lines, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("creating order: %w", err)
		}

		c.Clear(ctx)

		id := ord.ID
		bg.Run("order_created", func(ctx context.Context) error {
			return n.OrderCreated(ctx, id)
		})

		SetAwaiting(ctx, sess, id)

		return web.Redirect(w, r, "/payment/process")
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		ords, err := ListByUser(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

// HandleShow returns one order with its items. Customers see their own
// orders; admins see any order along with its dashboard link.
func HandleShow(db *sqlx.DB, testMode bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(err)
		}

		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching order: %w", err)
		}

		admin := claims.IsAdmin(ctx)
		if !admin && (ord.UserID == nil || !claims.IsUser(ctx, *ord.UserID)) {
			return weberr.NotFound(ErrNotFound)
		}

		items, err := FetchItems(ctx, db, id)
		if err != nil {
			return fmt.Errorf("fetching order items: %w", err)
		}

		v := View{Order: ord, Items: items, TotalCost: TotalCost(items)}
		if admin {
			v.DashboardURL = ord.DashboardURL(testMode)
		}
		return web.Respond(ctx, w, v, http.StatusOK)
	}
}
