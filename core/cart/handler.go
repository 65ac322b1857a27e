package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/validate"
)

type ItemNew struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=20"`
	Override  bool   `json:"override"`
}

func HandleShow(sess Session, catalog Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sum, err := Load(ctx, sess, catalog).Summarize(ctx)
		if err != nil {
			return fmt.Errorf("reading cart: %w", err)
		}
		return web.Respond(ctx, w, sum, http.StatusOK)
	}
}

func HandleCreateItem(sess Session, catalog Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if fields := validate.CheckFields(in); fields != nil {
			return weberr.Invalid(validate.ErrInvalid, fields)
		}

		ps, err := catalog.FetchByIDs(ctx, []string{in.ProductID})
		if err != nil {
			return fmt.Errorf("fetching product[%s]: %w", in.ProductID, err)
		}
		if len(ps) == 0 || !ps[0].Available {
			return weberr.NotFound(errors.New("product not available"))
		}

		c := Load(ctx, sess, catalog)
		if err := c.Add(ctx, ps[0], in.Quantity, in.Override); err != nil {
			return fmt.Errorf("adding to cart: %w", err)
		}

		sum, err := c.Summarize(ctx)
		if err != nil {
			return fmt.Errorf("reading cart: %w", err)
		}
		return web.Respond(ctx, w, sum, http.StatusOK)
	}
}

func HandleDeleteItem(sess Session, catalog Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		c := Load(ctx, sess, catalog)
		if err := c.Remove(ctx, web.Param(r, "product_id")); err != nil {
			return fmt.Errorf("removing from cart: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(sess Session, catalog Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		Load(ctx, sess, catalog).Clear(ctx)
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
