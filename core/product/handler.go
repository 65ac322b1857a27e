package product

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
)

const errPrice = "must be a non-negative amount with at most two decimals"

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		qs := r.URL.Query()
		ps, err := List(ctx, db, Filter{
			Category: qs.Get("category"),
			Team:     qs.Get("team"),
			Query:    qs.Get("q"),
		})
		if err != nil {
			return fmt.Errorf("listing products: %w", err)
		}
		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(err)
		}

		p, err := FetchAvailable(ctx, db, id, web.Param(r, "slug"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching product: %w", err)
		}
		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in ProductNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		fields := validate.CheckFields(in)
		if !checkPrice(in.Price) {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["price"] = errPrice
		}
		if fields != nil {
			return weberr.Invalid(validate.ErrInvalid, fields)
		}

		available := true
		if in.Available != nil {
			available = *in.Available
		}

		now := time.Now().UTC()
		p := Product{
			ID:          validate.GenerateID(),
			Category:    in.Category,
			Team:        in.Team,
			Name:        in.Name,
			Slug:        in.Slug,
			Description: in.Description,
			Price:       in.Price,
			Available:   available,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := Create(ctx, db, p); err != nil {
			return fmt.Errorf("creating product: %w", err)
		}
		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(err)
		}

		var in ProductUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		fields := validate.CheckFields(in)
		if in.Price != nil && !checkPrice(*in.Price) {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["price"] = errPrice
		}
		if fields != nil {
			return weberr.Invalid(validate.ErrInvalid, fields)
		}

		p, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching product: %w", err)
		}

		if in.Category != nil {
			p.Category = *in.Category
		}
		if in.Team != nil {
			p.Team = *in.Team
		}
		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Slug != nil {
			p.Slug = *in.Slug
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Available != nil {
			p.Available = *in.Available
		}
		p.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, p); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("updating product: %w", err)
		}
		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleDelete removes a product. Carts that still hold it drop the line
// the next time they are read.
func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(err)
		}

		if err := Delete(ctx, db, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("deleting product: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
