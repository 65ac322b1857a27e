// Package auth keeps the caller's identity in the scs session and exposes
// it to handlers through the claims package.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/user"
)

const (
	userIDKey = "auth_user_id"
	roleKey   = "auth_role"
)

// LoadAndSave loads the session for every request, places the stored claims
// in the context and commits the session once the handler returns.
func LoadAndSave(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()
				if id := sm.GetString(ctx, userIDKey); id != "" {
					ctx = claims.Set(ctx, claims.Claims{UserID: id, Role: sm.GetString(ctx, roleKey)})
				}
				err = handler(ctx, w, r.WithContext(ctx))
			})

			sm.LoadAndSave(next).ServeHTTP(w, r.WithContext(ctx))
			return err
		}
		return h
	}
	return m
}

func Authenticate() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if _, err := claims.Get(ctx); err != nil {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func Admin() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if _, err := claims.Get(ctx); err != nil {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			if !claims.IsAdmin(ctx) {
				return weberr.Forbidden(errors.New("admin role required"))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// login binds u to the session. The token is renewed to prevent fixation;
// the rest of the session, the cart included, survives.
func login(ctx context.Context, sm *scs.SessionManager, u user.User) error {
	if err := sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}
	sm.Put(ctx, userIDKey, u.ID)
	sm.Put(ctx, roleKey, u.Role)
	return nil
}

func logout(ctx context.Context, sm *scs.SessionManager) error {
	if err := sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}
	sm.Remove(ctx, userIDKey)
	sm.Remove(ctx, roleKey)
	return nil
}
