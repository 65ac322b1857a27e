package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/user"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

var errBadCredentials = errors.New("invalid email or password")

func roleFor(email, adminEmail string) string {
	if adminEmail != "" && strings.EqualFold(email, adminEmail) {
		return claims.RoleAdmin
	}
	return claims.RoleUser
}

func HandleSignup(db *sqlx.DB, sm *scs.SessionManager, adminEmail string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in user.UserSignup
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if fields := validate.CheckFields(in); fields != nil {
			return weberr.Invalid(validate.ErrInvalid, fields)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("generating password hash: %w", err)
		}

		email := user.NormalizeEmail(in.Email)
		now := time.Now().UTC()
		u := user.User{
			ID:           validate.GenerateID(),
			Name:         in.Name,
			Email:        email,
			Role:         roleFor(email, adminEmail),
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := user.Create(ctx, db, u); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				return weberr.Invalid(err, map[string]string{"email": err.Error()})
			}
			return fmt.Errorf("creating user: %w", err)
		}

		if err := login(ctx, sm, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, u, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in user.UserLogin
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		u, err := user.FetchByEmail(ctx, db, in.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return weberr.NewError(errBadCredentials, errBadCredentials.Error(), http.StatusUnauthorized)
			}
			return fmt.Errorf("fetching user: %w", err)
		}

		if len(u.PasswordHash) == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(in.Password)) != nil {
			return weberr.NewError(errBadCredentials, errBadCredentials.Error(), http.StatusUnauthorized)
		}

		if err := login(ctx, sm, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

func HandleLogout(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := logout(ctx, sm); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
