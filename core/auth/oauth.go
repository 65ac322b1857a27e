package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/user"
	"github.com/irsalhamdi/storefront/random"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
)

const (
	oauthStateKey = "oauth_state"
	oauthNonceKey = "oauth_nonce"
)

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

type Provider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// MakeProviders runs OIDC discovery for every configured provider. Entries
// without a client id are skipped.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))

	for _, c := range cfgs {
		if c.Client == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, c.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider[%s]: %w", c.Name, err)
		}

		provs[c.Name] = Provider{
			oauth: oauth2.Config{
				ClientID:     c.Client,
				ClientSecret: c.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  c.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			verifier: p.Verifier(&oidc.Config{ClientID: c.Client}),
		}
	}

	return provs, nil
}

func HandleOauthLogin(sm *scs.SessionManager, provs map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider[%s] not configured", name))
		}

		state, err := random.Token(32)
		if err != nil {
			return fmt.Errorf("generating oauth state: %w", err)
		}
		nonce, err := random.Token(32)
		if err != nil {
			return fmt.Errorf("generating oauth nonce: %w", err)
		}
		sm.Put(ctx, oauthStateKey, state)
		sm.Put(ctx, oauthNonceKey, nonce)

		http.Redirect(w, r, prov.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
		return nil
	}
}

type oidcClaims struct {
	Email    string `json:"email"`
	Verified bool   `json:"email_verified"`
	Name     string `json:"name"`
}

func HandleOauthCallback(db *sqlx.DB, sm *scs.SessionManager, provs map[string]Provider, redirectURL string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider[%s] not configured", name))
		}

		state := sm.PopString(ctx, oauthStateKey)
		nonce := sm.PopString(ctx, oauthNonceKey)
		if state == "" || r.URL.Query().Get("state") != state {
			return weberr.BadRequest(errors.New("oauth state mismatch"))
		}

		tok, err := prov.oauth.Exchange(ctx, r.URL.Query().Get("code"))
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("exchanging oauth code: %w", err))
		}

		raw, ok := tok.Extra("id_token").(string)
		if !ok {
			return weberr.NotAuthorized(errors.New("no id_token in oauth response"))
		}

		idt, err := prov.verifier.Verify(ctx, raw)
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("verifying id token: %w", err))
		}
		if idt.Nonce != nonce {
			return weberr.NotAuthorized(errors.New("id token nonce mismatch"))
		}

		var c oidcClaims
		if err := idt.Claims(&c); err != nil {
			return weberr.NotAuthorized(fmt.Errorf("decoding id token claims: %w", err))
		}
		if c.Email == "" || !c.Verified {
			return weberr.NotAuthorized(errors.New("provider did not supply a verified email"))
		}

		u, err := user.FetchByEmail(ctx, db, c.Email)
		switch {
		case errors.Is(err, user.ErrNotFound):
			now := time.Now().UTC()
			u = user.User{
				ID:        validate.GenerateID(),
				Name:      c.Name,
				Email:     user.NormalizeEmail(c.Email),
				Role:      roleFor(c.Email, ""),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := user.Create(ctx, db, u); err != nil {
				return fmt.Errorf("creating oauth user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("fetching oauth user: %w", err)
		}

		if err := login(ctx, sm, u); err != nil {
			return err
		}

		return web.Redirect(w, r, redirectURL)
	}
}
