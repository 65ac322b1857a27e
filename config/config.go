// Package config declares the service configuration parsed by
// ardanlabs/conf from SHOP_* environment variables and command line flags.
package config

import (
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/storefront/database"
)

type Config struct {
	conf.Version
	Web        Web
	DB         database.Config
	Session    Session
	Stripe     Stripe
	Background Background
	Email      Email
	Oauth      Oauth
	Auth       Auth
	Rate       Rate
	Cors       Cors
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Session struct {
	Lifetime     time.Duration `conf:"default:336h"`
	CookieName   string        `conf:"default:shop_session"`
	CookieSecure bool          `conf:"default:false"`
}

type Stripe struct {
	APISecret      string        `conf:"mask"`
	PublishableKey string
	WebhookSecret  string        `conf:"mask"`
	Currency       string        `conf:"default:gbp"`
	SuccessURL     string        `conf:"default:http://localhost:8000/payment/completed?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL      string        `conf:"default:http://localhost:8000/payment/canceled"`
	Timeout        time.Duration `conf:"default:10s"`
	URL            string        `conf:"help:override of the Stripe API base URL"`
}

// TestMode reports whether the secret key belongs to a Stripe test account.
func (s Stripe) TestMode() bool {
	return strings.HasPrefix(s.APISecret, "sk_test_") || strings.HasPrefix(s.APISecret, "rk_test_")
}

type Background struct {
	Eager bool `conf:"default:false,help:run notification tasks inline instead of in the background"`
}

type Email struct {
	Address  string `conf:"default:noreply@example.com"`
	Password string `conf:"mask"`
	Host     string `conf:"default:localhost"`
	Port     int    `conf:"default:25"`
}

type OauthProvider struct {
	Client      string
	Secret      string `conf:"mask"`
	URL         string
	RedirectURL string
}

type Oauth struct {
	Google           OauthProvider
	DiscoveryTimeout time.Duration `conf:"default:10s"`
	LoginRedirectURL string        `conf:"default:/"`
}

type Auth struct {
	AdminEmail string
}

type Rate struct {
	Burst    int           `conf:"default:20"`
	Interval time.Duration `conf:"default:500ms"`
	Expiry   time.Duration `conf:"default:10m"`
}

type Cors struct {
	Origin string
}
