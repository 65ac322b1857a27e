package test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/auth"
	"github.com/irsalhamdi/storefront/core/notify"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/email"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const (
	adminEmail = "admin@example.com"
	adminPass  = "admin-password"
)

type mailbox struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (m *mailbox) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

// count returns how many messages were sent whose subject starts with prefix.
func (m *mailbox) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if len(msg.Subject) >= len(prefix) && msg.Subject[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type TestEnv struct {
	*httptest.Server
	DB            *sqlx.DB
	Stripe        *mockStripe
	Mail          *mailbox
	WebhookSecret string
}

// NewTestEnv starts Postgres in Docker, migrates it and serves the API
// against it. The test is skipped when no Docker daemon is reachable.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = time.Minute

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=" + name,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres: %w", err)
	}
	t.Cleanup(func() { pool.Purge(res) })

	dbCfg := database.Config{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         name,
		MaxIdleConns: 2,
		MaxOpenConns: 10,
		DisableTLS:   true,
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		if db, err = database.Open(dbCfg); err != nil {
			return err
		}
		return db.Ping()
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(dbCfg); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	ms := newMockStripe()
	stripeSrv := httptest.NewServer(ms.handle())
	t.Cleanup(stripeSrv.Close)

	strp := &stripecl.API{}
	strp.Init("sk_test_integration", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(stripeSrv.URL),
			MaxNetworkRetries: stripe.Int64(0),
		}),
	})

	const secret = "whsec_integration"
	stripeCfg := config.Stripe{
		APISecret:     "sk_test_integration",
		WebhookSecret: secret,
		Currency:      "gbp",
		SuccessURL:    "http://shop.test/payment/completed?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "http://shop.test/payment/canceled",
		Timeout:       5 * time.Second,
	}

	mail := &mailbox{}
	bg := background.NewInline(log)

	mux := api.APIMux(api.APIConfig{
		Log:        log,
		DB:         db,
		Session:    scs.New(),
		Background: bg,
		Notifier:   notify.New(db, mail, log),
		Payment:    payment.NewStripe(strp, secret, stripeCfg.Timeout),
		StripeCfg:  stripeCfg,
		Providers:  map[string]auth.Provider{},
		AdminEmail: adminEmail,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:        srv,
		DB:            db,
		Stripe:        ms,
		Mail:          mail,
		WebhookSecret: secret,
	}, nil
}

// NewClient returns a client with its own cookie jar, that is its own
// session, which does not follow redirects.
func (env *TestEnv) NewClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
