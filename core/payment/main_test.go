package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	orderID       = "0b5c8f4e-5d7a-4f38-9a1e-64a0f2f9c001"
	webhookSecret = "whsec_test_secret"
)

var orderColumns = []string{
	"order_id", "user_id", "first_name", "last_name", "email", "address",
	"postal_code", "city", "paid", "stripe_id", "stripe_kind", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// orderRow returns an orders row. An empty ref leaves stripe_id NULL.
func orderRow(paid bool, ref, kind string) *sqlmock.Rows {
	now := time.Now()
	var id, k any
	if ref != "" {
		id, k = ref, kind
	}
	return sqlmock.NewRows(orderColumns).AddRow(
		orderID, nil, "Ada", "Lovelace", "ada@example.com", "1 Street",
		"SW1A 1AA", "London", paid, id, k, now, now)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func (n *countingNotifier) PaymentCompleted(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[id]++
	return nil
}

func (n *countingNotifier) count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[id]
}

type fakeProvider struct {
	sessions map[string]CheckoutSession
	err      error
	created  []CheckoutRequest
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if p.err != nil {
		return CheckoutSession{}, p.err
	}
	p.created = append(p.created, req)
	return CheckoutSession{ID: "cs_new", URL: "https://checkout.example/cs_new"}, nil
}

func (p *fakeProvider) RetrieveCheckoutSession(_ context.Context, id string) (CheckoutSession, error) {
	if p.err != nil {
		return CheckoutSession{}, p.err
	}
	cs, ok := p.sessions[id]
	if !ok {
		return CheckoutSession{}, &ProviderError{Message: "no such session", Err: errors.New("404")}
	}
	return cs, nil
}

func (p *fakeProvider) ConstructEvent([]byte, string) (Event, error) {
	return nil, ErrSignature
}

func newReconciler(t *testing.T, db *sqlx.DB, p Provider) (*Reconciler, *countingNotifier) {
	t.Helper()
	log, _ := test.NewNullLogger()
	n := &countingNotifier{}
	return NewReconciler(db, p, background.NewInline(log), n, log), n
}
