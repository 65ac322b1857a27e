package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

type memSession struct {
	data map[string]any
}

func newMemSession() *memSession { return &memSession{data: make(map[string]any)} }

func (s *memSession) GetBytes(_ context.Context, key string) []byte {
	b, _ := s.data[key].([]byte)
	return b
}

func (s *memSession) GetString(_ context.Context, key string) string {
	v, _ := s.data[key].(string)
	return v
}

func (s *memSession) Put(_ context.Context, key string, val any) { s.data[key] = val }

func (s *memSession) Remove(_ context.Context, key string) { delete(s.data, key) }

type memCatalog map[string]product.Product

func (c memCatalog) FetchByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var ps []product.Product
	for _, id := range ids {
		if p, ok := c[id]; ok {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) OrderCreated(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return nil
}

const validBody = `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","address":"1 Street","postalCode":"sw1a 1aa","city":"London"}`

func TestHandleCreateEmptyCart(t *testing.T) {
	db, mock := newMock(t)
	log, _ := test.NewNullLogger()
	n := &recordingNotifier{}

	h := HandleCreate(db, newMemSession(), memCatalog{}, background.NewInline(log), n)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validBody))
	if err := h(context.Background(), w, r); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/cart" {
		t.Fatalf("expected redirect to /cart, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
	if len(n.ids) != 0 {
		t.Fatal("no notification expected")
	}
}

func TestHandleCreateInvalidFields(t *testing.T) {
	db, mock := newMock(t)
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	tea := product.Product{ID: "p1", Name: "Tea", Price: decimal.RequireFromString("9.99"), Available: true}
	cat := memCatalog{tea.ID: tea}
	sess := newMemSession()
	cart.Load(ctx, sess, cat).Add(ctx, tea, 1, false)

	h := HandleCreate(db, sess, cat, background.NewInline(log), &recordingNotifier{})

	body := `{"firstName":"Ada","lastName":"Lovelace","email":"nope","address":"1 Street","postalCode":"12345","city":"London"}`
	err := h(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	resp, code, ok := weberr.Response(err)
	if !ok || code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%v)", code, err)
	}
	fields := resp.(*weberr.ErrorResponse).Fields
	if _, ok := fields["postalCode"]; !ok {
		t.Fatalf("expected a postalCode error, got %v", fields)
	}
	if _, ok := fields["email"]; !ok {
		t.Fatalf("expected an email error, got %v", fields)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
	if cart.Load(ctx, sess, cat).Count() != 1 {
		t.Fatal("cart must survive a rejected submission")
	}
}

func TestHandleCreatePlacesOrder(t *testing.T) {
	db, mock := newMock(t)
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	tea := product.Product{ID: "p1", Name: "Tea", Price: decimal.RequireFromString("9.99"), Available: true}
	cat := memCatalog{tea.ID: tea}
	sess := newMemSession()
	sess.data[awaitingKey] = "previous"
	cart.Load(ctx, sess, cat).Add(ctx, tea, 2, false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n := &recordingNotifier{}
	h := HandleCreate(db, sess, cat, background.NewInline(log), n)

	w := httptest.NewRecorder()
	if err := h(ctx, w, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validBody))); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/payment/process" {
		t.Fatalf("expected redirect to /payment/process, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if cart.Load(ctx, sess, cat).Count() != 0 {
		t.Fatal("cart should be empty after placing the order")
	}

	id := Awaiting(ctx, sess)
	if id == "" || id == "previous" {
		t.Fatalf("expected a new awaiting order, got %q", id)
	}
	if len(n.ids) != 1 || n.ids[0] != id {
		t.Fatalf("expected one order-created notification for %s, got %v", id, n.ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
