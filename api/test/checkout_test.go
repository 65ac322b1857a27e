package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type checkoutTest struct {
	*TestEnv
}

func TestCheckout(t *testing.T) {
	env, err := NewTestEnv(t, "checkout_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	admin := env.NewClient(t)
	ct.do(t, admin, http.MethodPost, "/auth/signup", map[string]any{
		"name": "Admin", "email": adminEmail, "password": adminPass, "passwordConfirm": adminPass,
	}, http.StatusCreated, nil)

	tea := ct.createProduct(t, admin, "Tea", "9.99")
	mug := ct.createProduct(t, admin, "Mug", "5.50")
	gone := ct.createProduct(t, admin, "Vase", "30.00")

	guest := env.NewClient(t)
	ct.addItem(t, guest, tea.ID, 1, false)
	ct.addItem(t, guest, tea.ID, 1, false)
	ct.addItem(t, guest, mug.ID, 9, false)
	ct.addItem(t, guest, mug.ID, 4, true)
	ct.addItem(t, guest, gone.ID, 1, false)

	ct.do(t, admin, http.MethodDelete, "/products/"+gone.ID, nil, http.StatusNoContent, nil)

	var sum cart.Summary
	ct.do(t, guest, http.MethodGet, "/cart", nil, http.StatusOK, &sum)
	if sum.Count != 6 || !sum.Total.Equal(decimal.RequireFromString("41.98")) {
		t.Fatalf("unexpected cart: count %d total %s", sum.Count, sum.Total)
	}

	// Raising the catalog price afterwards must not change what is charged.
	ct.do(t, admin, http.MethodPut, "/products/"+tea.ID, map[string]any{"price": "12.00"}, http.StatusOK, nil)

	bad := orderForm()
	bad["postalCode"] = "not a postcode"
	ct.do(t, guest, http.MethodPost, "/orders", bad, http.StatusUnprocessableEntity, nil)

	loc := ct.do(t, guest, http.MethodPost, "/orders", orderForm(), http.StatusSeeOther, nil)
	if loc != "/payment/process" {
		t.Fatalf("expected redirect to /payment/process, got %q", loc)
	}

	ct.do(t, guest, http.MethodGet, "/cart", nil, http.StatusOK, &sum)
	if sum.Count != 0 {
		t.Fatalf("cart should be empty after ordering, got %d", sum.Count)
	}
	if loc := ct.do(t, guest, http.MethodPost, "/orders", orderForm(), http.StatusSeeOther, nil); loc != "/cart" {
		t.Fatalf("ordering an empty cart should redirect to /cart, got %q", loc)
	}

	var pv struct {
		ID        string          `json:"id"`
		TotalCost decimal.Decimal `json:"totalCost"`
	}
	ct.do(t, guest, http.MethodGet, "/payment/process", nil, http.StatusOK, &pv)
	if !pv.TotalCost.Equal(decimal.RequireFromString("41.98")) {
		t.Fatalf("order total must use cart prices, got %s", pv.TotalCost)
	}
	orderID := pv.ID

	env.Stripe.setFailing(true)
	ct.do(t, guest, http.MethodPost, "/payment/process", nil, http.StatusBadGateway, nil)
	env.Stripe.setFailing(false)

	ord, err := order.Fetch(context.Background(), env.DB, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.StripeID != nil || ord.Paid {
		t.Fatalf("a failed checkout must not change the order: %+v", ord)
	}

	hosted := ct.do(t, guest, http.MethodPost, "/payment/process", nil, http.StatusSeeOther, nil)
	sessionID := hosted[strings.LastIndex(hosted, "/")+1:]

	if diff := cmp.Diff([]string{"999 x 2 gbp", "550 x 4 gbp"}, env.Stripe.lineAmounts(orderID)); diff != "" {
		t.Fatalf("unexpected line items (-want +got):\n%s", diff)
	}

	if ord, _ = order.Fetch(context.Background(), env.DB, orderID); ord.Ref().Value != sessionID {
		t.Fatalf("expected the checkout session to be recorded, got %+v", ord.Ref())
	}

	unsigned := ct.webhook(t, "checkout.session.completed", env.Stripe.paid(sessionID), false)
	if unsigned != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unsigned webhook, got %d", unsigned)
	}

	// Webhook and browser return race to finalize the same order.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if code := ct.webhook(t, "checkout.session.completed", env.Stripe.paid(sessionID), true); code != http.StatusOK {
			t.Errorf("webhook: expected 200, got %d", code)
		}
	}()
	go func() {
		defer wg.Done()
		w, err := ct.Client().Get(ct.URL + "/payment/completed?session_id=" + url.QueryEscape(sessionID))
		if err != nil {
			t.Error(err)
			return
		}
		defer w.Body.Close()
		if w.StatusCode != http.StatusOK {
			t.Errorf("return: expected 200, got %d", w.StatusCode)
		}
	}()
	wg.Wait()

	if code := ct.webhook(t, "checkout.session.completed", env.Stripe.paid(sessionID), true); code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", code)
	}

	ord, err = order.Fetch(context.Background(), env.DB, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if !ord.Paid || ord.Ref().Kind != order.RefPaymentIntent {
		t.Fatalf("expected a paid order referencing the payment intent, got %+v", ord)
	}

	if n := env.Mail.count("Invoice no. " + orderID); n != 1 {
		t.Fatalf("expected exactly one invoice email, got %d", n)
	}
	if n := env.Mail.count("Order nr. " + orderID); n != 1 {
		t.Fatalf("expected exactly one order email, got %d", n)
	}

	if t.Failed() {
		t.FailNow()
	}

	var ret struct {
		Paid bool `json:"paid"`
	}
	ct.do(t, guest, http.MethodGet, "/payment/completed", nil, http.StatusOK, &ret)
	if !ret.Paid {
		t.Fatal("the return page should report the order as paid")
	}

	var view struct {
		DashboardURL string `json:"dashboardUrl"`
	}
	ct.do(t, admin, http.MethodGet, "/orders/"+orderID, nil, http.StatusOK, &view)
	if want := "https://dashboard.stripe.com/test/payments/pi_" + sessionID; view.DashboardURL != want {
		t.Fatalf("dashboard url = %q, want %q", view.DashboardURL, want)
	}
}

func TestWebhookUnknownOrder(t *testing.T) {
	env, err := NewTestEnv(t, "webhook_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	obj := map[string]any{
		"id":       "pi_unknown",
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": "5f0c6c1e-1f0b-4a59-8d8e-0d8f1b2b7c11"},
	}
	if code := ct.webhook(t, "payment_intent.succeeded", obj, true); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := ct.webhook(t, "charge.refunded", map[string]any{"id": "ch_1"}, true); code != http.StatusOK {
		t.Fatalf("expected 200 for an ignored event, got %d", code)
	}
}

func orderForm() map[string]any {
	return map[string]any{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"email":      "ada@example.com",
		"address":    "1 Street",
		"postalCode": "sw1a 1aa",
		"city":       "London",
	}
}

func (ct *checkoutTest) createProduct(t *testing.T, c *http.Client, name, price string) product.Product {
	t.Helper()

	var p product.Product
	ct.do(t, c, http.MethodPost, "/products", map[string]any{
		"category": "home",
		"name":     name,
		"slug":     strings.ToLower(name),
		"price":    price,
	}, http.StatusCreated, &p)
	return p
}

func (ct *checkoutTest) addItem(t *testing.T, c *http.Client, productID string, qty int, override bool) {
	t.Helper()

	ct.do(t, c, http.MethodPut, "/cart/items", map[string]any{
		"productId": productID,
		"quantity":  qty,
		"override":  override,
	}, http.StatusOK, nil)
}

// do sends body as JSON, checks the status code, decodes the response into
// out when given and returns the Location header.
func (ct *checkoutTest) do(t *testing.T, c *http.Client, method, path string, body any, status int, out any) string {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, ct.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := c.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != status {
		msg, _ := io.ReadAll(w.Body)
		t.Fatalf("%s %s: expected status %d, got %s: %s", method, path, status, w.Status, msg)
	}

	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}

	return w.Header.Get("Location")
}

func (ct *checkoutTest) webhook(t *testing.T, typ string, object any, sign bool) int {
	raw, err := json.Marshal(object)
	if err != nil {
		t.Error(err)
		return 0
	}

	b, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        typ,
		"data":        map[string]json.RawMessage{"object": raw},
	})
	if err != nil {
		t.Error(err)
		return 0
	}

	r, err := http.NewRequest(http.MethodPost, ct.URL+"/payment/webhook", bytes.NewReader(b))
	if err != nil {
		t.Error(err)
		return 0
	}

	if sign {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   b,
			Secret:    ct.WebhookSecret,
			Timestamp: time.Now(),
		})
		r.Header.Set("Stripe-Signature", signed.Header)
	}

	w, err := ct.Client().Do(r)
	if err != nil {
		t.Error(err)
		return 0
	}
	defer w.Body.Close()

	return w.StatusCode
}
