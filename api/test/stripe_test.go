package test

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/web"
	mock "github.com/stripe/stripe-mock/param"
)

type checkoutSession struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	URL               string            `json:"url"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     string            `json:"payment_intent,omitempty"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// mockStripe stands in for the Checkout Sessions API. Created sessions
// count as paid as soon as they are retrieved.
type mockStripe struct {
	mu       sync.Mutex
	sessions map[string]checkoutSession
	amounts  map[string][]string
	fail     bool
}

func newMockStripe() *mockStripe {
	return &mockStripe{
		sessions: make(map[string]checkoutSession),
		amounts:  make(map[string][]string),
	}
}

func (m *mockStripe) handle() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			fmt.Fprint(w, `{"error":{"type":"card_error","message":"Your card was declined."}}`)
			return
		}

		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		ref, _ := params["client_reference_id"].(string)
		md, _ := params["metadata"].(map[string]any)
		if ref == "" || md["order_id"] != ref {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		var amounts []string
		for _, li := range entries(params["line_items"]) {
			pd, _ := li["price_data"].(map[string]any)
			amounts = append(amounts, fmt.Sprintf("%v x %v %v", pd["unit_amount"], li["quantity"], pd["currency"]))
		}

		n := len(m.sessions) + 1
		cs := checkoutSession{
			ID:                fmt.Sprintf("cs_test_%d", n),
			Object:            "checkout.session",
			URL:               fmt.Sprintf("https://checkout.stripe.test/pay/cs_test_%d", n),
			Mode:              "payment",
			PaymentStatus:     "unpaid",
			ClientReferenceID: ref,
			Metadata:          map[string]string{"order_id": ref},
		}
		m.sessions[cs.ID] = cs
		m.amounts[ref] = amounts

		web.Respond(context.Background(), w, cs, http.StatusOK)
	})

	retrieve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		cs, ok := m.sessions[mux.Vars(r)["id"]]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
			return
		}

		cs.PaymentStatus = "paid"
		cs.PaymentIntent = "pi_" + cs.ID
		web.Respond(context.Background(), w, cs, http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", create).Methods(http.MethodPost)
	r.Handle("/v1/checkout/sessions/{id}", retrieve).Methods(http.MethodGet)
	return r
}

func (m *mockStripe) paid(id string) checkoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := m.sessions[id]
	cs.PaymentStatus = "paid"
	cs.PaymentIntent = "pi_" + cs.ID
	return cs
}

func (m *mockStripe) lineAmounts(orderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.amounts[orderID]
}

func (m *mockStripe) setFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func entries(v any) []map[string]any {
	var out []map[string]any
	switch vv := v.(type) {
	case []any:
		for _, e := range vv {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		for i := 0; i < len(vv); i++ {
			if m, ok := vv[fmt.Sprint(i)].(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}
