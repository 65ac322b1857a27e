package order

import (
	"testing"

	"github.com/irsalhamdi/storefront/validate"
	"github.com/shopspring/decimal"
)

func TestMergeRef(t *testing.T) {
	pi := Ref{Kind: RefPaymentIntent, Value: "pi_1"}
	pi2 := Ref{Kind: RefPaymentIntent, Value: "pi_2"}
	cs := Ref{Kind: RefCheckoutSession, Value: "cs_1"}

	tests := []struct {
		name      string
		current   Ref
		candidate Ref
		want      Ref
		changed   bool
	}{
		{"nothing known", Ref{}, Ref{}, Ref{}, false},
		{"first reference", Ref{}, cs, cs, true},
		{"keep when candidate empty", cs, Ref{}, cs, false},
		{"same reference", pi, pi, pi, false},
		{"upgrade session to intent", cs, pi, pi, true},
		{"never downgrade intent", pi, cs, pi, false},
		{"newer intent", pi, pi2, pi2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := MergeRef(tt.current, tt.candidate)
			if got != tt.want || changed != tt.changed {
				t.Fatalf("MergeRef(%v, %v) = %v, %v; want %v, %v", tt.current, tt.candidate, got, changed, tt.want, tt.changed)
			}
		})
	}
}

func TestDashboardURL(t *testing.T) {
	pi, cs := "pi_1", "cs_1"
	kpi, kcs := string(RefPaymentIntent), string(RefCheckoutSession)

	if got := (Order{}).DashboardURL(true); got != "" {
		t.Fatalf("expected no url without a reference, got %q", got)
	}

	got := Order{StripeID: &pi, StripeKind: &kpi}.DashboardURL(true)
	if want := "https://dashboard.stripe.com/test/payments/pi_1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got = Order{StripeID: &cs, StripeKind: &kcs}.DashboardURL(false)
	if want := "https://dashboard.stripe.com/checkouts/sessions/cs_1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTotalCostUsesItemPrices(t *testing.T) {
	items := []Item{
		{Price: decimal.RequireFromString("9.99"), Quantity: 2},
		{Price: decimal.RequireFromString("5.50"), Quantity: 4},
	}

	if got := TotalCost(items); !got.Equal(decimal.RequireFromString("41.98")) {
		t.Fatalf("expected 41.98, got %s", got)
	}
}

func TestNormalizePostalCode(t *testing.T) {
	if got := NormalizePostalCode("  sw1a   1aa "); got != "SW1A 1AA" {
		t.Fatalf("got %q", got)
	}
}

func TestOrderNewPostalCode(t *testing.T) {
	tests := []struct {
		pc   string
		want bool
	}{
		{"sw1a 1aa", true},
		{"SW1A  1AA", true},
		{"SW1A 1AA", true},
		{"xxSW1A 1AAyy", false},
		{"garbage SW1A 1AA garbage", false},
	}

	for _, tt := range tests {
		in := OrderNew{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      "ada@example.com",
			Address:    "1 Street",
			PostalCode: tt.pc,
			City:       "London",
		}
		fields := validate.CheckFields(in)
		if got := fields == nil; got != tt.want {
			t.Errorf("postal code %q: accepted = %v, want %v (%v)", tt.pc, got, tt.want, fields)
		}
	}
}
