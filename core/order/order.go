package order

import (
	"time"

	"github.com/irsalhamdi/storefront/validate"
	"github.com/shopspring/decimal"
)

// RefKind tells which kind of provider object a reference points at.
type RefKind string

const (
	RefPaymentIntent   RefKind = "payment_intent"
	RefCheckoutSession RefKind = "checkout_session"
)

// Ref is a provider reference stored on an order.
type Ref struct {
	Kind  RefKind `json:"kind"`
	Value string  `json:"value"`
}

func (r Ref) IsZero() bool { return r.Value == "" }

// MergeRef picks the reference to keep when candidate becomes known for an
// order currently holding current. A payment intent is never replaced by a
// checkout session. The boolean reports whether the result differs from
// current.
func MergeRef(current, candidate Ref) (Ref, bool) {
	switch {
	case candidate.IsZero() || candidate == current:
		return current, false
	case current.IsZero():
		return candidate, true
	case current.Kind == RefPaymentIntent && candidate.Kind == RefCheckoutSession:
		return current, false
	}
	return candidate, true
}

type Order struct {
	ID         string    `json:"id" db:"order_id"`
	UserID     *string   `json:"userId,omitempty" db:"user_id"`
	FirstName  string    `json:"firstName" db:"first_name"`
	LastName   string    `json:"lastName" db:"last_name"`
	Email      string    `json:"email" db:"email"`
	Address    string    `json:"address" db:"address"`
	PostalCode string    `json:"postalCode" db:"postal_code"`
	City       string    `json:"city" db:"city"`
	Paid       bool      `json:"paid" db:"paid"`
	StripeID   *string   `json:"stripeId,omitempty" db:"stripe_id"`
	StripeKind *string   `json:"stripeKind,omitempty" db:"stripe_kind"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

func (o Order) Ref() Ref {
	if o.StripeID == nil || *o.StripeID == "" {
		return Ref{}
	}
	r := Ref{Value: *o.StripeID, Kind: RefCheckoutSession}
	if o.StripeKind != nil {
		r.Kind = RefKind(*o.StripeKind)
	}
	return r
}

// DashboardURL links the order's provider reference in the Stripe
// dashboard. It is empty while no reference is known.
func (o Order) DashboardURL(testMode bool) string {
	ref := o.Ref()
	if ref.IsZero() {
		return ""
	}

	base := "https://dashboard.stripe.com/"
	if testMode {
		base += "test/"
	}

	if ref.Kind == RefPaymentIntent {
		return base + "payments/" + ref.Value
	}
	return base + "checkouts/sessions/" + ref.Value
}

type Item struct {
	OrderID     string          `json:"orderId" db:"order_id"`
	ProductID   string          `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
}

func (it Item) Cost() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// TotalCost sums the frozen prices of items.
func TotalCost(items []Item) decimal.Decimal {
	tot := decimal.Zero
	for _, it := range items {
		tot = tot.Add(it.Cost())
	}
	return tot
}

type OrderNew struct {
	FirstName  string `json:"firstName" validate:"required,max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Address    string `json:"address" validate:"required,max=250"`
	PostalCode string `json:"postalCode" validate:"required,gb_postcode"`
	City       string `json:"city" validate:"required,max=100"`
}

// NormalizePostalCode upper-cases a postal code and collapses its inner
// whitespace. Call it only on codes that passed validation.
func NormalizePostalCode(pc string) string {
	return validate.NormalizePostcode(pc)
}
