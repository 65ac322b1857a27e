// Package payment hands customers off to the hosted checkout of the payment
// provider and reconciles the provider's completion signals with orders.
package payment

import (
	"context"
	"errors"

	"github.com/irsalhamdi/storefront/core/order"
)

var (
	// ErrSignature is returned for webhook payloads that are unsigned or
	// whose signature does not verify.
	ErrSignature = errors.New("invalid webhook signature")

	// ErrPayload is returned for signed webhook payloads that cannot be
	// decoded.
	ErrPayload = errors.New("malformed webhook payload")
)

// metadataOrderID is the metadata key carrying the order id on both the
// checkout session and its payment intent.
const metadataOrderID = "order_id"

// ProviderError is a failure reported by the payment provider. Message is
// safe to show to the customer.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return "payment provider: " + e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }

type Line struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	OrderID    string
	Currency   string
	Lines      []Line
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID                string
	URL               string
	Mode              string
	PaymentStatus     string
	PaymentIntent     string
	ClientReferenceID string
	Metadata          map[string]string
}

// Ref returns the payment intent reference when known, the checkout
// session reference otherwise.
func (s CheckoutSession) Ref() order.Ref {
	if s.PaymentIntent != "" {
		return order.Ref{Kind: order.RefPaymentIntent, Value: s.PaymentIntent}
	}
	if s.ID != "" {
		return order.Ref{Kind: order.RefCheckoutSession, Value: s.ID}
	}
	return order.Ref{}
}

// OrderID reads the order id from the client reference, falling back on
// the metadata.
func (s CheckoutSession) OrderID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata[metadataOrderID]
}

// Paid reports a fully paid one-time payment. Other modes are not handled.
func (s CheckoutSession) Paid() bool {
	return s.Mode == "payment" && s.PaymentStatus == "paid"
}

// Event is one of CheckoutCompleted, PaymentIntentSucceeded or Unhandled.
type Event interface {
	EventID() string
}

type CheckoutCompleted struct {
	ID      string
	Session CheckoutSession
}

type PaymentIntentSucceeded struct {
	ID            string
	PaymentIntent string
	Metadata      map[string]string
}

type Unhandled struct {
	ID   string
	Type string
}

func (e CheckoutCompleted) EventID() string      { return e.ID }
func (e PaymentIntentSucceeded) EventID() string { return e.ID }
func (e Unhandled) EventID() string              { return e.ID }

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)

	// ConstructEvent verifies signature against payload and decodes the
	// event. Errors wrap ErrSignature or ErrPayload.
	ConstructEvent(payload []byte, signature string) (Event, error)
}
