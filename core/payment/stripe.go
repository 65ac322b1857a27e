package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

// Stripe implements Provider on top of Stripe Checkout. Every API call is
// bounded by a timeout and goes through a circuit breaker so an outage
// fails fast instead of piling up requests.
type Stripe struct {
	api           *stripecl.API
	webhookSecret string
	timeout       time.Duration
	cb            *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewStripe(api *stripecl.API, webhookSecret string, timeout time.Duration) *Stripe {
	st := gobreaker.Settings{
		Name:    "stripe",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Requests Stripe rejects on their merits say nothing about its health.
		IsSuccessful: func(err error) bool {
			var se *stripe.Error
			if errors.As(err, &se) {
				return se.HTTPStatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
	}

	return &Stripe{
		api:           api,
		webhookSecret: webhookSecret,
		timeout:       timeout,
		cb:            gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](st),
	}
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, l := range req.Lines {
		li = append(li, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(l.UnitAmount),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems:         li,

		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: req.OrderID},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderID, req.OrderID)

	cs, err := s.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return s.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return CheckoutSession{}, providerError("creating checkout session", err)
	}

	return toSession(cs), nil
}

func (s *Stripe) RetrieveCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := s.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return s.api.CheckoutSessions.Get(id, params)
	})
	if err != nil {
		return CheckoutSession{}, providerError(fmt.Sprintf("retrieving checkout session[%s]", id), err)
	}

	return toSession(cs), nil
}

func (s *Stripe) ConstructEvent(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: %v", ErrSignature, webhook.ErrNotSigned)
	}

	// Events are signed for the endpoint's API version, which may be older
	// than the library's. The typed decoding below only reads stable fields.
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event[%s] has no data", ErrPayload, event.ID)
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return CheckoutCompleted{ID: event.ID, Session: toSession(&cs)}, nil

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return PaymentIntentSucceeded{ID: event.ID, PaymentIntent: pi.ID, Metadata: pi.Metadata}, nil
	}

	return Unhandled{ID: event.ID, Type: string(event.Type)}, nil
}

func toSession(cs *stripe.CheckoutSession) CheckoutSession {
	s := CheckoutSession{
		ID:                cs.ID,
		URL:               cs.URL,
		Mode:              string(cs.Mode),
		PaymentStatus:     string(cs.PaymentStatus),
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		s.PaymentIntent = cs.PaymentIntent.ID
	}
	return s
}

func providerError(op string, err error) error {
	msg := "the payment service is unavailable, please try again later"

	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		msg = se.Msg
	}

	return &ProviderError{Message: msg, Err: fmt.Errorf("%s: %w", op, err)}
}
