package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

var errMissingSignature = errors.New("missing Stripe-Signature header")

// EventVerifier authenticates a raw webhook body and decodes it.
type EventVerifier interface {
	VerifyCheckoutEvent(payload []byte, signature string) (*models.CheckoutEvent, error)
}

// CheckoutProvider creates and reads hosted checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionInfo, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSessionInfo, error)
}

type CheckoutSessionRequest struct {
	ItemName          string
	Description       string
	UnitAmount        int64
	Currency          string
	Quantity          int64
	Metadata          map[string]string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
}

type CheckoutSessionInfo struct {
	ID            string            `json:"id"`
	URL           string            `json:"url,omitempty"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"-"`
}

type StripeService struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

func NewStripeService(secretKey, webhookSecret string) *StripeService {
	return &StripeService{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

// VerifyCheckoutEvent checks the Stripe-Signature header against the raw body
// before decoding anything. Checkout session fields are only decoded for the
// event types the reconciler acts on.
func (s *StripeService) VerifyCheckoutEvent(payload []byte, signature string) (*models.CheckoutEvent, error) {
	if signature == "" {
		return nil, &AuthenticationError{Err: errMissingSignature}
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, s.webhookSecret, s.tolerance); err != nil {
		return nil, &AuthenticationError{Err: err}
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &MalformedEventError{Field: "payload", Reason: "is not a valid event: " + err.Error()}
	}

	evt := &models.CheckoutEvent{EventID: event.ID, Type: string(event.Type)}
	if evt.Type != models.EventCheckoutCompleted && evt.Type != models.EventCheckoutAsyncPaymentSucceeded {
		return evt, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, &MalformedEventError{Field: "data.object", Reason: "is missing"}
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, &MalformedEventError{Field: "data.object", Reason: "is not a checkout session: " + err.Error()}
	}

	evt.SessionID = sess.ID
	evt.AmountTotal = sess.AmountTotal
	evt.Currency = string(sess.Currency)
	evt.PaymentStatus = string(sess.PaymentStatus)
	evt.Metadata = sess.Metadata
	return evt, nil
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionInfo, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ItemName),
						Description: optionalString(req.Description),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: optionalString(req.ClientReferenceID),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return toSessionInfo(sess), nil
}

func (s *StripeService) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSessionInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toSessionInfo(sess), nil
}

func toSessionInfo(sess *stripe.CheckoutSession) *CheckoutSessionInfo {
	return &CheckoutSessionInfo{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return stripe.String(v)
}
