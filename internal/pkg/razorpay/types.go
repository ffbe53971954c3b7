package razorpay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Headers set by Razorpay on webhook deliveries.
const (
	WebhookSignatureHeader = "X-Razorpay-Signature"
	WebhookEventIDHeader   = "X-Razorpay-Event-Id"
)

// Webhook event types this service understands. Everything else is
// acknowledged without effect.
const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
)

// Notes is Razorpay's free-form key/value attachment. The API serializes an
// empty notes object as a JSON array, so unmarshalling must tolerate both.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*n = Notes{}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = Notes(m)
	return nil
}

// PaymentEntity is the payment object nested in a webhook envelope.
type PaymentEntity struct {
	ID        string `json:"id" validate:"required"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount" validate:"gte=0"`
	Currency  string `json:"currency"`
	Status    string `json:"status" validate:"required"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method"`
	Captured  bool   `json:"captured"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
	Notes     Notes  `json:"notes"`
	CreatedAt int64  `json:"created_at"`
}

// CustomerID extracts the customer reference stamped into the payment notes
// at order creation. Both spellings have been observed in production traffic.
func (p PaymentEntity) CustomerID() string {
	if id := p.Notes["customerId"]; id != "" {
		return id
	}
	return p.Notes["customer_id"]
}

// WebhookEnvelope is the subset of the webhook body this service consumes.
// Only payment.* events carry a payment entity; other event types (refunds,
// orders, disputes) arrive with different payload shapes and are acknowledged
// without one.
type WebhookEnvelope struct {
	Entity    string `json:"entity"`
	AccountID string `json:"account_id"`
	Event     string `json:"event"`
	Payload   struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// IsPaymentEvent reports whether the envelope carries a payment entity.
func (e *WebhookEnvelope) IsPaymentEvent() bool {
	return strings.HasPrefix(e.Event, "payment.")
}

var validate = validator.New()

// ParseWebhook unmarshals and validates a raw webhook body. The caller keeps
// the raw bytes for signature verification; this only produces the parsed form.
// The payment-entity schema is enforced only for payment.* events, so an
// authentic delivery of any other event type still parses and can be
// acknowledged instead of bounced back for retry.
func ParseWebhook(raw []byte) (*WebhookEnvelope, error) {
	var envelope WebhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if strings.TrimSpace(envelope.Event) == "" {
		return nil, errors.New("invalid webhook payload: event is required")
	}
	if envelope.IsPaymentEvent() {
		if err := validate.Struct(&envelope.Payload.Payment.Entity); err != nil {
			return nil, fmt.Errorf("invalid webhook payload: %w", err)
		}
	}
	return &envelope, nil
}
