package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/env"
)

const defaultForwardTimeout = 10 * time.Second

// SignatureHeader carries the internal HMAC on forwarded requests.
const SignatureHeader = "x-webhook-signature"

// Forwarder relays settled payments to the main backend under the internal
// trust boundary: it re-signs the normalized payment data with a secret the
// upstream processor never sees. Forwarding is a notification side-channel;
// a failure here never reverses a committed wallet credit.
type Forwarder struct {
	Endpoint string
	Secret   string

	HTTPClient *http.Client
}

// NewForwarderFromEnv builds a forwarder from environment configuration. The
// internal secret is its own trust boundary and is never substituted with the
// upstream processor secret.
func NewForwarderFromEnv() *Forwarder {
	secret := env.GetEnv("INTERNAL_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Print("INTERNAL_WEBHOOK_SECRET not configured, forwarding disabled")
	}

	return &Forwarder{
		Endpoint: env.GetEnv("BACKEND_API_URL", "http://localhost:8000/api/v1/wallet/payment-webhook"),
		Secret:   secret,
		HTTPClient: &http.Client{
			Timeout: defaultForwardTimeout,
		},
	}
}

// Forward POSTs the payment data to the backend with a fresh signature over
// the exact bytes sent. A non-2xx response or transport error is returned as
// an error. There is no internal retry; retry policy belongs to the caller.
func (f *Forwarder) Forward(ctx context.Context, data PaymentData) error {
	if f.Secret == "" {
		return errors.New("internal webhook secret not configured, refusing to forward unsigned payment data")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payment data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, f.Secret))

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward payment %s: %w", data.PaymentID, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend rejected forwarded payment %s: status=%d body=%s",
			data.PaymentID, resp.StatusCode, string(respBody))
	}
	return nil
}
