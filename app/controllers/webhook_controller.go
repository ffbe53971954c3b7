package controllers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamhvsharma/razorpay-webhook/app/models"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/cache"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/env"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/metrics/counter"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/razorpay"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/wallet"
)

const orderCustomerCacheTTL = 24 * time.Hour

// OrderFetcher is the slice of the Razorpay client the webhook path needs.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error)
}

// WebhookController handles inbound payment webhooks: signature verification,
// deduplication, transactional settlement and best-effort forwarding.
type WebhookController struct {
	secret    string
	ledger    *wallet.Service
	tracker   *wallet.EventTracker
	forwarder *wallet.Forwarder
	orders    OrderFetcher
}

// NewWebhookController creates a webhook controller with explicit dependencies.
func NewWebhookController(secret string, ledger *wallet.Service, tracker *wallet.EventTracker, forwarder *wallet.Forwarder, orders OrderFetcher) *WebhookController {
	return &WebhookController{
		secret:    secret,
		ledger:    ledger,
		tracker:   tracker,
		forwarder: forwarder,
		orders:    orders,
	}
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respond(c *fiber.Ctx, status int, success bool, message string) error {
	return c.Status(status).JSON(webhookResponse{Success: success, Message: message})
}

// HandleRazorpayWebhook processes one webhook delivery.
//
// Response policy: only a bad request itself (missing/invalid signature,
// structurally invalid payload) earns a non-200. Every business failure after
// authentication is acknowledged with 200 so the processor does not retry
// errors this service cannot self-heal; operators watch logs and counters
// instead of the HTTP status.
func (wc *WebhookController) HandleRazorpayWebhook(c *fiber.Ctx) error {
	_ = counter.AddOutcome(counter.Received)

	raw := c.Body()
	if len(raw) == 0 {
		return respond(c, fiber.StatusInternalServerError, false, "Raw body unavailable")
	}
	if wc.secret == "" {
		log.Print("RAZORPAY_WEBHOOK_SECRET not configured")
		return respond(c, fiber.StatusInternalServerError, false, "Webhook secret not configured")
	}

	signature := strings.TrimSpace(c.Get(razorpay.WebhookSignatureHeader))
	if signature == "" {
		_ = counter.AddOutcome(counter.Rejected)
		return respond(c, fiber.StatusBadRequest, false, "Missing signature header")
	}

	// The signature covers the exact raw bytes; parsing happens only after
	// the payload proves authentic.
	if !wallet.VerifySignature(raw, signature, wc.secret) {
		log.Print("invalid webhook signature")
		_ = counter.AddOutcome(counter.Rejected)
		return respond(c, fiber.StatusBadRequest, false, "Invalid signature")
	}

	envelope, err := razorpay.ParseWebhook(raw)
	if err != nil {
		log.Printf("webhook payload rejected: %v", err)
		_ = counter.AddOutcome(counter.Rejected)
		msg := "Invalid webhook payload"
		if env.IsDev() {
			msg = fmt.Sprintf("Invalid webhook payload: %v", err)
		}
		return respond(c, fiber.StatusBadRequest, false, msg)
	}

	ctx := c.UserContext()
	payment := envelope.Payload.Payment.Entity
	log.Printf("received event %s for payment %s", envelope.Event, payment.ID)

	// Durable audit row, keyed by the provider event id. A replayed delivery
	// whose first processing finished cleanly is answered from here without
	// touching the ledger. A redelivery after a failed attempt must run the
	// pipeline again; only the payment_id unique index may declare a credit
	// already applied.
	firstSeen, audit, auditErr := wc.ledger.RecordWebhookEvent(ctx, c.Get(razorpay.WebhookEventIDHeader), envelope.Event, payment.ID, raw)
	if auditErr != nil {
		log.Printf("failed to record webhook event: %v", auditErr)
	} else if !firstSeen && audit.ProcessedAt != nil && audit.ProcessingError == "" {
		_ = counter.AddOutcome(counter.Duplicate)
		return respond(c, fiber.StatusOK, true, "Event already processed")
	}

	switch envelope.Event {
	case razorpay.EventPaymentCaptured:
		return wc.settle(c, envelope, audit)
	case razorpay.EventPaymentAuthorized:
		// Await the capture event; crediting on authorization risks crediting
		// funds that are never captured.
		log.Printf("payment %s authorized but not yet captured, waiting for capture event", payment.ID)
		wc.finishAudit(ctx, audit, nil)
		_ = counter.AddOutcome(counter.Skipped)
		return respond(c, fiber.StatusOK, true, "Payment authorized, awaiting capture")
	case razorpay.EventPaymentFailed:
		log.Printf("payment %s failed: status=%s", payment.ID, payment.Status)
		wc.finishAudit(ctx, audit, nil)
		_ = counter.AddOutcome(counter.Skipped)
		return respond(c, fiber.StatusOK, true, "Received webhook event: "+envelope.Event)
	default:
		wc.finishAudit(ctx, audit, nil)
		_ = counter.AddOutcome(counter.Skipped)
		return respond(c, fiber.StatusOK, true, "Received webhook event: "+envelope.Event)
	}
}

func (wc *WebhookController) settle(c *fiber.Ctx, envelope *razorpay.WebhookEnvelope, audit *models.WebhookEvent) error {
	ctx := c.UserContext()
	payment := envelope.Payload.Payment.Entity

	if wc.tracker.IsProcessed(payment.ID, envelope.Event) {
		_ = counter.AddOutcome(counter.Duplicate)
		wc.finishAudit(ctx, audit, nil)
		return respond(c, fiber.StatusOK, true, "Event already processed")
	}

	customerID := payment.CustomerID()
	if customerID == "" {
		customerID = wc.lookupCustomerID(ctx, payment.OrderID)
	}
	if customerID == "" {
		log.Printf("no customer id found for payment %s (order %s)", payment.ID, payment.OrderID)
		_ = counter.AddOutcome(counter.Failed)
		wc.finishAudit(ctx, audit, wallet.ErrCustomerNotFound)
		return respond(c, fiber.StatusOK, false, "No customer id in payment notes or order")
	}

	// Paise to rupees, truncating. This conversion happens exactly once.
	amount := payment.Amount / 100

	outcome, err := wc.ledger.ApplyPayment(ctx, wallet.ApplyPaymentInput{
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		CustomerID: customerID,
		Amount:     amount,
		Status:     payment.Status,
	})

	switch outcome {
	case wallet.OutcomeApplied:
		wc.tracker.MarkProcessed(payment.ID, envelope.Event)
		_ = counter.AddOutcome(counter.Credited)
		log.Printf("credited %d to customer %s for payment %s", amount, customerID, payment.ID)

		if fwdErr := wc.forwarder.Forward(ctx, wallet.PaymentData{
			PaymentID:  payment.ID,
			OrderID:    payment.OrderID,
			CustomerID: customerID,
			Amount:     amount,
			Status:     "successful",
			EventType:  envelope.Event,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}); fwdErr != nil {
			// The credit is committed; forwarding is a side-channel and its
			// failure must not surface to the upstream sender.
			log.Printf("forwarding payment %s failed: %v", payment.ID, fwdErr)
			_ = counter.AddOutcome(counter.ForwardFailed)
		}

		wc.finishAudit(ctx, audit, nil)
		return respond(c, fiber.StatusOK, true, "Payment settled")

	case wallet.OutcomeAlreadyApplied:
		wc.tracker.MarkProcessed(payment.ID, envelope.Event)
		_ = counter.AddOutcome(counter.Duplicate)
		wc.finishAudit(ctx, audit, nil)
		return respond(c, fiber.StatusOK, true, "Event already processed")

	case wallet.OutcomeCustomerNotFound:
		log.Printf("customer %s not found for payment %s", customerID, payment.ID)
		_ = counter.AddOutcome(counter.Failed)
		wc.finishAudit(ctx, audit, err)
		return respond(c, fiber.StatusOK, false, "Customer not found")

	default:
		log.Printf("settlement failed for payment %s: %v", payment.ID, err)
		_ = counter.AddOutcome(counter.Failed)
		wc.finishAudit(ctx, audit, err)
		return respond(c, fiber.StatusOK, false, "Failed to process payment")
	}
}

// lookupCustomerID resolves the order's customer when the payment notes carry
// none: first the cache written at order creation, then the Orders API.
func (wc *WebhookController) lookupCustomerID(ctx context.Context, orderID string) string {
	if orderID == "" {
		return ""
	}

	if id, err := cache.Get(orderCustomerCacheKey(orderID)); err == nil && id != "" {
		return id
	}

	if wc.orders == nil {
		return ""
	}
	order, err := wc.orders.FetchOrder(ctx, orderID)
	if err != nil {
		log.Printf("failed to fetch order %s: %v", orderID, err)
		return ""
	}

	id := order.Notes["customerId"]
	if id == "" {
		id = order.Notes["customer_id"]
	}
	if id != "" {
		if err := cache.Set(orderCustomerCacheKey(orderID), id, orderCustomerCacheTTL); err != nil {
			log.Printf("failed to cache customer for order %s: %v", orderID, err)
		}
	}
	return id
}

func orderCustomerCacheKey(orderID string) string {
	return "order:customer:" + orderID
}

// finishAudit stamps the audit row as processed, best-effort.
func (wc *WebhookController) finishAudit(ctx context.Context, audit *models.WebhookEvent, processingErr error) {
	if audit == nil {
		return
	}
	if err := wc.ledger.MarkWebhookProcessed(ctx, audit.ID, processingErr); err != nil {
		log.Printf("failed to mark webhook event %d processed: %v", audit.ID, err)
	}
}
