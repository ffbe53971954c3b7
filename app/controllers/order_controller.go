package controllers

import (
	"context"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/cache"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/razorpay"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/wallet"
)

// OrderCreator is the slice of the Razorpay client the order path needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in razorpay.CreateOrderRequest) (*razorpay.Order, error)
}

// OrderController exposes order creation for the checkout flow and the
// client-side payment verification endpoint.
type OrderController struct {
	client    OrderCreator
	keyID     string
	keySecret string
}

// NewOrderController creates an order controller with explicit dependencies.
func NewOrderController(client OrderCreator, keyID, keySecret string) *OrderController {
	return &OrderController{
		client:    client,
		keyID:     keyID,
		keySecret: keySecret,
	}
}

type createOrderRequest struct {
	Amount     int64             `json:"amount" validate:"required,gt=0"`
	Currency   string            `json:"currency"`
	CustomerID string            `json:"customerId" validate:"required"`
	Notes      map[string]string `json:"notes"`
}

var orderValidate = validator.New()

// HandleCreateOrder creates a Razorpay order with the customer id stamped
// into the order notes, so the webhook can always trace a payment back to a
// customer. Amount arrives in rupees and is converted to paise for the API.
func (oc *OrderController) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, false, "Invalid request body")
	}
	if err := orderValidate.Struct(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, false, "Missing required parameters")
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	notes := razorpay.Notes{}
	for k, v := range req.Notes {
		notes[k] = v
	}
	notes["customerId"] = req.CustomerID

	receipt := "rcpt_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	order, err := oc.client.CreateOrder(c.UserContext(), razorpay.CreateOrderRequest{
		Amount:   req.Amount * 100, // rupees to paise
		Currency: req.Currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		log.Printf("failed to create order for customer %s: %v", req.CustomerID, err)
		return respond(c, fiber.StatusInternalServerError, false, "Failed to create order")
	}

	// Remember the order owner so the webhook can resolve the customer even
	// when the payment notes get stripped along the way.
	if err := cache.Set(orderCustomerCacheKey(order.ID), req.CustomerID, orderCustomerCacheTTL); err != nil {
		log.Printf("failed to cache customer for order %s: %v", order.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"order":   order,
		"key_id":  oc.keyID,
	})
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// HandleVerifyPayment checks the checkout callback signature: an HMAC-SHA256
// over "order_id|payment_id" with the key secret. This is the browser-side
// confirmation only; the wallet credit still waits for the captured webhook.
func (oc *OrderController) HandleVerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, false, "Invalid request body")
	}
	if err := orderValidate.Struct(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, false, "Missing required parameters")
	}

	signed := req.RazorpayOrderID + "|" + req.RazorpayPaymentID
	if !wallet.VerifySignature([]byte(signed), req.RazorpaySignature, oc.keySecret) {
		return respond(c, fiber.StatusBadRequest, false, "Payment verification failed")
	}
	return respond(c, fiber.StatusOK, true, "Payment verified successfully")
}
