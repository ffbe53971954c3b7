package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iamhvsharma/razorpay-webhook/app/models"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/razorpay"
	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/wallet"
)

const testWebhookSecret = "whsec_test"

// memoryRepository backs controller tests with an in-memory wallet.Repository.
type memoryRepository struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	wallets   map[string]*models.Wallet
	txns      map[string]*models.PaymentTransaction
	events    map[string]*models.WebhookEvent
	nextID    uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		customers: map[string]*models.Customer{},
		wallets:   map[string]*models.Wallet{},
		txns:      map[string]*models.PaymentTransaction{},
		events:    map[string]*models.WebhookEvent{},
	}
}

func (m *memoryRepository) Transact(ctx context.Context, fn func(wallet.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.copyState()
	if err := fn(m); err != nil {
		m.customers, m.wallets, m.txns = before.customers, before.wallets, before.txns
		return err
	}
	return nil
}

type repoState struct {
	customers map[string]*models.Customer
	wallets   map[string]*models.Wallet
	txns      map[string]*models.PaymentTransaction
}

func (m *memoryRepository) copyState() repoState {
	s := repoState{
		customers: map[string]*models.Customer{},
		wallets:   map[string]*models.Wallet{},
		txns:      map[string]*models.PaymentTransaction{},
	}
	for k, v := range m.customers {
		c := *v
		s.customers[k] = &c
	}
	for k, v := range m.wallets {
		w := *v
		s.wallets[k] = &w
	}
	for k, v := range m.txns {
		t := *v
		s.txns[k] = &t
	}
	return s
}

func (m *memoryRepository) FindPaymentTransactionByPaymentID(paymentID string) (*models.PaymentTransaction, error) {
	if txn, ok := m.txns[paymentID]; ok {
		return txn, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepository) FindCustomerByID(id string) (*models.Customer, error) {
	if c, ok := m.customers[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepository) AddCustomerWalletBalance(customerID string, amount int64) error {
	if c, ok := m.customers[customerID]; ok {
		c.WalletBalance += amount
	}
	return nil
}

func (m *memoryRepository) AddWalletBalance(customerID string, amount int64) (bool, error) {
	if w, ok := m.wallets[customerID]; ok {
		w.Balance += amount
		return true, nil
	}
	return false, nil
}

func (m *memoryRepository) CreateWallet(w *models.Wallet) error {
	if _, ok := m.wallets[w.CustomerID]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.nextID++
	w.ID = m.nextID
	m.wallets[w.CustomerID] = w
	return nil
}

func (m *memoryRepository) CreatePaymentTransaction(txn *models.PaymentTransaction) error {
	if _, ok := m.txns[txn.PaymentID]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.nextID++
	txn.ID = m.nextID
	m.txns[txn.PaymentID] = txn
	return nil
}

func (m *memoryRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[event.EventID]; ok {
		return false, existing, nil
	}
	m.nextID++
	event.ID = m.nextID
	m.events[event.EventID] = event
	return true, event, nil
}

func (m *memoryRepository) MarkWebhookProcessed(id uint, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
		}
	}
	return nil
}

type fakeOrderFetcher struct {
	order *razorpay.Order
	err   error
}

func (f *fakeOrderFetcher) FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

type testEnv struct {
	app     *fiber.App
	repo    *memoryRepository
	backend *httptest.Server

	forwardedBodies [][]byte
	forwardStatus   int
}

func newTestEnv(t *testing.T, orders OrderFetcher) *testEnv {
	t.Helper()

	te := &testEnv{
		repo:          newMemoryRepository(),
		forwardStatus: http.StatusOK,
	}

	te.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		te.forwardedBodies = append(te.forwardedBodies, body)
		w.WriteHeader(te.forwardStatus)
	}))
	t.Cleanup(te.backend.Close)

	forwarder := &wallet.Forwarder{
		Endpoint:   te.backend.URL,
		Secret:     "internal-secret",
		HTTPClient: te.backend.Client(),
	}

	ctrl := NewWebhookController(
		testWebhookSecret,
		wallet.NewService(te.repo),
		wallet.NewEventTracker(100),
		forwarder,
		orders,
	)

	te.app = fiber.New()
	te.app.Post("/webhook/razorpay", ctrl.HandleRazorpayWebhook)
	return te
}

func (te *testEnv) post(t *testing.T, body []byte, signature string) (*http.Response, webhookResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(razorpay.WebhookSignatureHeader, signature)
	}

	resp, err := te.app.Test(req, -1)
	require.NoError(t, err)

	var out webhookResponse
	respBody, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(respBody, &out)
	return resp, out
}

func capturedEventBody(paymentID, orderID string, amount int64, notes string) []byte {
	return []byte(`{
		"entity": "event",
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": "` + paymentID + `",
					"entity": "payment",
					"amount": ` + jsonInt(amount) + `,
					"currency": "INR",
					"status": "captured",
					"order_id": "` + orderID + `",
					"method": "upi",
					"captured": true,
					"notes": ` + notes + `
				}
			}
		},
		"created_at": 1714560000
	}`)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestWebhookCreditsWallet(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_1"}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)

	// 50000 paise credited as 500 rupees.
	assert.Equal(t, int64(500), te.repo.customers["cust_1"].WalletBalance)
	require.NotNil(t, te.repo.wallets["cust_1"])
	assert.Equal(t, int64(500), te.repo.wallets["cust_1"].Balance)
	require.NotNil(t, te.repo.txns["pay_1"])
	assert.Equal(t, int64(500), te.repo.txns["pay_1"].Amount)

	// Settlement was forwarded with a fresh internal signature.
	require.Len(t, te.forwardedBodies, 1)
	var forwarded wallet.PaymentData
	require.NoError(t, json.Unmarshal(te.forwardedBodies[0], &forwarded))
	assert.Equal(t, "pay_1", forwarded.PaymentID)
	assert.Equal(t, int64(500), forwarded.Amount)
	assert.Equal(t, "successful", forwarded.Status)
}

func TestWebhookReplayIsAcknowledgedWithoutSecondCredit(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_1"}`)
	sig := wallet.Sign(body, testWebhookSecret)

	resp, out := te.post(t, body, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)

	resp, out = te.post(t, body, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, "Event already processed", out.Message)

	assert.Equal(t, int64(500), te.repo.customers["cust_1"].WalletBalance)
	assert.Len(t, te.repo.txns, 1)
	assert.Len(t, te.forwardedBodies, 1)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_1"}`)
	mutated := capturedEventBody("pay_1", "order_1", 99999, `{"customerId": "cust_1"}`)

	// Signature computed over different bytes than the body sent.
	resp, out := te.post(t, body, wallet.Sign(mutated, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, out.Success)
	assert.Equal(t, int64(0), te.repo.customers["cust_1"].WalletBalance)
	assert.Empty(t, te.repo.txns)
}

func TestWebhookRejectsMissingSignatureHeader(t *testing.T) {
	te := newTestEnv(t, nil)

	body := capturedEventBody("pay_1", "order_1", 50000, `{}`)
	resp, out := te.post(t, body, "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, out.Success)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	te := newTestEnv(t, nil)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"status":"captured"}}}}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, out.Success)
}

func TestWebhookWithoutCustomerIsAcknowledgedWithoutCredit(t *testing.T) {
	// Order lookup also finds no customer.
	te := newTestEnv(t, &fakeOrderFetcher{order: &razorpay.Order{ID: "order_1"}})
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := capturedEventBody("pay_1", "order_1", 50000, `{}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.Success)
	assert.Equal(t, int64(0), te.repo.customers["cust_1"].WalletBalance)
	assert.Empty(t, te.repo.txns)
}

func TestWebhookResolvesCustomerFromOrder(t *testing.T) {
	te := newTestEnv(t, &fakeOrderFetcher{order: &razorpay.Order{
		ID:    "order_1",
		Notes: razorpay.Notes{"customerId": "cust_1"},
	}})
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := capturedEventBody("pay_1", "order_1", 50000, `{}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, int64(500), te.repo.customers["cust_1"].WalletBalance)
}

func TestWebhookAuthorizedEventDoesNotCredit(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := []byte(`{
		"event": "payment.authorized",
		"payload": {
			"payment": {
				"entity": {"id": "pay_1", "amount": 50000, "status": "authorized", "notes": {"customerId": "cust_1"}}
			}
		}
	}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, int64(0), te.repo.customers["cust_1"].WalletBalance)
	assert.Empty(t, te.repo.txns)
	assert.Empty(t, te.forwardedBodies)
}

func TestWebhookUnknownEventIsAcknowledged(t *testing.T) {
	te := newTestEnv(t, nil)

	// Non-payment events carry no payment entity at all; an authentic delivery
	// must be acknowledged, not bounced back for retry.
	body := []byte(`{
		"entity": "event",
		"event": "refund.processed",
		"payload": {
			"refund": {
				"entity": {"id": "rfnd_1", "payment_id": "pay_1", "amount": 50000}
			}
		},
		"created_at": 1714560000
	}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Empty(t, te.repo.txns)
}

func TestWebhookRedeliveryAfterFailureSettles(t *testing.T) {
	te := newTestEnv(t, nil)

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_1"}`)
	sig := wallet.Sign(body, testWebhookSecret)

	// First delivery fails: the customer does not exist yet.
	resp, out := te.post(t, body, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.Success)
	assert.Empty(t, te.repo.txns)

	// Once the cause is fixed, a redelivery of the identical body must settle
	// rather than being mistaken for an already-processed duplicate.
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	resp, out = te.post(t, body, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, "Payment settled", out.Message)
	assert.Equal(t, int64(500), te.repo.customers["cust_1"].WalletBalance)
	require.NotNil(t, te.repo.txns["pay_1"])
}

func TestWebhookCustomerNotFoundIsAcknowledged(t *testing.T) {
	te := newTestEnv(t, nil)

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_ghost"}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.Success)
	assert.Empty(t, te.repo.txns)
}

func TestWebhookForwardFailureDoesNotAffectAck(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}
	te.forwardStatus = http.StatusInternalServerError

	body := capturedEventBody("pay_1", "order_1", 50000, `{"customerId": "cust_1"}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	// The credit is authoritative; the failed relay only shows up in logs.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, int64(500), te.repo.customers["cust_1"].WalletBalance)
	require.NotNil(t, te.repo.txns["pay_1"])
}

func TestWebhookFailedEventIsAcknowledged(t *testing.T) {
	te := newTestEnv(t, nil)
	te.repo.customers["cust_1"] = &models.Customer{ID: "cust_1"}

	body := []byte(`{
		"event": "payment.failed",
		"payload": {
			"payment": {
				"entity": {"id": "pay_1", "amount": 50000, "status": "failed", "notes": {"customerId": "cust_1"}}
			}
		}
	}`)
	resp, out := te.post(t, body, wallet.Sign(body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, int64(0), te.repo.customers["cust_1"].WalletBalance)
	assert.Empty(t, te.repo.txns)
}
