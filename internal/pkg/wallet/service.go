package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/iamhvsharma/razorpay-webhook/app/models"
	"gorm.io/gorm"
)

// Outcome classifies the result of a settlement attempt.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeApplied
	OutcomeAlreadyApplied
	OutcomeCustomerNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeCustomerNotFound:
		return "customer_not_found"
	default:
		return "failed"
	}
}

var (
	// ErrCustomerNotFound means the referenced customer does not exist. This is
	// fatal for the event; retrying the webhook cannot fix it.
	ErrCustomerNotFound = errors.New("customer not found")

	// errAlreadyApplied aborts the settlement transaction when the ledger
	// already holds a row for the payment. Rolling back is safe because no
	// balance mutation survives.
	errAlreadyApplied = errors.New("payment already applied")
)

// creditableStatuses is the set of payment statuses that may move money.
// Authorized payments wait for the capture event; crediting on authorization
// would risk crediting funds that are never captured.
var creditableStatuses = map[string]bool{
	StatusCaptured: true,
}

// ApplyPaymentInput carries one settlement request. Amount is in whole rupees;
// the paise conversion happens once at ingestion and is never re-derived.
type ApplyPaymentInput struct {
	PaymentID  string
	OrderID    string
	CustomerID string
	Amount     int64
	Status     string
}

// Service applies payment events to customer wallets exactly once.
type Service struct {
	repo Repository
}

// NewService creates a settlement service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a settlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ApplyPayment credits the customer's wallet inside a single transaction:
//
//  1. Fast-path existence check on the ledger (courtesy only, not a lock).
//  2. Verify the customer exists.
//  3. Increment Customer.WalletBalance.
//  4. Increment Wallet.Balance, creating the wallet on first credit.
//  5. Insert the PaymentTransaction ledger row.
//
// Two concurrent calls for the same payment can both pass step 1; the unique
// index on payment_id rejects the second insert at commit, the transaction
// rolls back in full, and the outcome is AlreadyApplied. Any other failure
// rolls back and leaves both balances untouched.
func (s *Service) ApplyPayment(ctx context.Context, in ApplyPaymentInput) (Outcome, error) {
	if !creditableStatuses[in.Status] {
		return OutcomeFailed, fmt.Errorf("status %q is not creditable", in.Status)
	}
	if in.Amount < 0 {
		return OutcomeFailed, fmt.Errorf("amount must be non-negative, got %d", in.Amount)
	}
	if strings.TrimSpace(in.PaymentID) == "" {
		return OutcomeFailed, errors.New("payment id is required")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return OutcomeFailed, errors.New("customer id is required")
	}

	err := s.repo.Transact(ctx, func(r Repository) error {
		if _, err := r.FindPaymentTransactionByPaymentID(in.PaymentID); err == nil {
			return errAlreadyApplied
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if _, err := r.FindCustomerByID(in.CustomerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}

		if err := r.AddCustomerWalletBalance(in.CustomerID, in.Amount); err != nil {
			return err
		}

		updated, err := r.AddWalletBalance(in.CustomerID, in.Amount)
		if err != nil {
			return err
		}
		if !updated {
			if err := r.CreateWallet(&models.Wallet{
				CustomerID: in.CustomerID,
				Balance:    in.Amount,
			}); err != nil {
				return err
			}
		}

		if err := r.CreatePaymentTransaction(&models.PaymentTransaction{
			PaymentID:  in.PaymentID,
			OrderID:    in.OrderID,
			CustomerID: in.CustomerID,
			Amount:     in.Amount,
			Status:     in.Status,
		}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the race against a concurrent delivery of the same
				// payment. Roll back our increments; the winner's commit stands.
				return errAlreadyApplied
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		return OutcomeApplied, nil
	case errors.Is(err, errAlreadyApplied):
		return OutcomeAlreadyApplied, nil
	case errors.Is(err, ErrCustomerNotFound):
		return OutcomeCustomerNotFound, ErrCustomerNotFound
	default:
		return OutcomeFailed, err
	}
}

// RecordWebhookEvent persists a verified webhook payload idempotently, keyed
// by the provider event id or, when absent, a content hash of the payload.
// It returns whether this is the first time the event was seen.
func (s *Service) RecordWebhookEvent(ctx context.Context, eventID, eventType, paymentID string, rawPayload []byte) (bool, *models.WebhookEvent, error) {
	_ = ctx
	id := strings.TrimSpace(eventID)
	if id == "" {
		sum := sha256.Sum256(rawPayload)
		id = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		EventID:        id,
		EventType:      eventType,
		PaymentID:      paymentID,
		PayloadJSON:    string(rawPayload),
		SignatureValid: true,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an audit row as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
