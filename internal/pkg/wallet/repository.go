package wallet

import (
	"context"
	"time"

	"github.com/iamhvsharma/razorpay-webhook/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the settlement service.
// Transact runs fn inside a database transaction; the Repository handed to fn
// is scoped to that transaction, and any error returned rolls everything back.
type Repository interface {
	Transact(ctx context.Context, fn func(Repository) error) error
	FindPaymentTransactionByPaymentID(paymentID string) (*models.PaymentTransaction, error)
	FindCustomerByID(id string) (*models.Customer, error)
	AddCustomerWalletBalance(customerID string, amount int64) error
	AddWalletBalance(customerID string, amount int64) (bool, error)
	CreateWallet(w *models.Wallet) error
	CreatePaymentTransaction(txn *models.PaymentTransaction) error
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transact(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) FindPaymentTransactionByPaymentID(paymentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.Where("payment_id = ?", paymentID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) FindCustomerByID(id string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// AddCustomerWalletBalance increments the denormalized balance on the
// customer row. The increment is an SQL expression so concurrent settlements
// for the same customer serialize in the storage engine, not in Go.
func (r *gormRepository) AddCustomerWalletBalance(customerID string, amount int64) error {
	return r.db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount)).Error
}

// AddWalletBalance increments the wallet row for the customer and reports
// whether such a row existed.
func (r *gormRepository) AddWalletBalance(customerID string, amount int64) (bool, error) {
	tx := r.db.Model(&models.Wallet{}).
		Where("customer_id = ?", customerID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWallet(w *models.Wallet) error {
	return r.db.Create(w).Error
}

func (r *gormRepository) CreatePaymentTransaction(txn *models.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
