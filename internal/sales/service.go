package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/metrics"
	"sentra-backend/internal/models"
	"sentra-backend/internal/payments"
)

// CreateInput holds the fields accepted when creating a sale.
type CreateInput struct {
	ClientID    uint    `json:"client_id" binding:"required"`
	TotalAmount float64 `json:"total_amount" binding:"required,gt=0"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

// UpdateInput holds the mutable sale fields.
type UpdateInput struct {
	TotalAmount *float64 `json:"total_amount"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
}

// ProfileInput stores gateway payment profile references on a sale.
type ProfileInput struct {
	CustomerProfileID string `json:"customer_profile_id" binding:"required"`
	PaymentProfileID  string `json:"payment_profile_id" binding:"required"`
}

// SetupProfilesInput creates gateway profiles from opaque card data
// captured client-side.
type SetupProfilesInput struct {
	Email          string `json:"email" binding:"required,email"`
	DataDescriptor string `json:"data_descriptor" binding:"required"`
	DataValue      string `json:"data_value" binding:"required"`
}

// ChargeInput describes a one-time charge against a sale.
type ChargeInput struct {
	Amount        float64 `json:"amount"`
	InvoiceNumber string  `json:"invoice_number"`
}

// SubscribeInput describes a recurring billing setup for a sale. Zero
// values fall back to a monthly schedule starting today with an
// open-ended occurrence count.
type SubscribeInput struct {
	Amount           float64    `json:"amount"`
	IntervalLength   int        `json:"interval_length"`
	IntervalUnit     string     `json:"interval_unit"`
	StartDate        *time.Time `json:"start_date"`
	TotalOccurrences int        `json:"total_occurrences"`
}

var validSaleStatuses = map[string]bool{
	models.SaleStatusPending:   true,
	models.SaleStatusActive:    true,
	models.SaleStatusCompleted: true,
	models.SaleStatusCancelled: true,
}

func getForOrg(db *gorm.DB, saleID, orgID uint) (*models.Sale, error) {
	var sale models.Sale
	if err := db.First(&sale, saleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Sale not found")
		}
		return nil, apperrors.Internal(err)
	}
	if sale.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Sale belongs to another organization")
	}
	return &sale, nil
}

// Create records a sale against a client in the organization.
func Create(db *gorm.DB, orgID uint, input CreateInput) (*models.Sale, error) {
	var client models.Client
	if err := db.First(&client, input.ClientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Client not found")
		}
		return nil, apperrors.Internal(err)
	}
	if client.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Client belongs to another organization")
	}

	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	sale := models.Sale{
		TotalAmount:    input.TotalAmount,
		Currency:       currency,
		Status:         models.SaleStatusPending,
		Description:    input.Description,
		ClientID:       client.ID,
		BrandID:        client.BrandID,
		OrganizationID: orgID,
	}
	if err := db.Create(&sale).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"sale_id":   sale.ID,
		"client_id": client.ID,
		"amount":    sale.TotalAmount,
	}).Info("sale created")
	return &sale, nil
}

// List returns sales for the organization with optional filters.
func List(db *gorm.DB, orgID uint, clientID uint, status string, page, limit int) ([]models.Sale, int64, error) {
	query := db.Model(&models.Sale{}).Where("organization_id = ?", orgID)
	if clientID != 0 {
		query = query.Where("client_id = ?", clientID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal(err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var sales []models.Sale
	err := query.Preload("Client").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return sales, total, nil
}

// Get returns a sale scoped to the organization.
func Get(db *gorm.DB, saleID, orgID uint) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}
	if err := db.Preload("Client").First(sale, sale.ID).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return sale, nil
}

// Update mutates amount, description or status on a sale.
func Update(db *gorm.DB, saleID, orgID uint, input UpdateInput) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.TotalAmount != nil {
		if *input.TotalAmount <= 0 {
			return nil, apperrors.BadRequest("Total amount must be positive")
		}
		updates["total_amount"] = *input.TotalAmount
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Status != nil {
		if !validSaleStatuses[*input.Status] {
			return nil, apperrors.BadRequest(fmt.Sprintf("Invalid sale status: %s", *input.Status))
		}
		updates["status"] = *input.Status
	}

	if len(updates) > 0 {
		if err := db.Model(sale).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	return sale, nil
}

// SetPaymentProfiles stores gateway profile references on a sale.
func SetPaymentProfiles(db *gorm.DB, saleID, orgID uint, input ProfileInput) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}

	err = db.Model(sale).Updates(map[string]interface{}{
		"customer_profile_id": input.CustomerProfileID,
		"payment_profile_id":  input.PaymentProfileID,
	}).Error
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return sale, nil
}

// SetupPaymentProfiles creates a customer profile and a payment profile
// on the gateway from opaque card data, then stores the references on
// the sale.
func SetupPaymentProfiles(ctx context.Context, db *gorm.DB, gw payments.Gateway, saleID, orgID uint, input SetupProfilesInput) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}

	customer := gw.CreateCustomerProfile(ctx, payments.CustomerProfileRequest{
		Email:       input.Email,
		Description: fmt.Sprintf("Sale #%d", sale.ID),
	})
	if !customer.Success {
		return nil, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", customer.Message))
	}

	payment := gw.CreatePaymentProfile(ctx, payments.PaymentProfileRequest{
		CustomerProfileID: customer.CustomerProfileID,
		DataDescriptor:    input.DataDescriptor,
		DataValue:         input.DataValue,
	})
	if !payment.Success {
		return nil, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", payment.Message))
	}

	err = db.Model(sale).Updates(map[string]interface{}{
		"customer_profile_id": customer.CustomerProfileID,
		"payment_profile_id":  payment.PaymentProfileID,
	}).Error
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"sale_id":             sale.ID,
		"customer_profile_id": customer.CustomerProfileID,
	}).Info("payment profiles configured")
	return sale, nil
}

// SubscriptionStatus looks up the gateway-side state of the sale's
// subscription.
func SubscriptionStatus(ctx context.Context, db *gorm.DB, gw payments.Gateway, saleID, orgID uint) (string, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return "", err
	}
	if sale.SubscriptionID == "" {
		return "", apperrors.BadRequest("Sale does not have an active subscription")
	}

	resp := gw.GetSubscriptionStatus(ctx, sale.SubscriptionID)
	if !resp.Success {
		return "", apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", resp.Message))
	}
	return resp.Message, nil
}

// Charge runs a one-time charge against the sale's stored payment
// profile and records the attempt in the payment ledger. The amount
// defaults to the sale's total when the input omits it.
func Charge(ctx context.Context, db *gorm.DB, gw payments.Gateway, saleID, orgID uint, input ChargeInput) (*models.PaymentTransaction, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}
	if sale.CustomerProfileID == "" || sale.PaymentProfileID == "" {
		return nil, apperrors.BadRequest("Sale does not have payment profiles configured")
	}

	amount := input.Amount
	if amount == 0 {
		amount = sale.TotalAmount
	}
	if amount <= 0 {
		return nil, apperrors.BadRequest("Charge amount must be positive")
	}

	resp := gw.ChargeProfile(ctx, payments.ChargeRequest{
		CustomerProfileID: sale.CustomerProfileID,
		PaymentProfileID:  sale.PaymentProfileID,
		Amount:            amount,
		InvoiceNumber:     input.InvoiceNumber,
	})

	transactionID := resp.TransactionID
	if transactionID == "" {
		transactionID = fmt.Sprintf("failed_%d_%d", sale.ID, time.Now().UnixNano())
	}

	txn := models.PaymentTransaction{
		TransactionID:   transactionID,
		Type:            models.TransactionOneTime,
		Amount:          amount,
		Status:          models.TransactionStatusFailed,
		ResponseCode:    resp.ResponseCode,
		ResponseMessage: resp.Message,
		SaleID:          sale.ID,
	}
	if resp.Success {
		txn.Status = models.TransactionStatusSuccess
	}
	if err := db.Create(&txn).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	if !resp.Success {
		metrics.PaymentAttempts.WithLabelValues("declined").Inc()
		return &txn, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", resp.Message))
	}

	metrics.PaymentAttempts.WithLabelValues("success").Inc()
	logrus.WithFields(logrus.Fields{
		"sale_id":        sale.ID,
		"transaction_id": txn.TransactionID,
		"amount":         amount,
	}).Info("sale charged")
	return &txn, nil
}

// Subscribe starts recurring billing for a sale. A sale carries at most
// one active subscription.
func Subscribe(ctx context.Context, db *gorm.DB, gw payments.Gateway, saleID, orgID uint, input SubscribeInput) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}
	if sale.CustomerProfileID == "" || sale.PaymentProfileID == "" {
		return nil, apperrors.BadRequest("Sale does not have payment profiles configured")
	}
	if sale.SubscriptionID != "" {
		return nil, apperrors.BadRequest("Sale already has an active subscription")
	}

	amount := input.Amount
	if amount == 0 {
		amount = sale.TotalAmount
	}
	if amount <= 0 {
		return nil, apperrors.BadRequest("Subscription amount must be positive")
	}
	if input.IntervalUnit != "" && input.IntervalUnit != "days" && input.IntervalUnit != "months" {
		return nil, apperrors.BadRequest(fmt.Sprintf("Invalid interval unit: %s", input.IntervalUnit))
	}

	var startDate time.Time
	if input.StartDate != nil {
		startDate = *input.StartDate
	}

	resp := gw.CreateSubscription(ctx, payments.SubscriptionRequest{
		Name:              fmt.Sprintf("Sale #%d", sale.ID),
		CustomerProfileID: sale.CustomerProfileID,
		PaymentProfileID:  sale.PaymentProfileID,
		Amount:            amount,
		IntervalLength:    input.IntervalLength,
		IntervalUnit:      input.IntervalUnit,
		StartDate:         startDate,
		TotalOccurrences:  input.TotalOccurrences,
	})
	if !resp.Success {
		metrics.PaymentAttempts.WithLabelValues("declined").Inc()
		return nil, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", resp.Message))
	}

	txn := models.PaymentTransaction{
		TransactionID: "sub_" + resp.SubscriptionID,
		Type:          models.TransactionRecurring,
		Amount:        amount,
		Status:        models.TransactionStatusPending,
		SaleID:        sale.ID,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		return tx.Model(sale).Updates(map[string]interface{}{
			"subscription_id": resp.SubscriptionID,
			"status":          models.SaleStatusActive,
		}).Error
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	metrics.PaymentAttempts.WithLabelValues("success").Inc()
	logrus.WithFields(logrus.Fields{
		"sale_id":         sale.ID,
		"subscription_id": resp.SubscriptionID,
	}).Info("subscription started")
	return sale, nil
}

// CancelSubscription stops recurring billing for a sale.
func CancelSubscription(ctx context.Context, db *gorm.DB, gw payments.Gateway, saleID, orgID uint) (*models.Sale, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}
	if sale.SubscriptionID == "" {
		return nil, apperrors.BadRequest("Sale does not have an active subscription")
	}

	resp := gw.CancelSubscription(ctx, sale.SubscriptionID)
	if !resp.Success {
		return nil, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", resp.Message))
	}

	err = db.Model(sale).Updates(map[string]interface{}{
		"subscription_id": "",
		"status":          models.SaleStatusCancelled,
	}).Error
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithField("sale_id", sale.ID).Info("subscription cancelled")
	return sale, nil
}

// Delete removes a sale along with its ledger rows. Sales with invoices
// or an active subscription must be cleaned up first.
func Delete(db *gorm.DB, saleID, orgID uint) error {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return err
	}
	if sale.SubscriptionID != "" {
		return apperrors.Conflict("Cancel the subscription before deleting the sale")
	}

	var invoiceCount int64
	if err := db.Model(&models.Invoice{}).Where("sale_id = ?", sale.ID).Count(&invoiceCount).Error; err != nil {
		return apperrors.Internal(err)
	}
	if invoiceCount > 0 {
		return apperrors.Conflict("Sale has invoices and cannot be deleted")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sale_id = ?", sale.ID).Delete(&models.PaymentTransaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(sale).Error
	})
	if err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Transactions returns the payment ledger rows for a sale.
func Transactions(db *gorm.DB, saleID, orgID uint) ([]models.PaymentTransaction, error) {
	sale, err := getForOrg(db, saleID, orgID)
	if err != nil {
		return nil, err
	}

	var txns []models.PaymentTransaction
	if err := db.Where("sale_id = ?", sale.ID).Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return txns, nil
}
