package invoices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/metrics"
	"sentra-backend/internal/models"
	"sentra-backend/internal/payments"
)

// numberRetries bounds how many times invoice creation retries after a
// unique-constraint collision on the invoice number.
const numberRetries = 3

// CreateInput holds the fields accepted when creating an invoice.
type CreateInput struct {
	SaleID  uint      `json:"sale_id" binding:"required"`
	Amount  float64   `json:"amount" binding:"required,gt=0"`
	DueDate time.Time `json:"due_date" binding:"required"`
	Notes   string    `json:"notes"`
}

// UpdateInput holds the mutable invoice fields.
type UpdateInput struct {
	Amount  *float64   `json:"amount"`
	DueDate *time.Time `json:"due_date"`
	Notes   *string    `json:"notes"`
}

// GenerateInvoiceNumber issues the next sequential number for the
// current year, formatted "INV-<year>-NNNN". It must run inside a
// transaction; the row lock serializes concurrent issuers.
func GenerateInvoiceNumber(tx *gorm.DB) (string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("INV-%d-", year)

	var last models.Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("invoice_number DESC").
		First(&last).Error

	seq := 1
	switch {
	case err == nil:
		raw := strings.TrimPrefix(last.InvoiceNumber, prefix)
		if n, parseErr := strconv.Atoi(raw); parseErr == nil {
			seq = n + 1
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First invoice of the year.
	default:
		return "", err
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func saleForOrg(db *gorm.DB, saleID, orgID uint) (*models.Sale, error) {
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

// Create issues an invoice against a sale. The unique constraint on the
// invoice number backs up the row lock: a collision under concurrency
// retries with a fresh number.
func Create(db *gorm.DB, orgID uint, input CreateInput) (*models.Invoice, error) {
	if _, err := saleForOrg(db, input.SaleID, orgID); err != nil {
		return nil, err
	}

	var invoice models.Invoice
	for attempt := 0; attempt < numberRetries; attempt++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			number, err := GenerateInvoiceNumber(tx)
			if err != nil {
				return err
			}

			invoice = models.Invoice{
				InvoiceNumber: number,
				Amount:        input.Amount,
				DueDate:       input.DueDate,
				Status:        models.InvoiceStatusUnpaid,
				Notes:         input.Notes,
				SaleID:        input.SaleID,
			}
			return tx.Create(&invoice).Error
		})
		if err == nil {
			return &invoice, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, apperrors.Internal(err)
	}
	return nil, apperrors.Internal(fmt.Errorf("invoice number allocation kept colliding"))
}

// List returns invoices for the organization, optionally filtered by
// sale and status.
func List(db *gorm.DB, orgID uint, saleID uint, status string, page, limit int) ([]models.Invoice, int64, error) {
	query := db.Model(&models.Invoice{}).
		Joins("JOIN sales ON sales.id = invoices.sale_id").
		Where("sales.organization_id = ?", orgID)

	if saleID != 0 {
		query = query.Where("invoices.sale_id = ?", saleID)
	}
	if status != "" {
		query = query.Where("invoices.status = ?", status)
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

	var invoices []models.Invoice
	err := query.Preload("Sale").
		Order("invoices.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return invoices, total, nil
}

// Get returns an invoice scoped to the organization.
func Get(db *gorm.DB, invoiceID, orgID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := db.Preload("Sale").First(&invoice, invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Invoice not found")
		}
		return nil, apperrors.Internal(err)
	}
	if invoice.Sale == nil || invoice.Sale.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Invoice belongs to another organization")
	}
	return &invoice, nil
}

// Update mutates amount, due date or notes on an unpaid invoice.
func Update(db *gorm.DB, invoiceID, orgID uint, input UpdateInput) (*models.Invoice, error) {
	invoice, err := Get(db, invoiceID, orgID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, apperrors.BadRequest("Invoice is already paid")
	}

	updates := map[string]interface{}{}
	if input.Amount != nil {
		if *input.Amount <= 0 {
			return nil, apperrors.BadRequest("Amount must be positive")
		}
		updates["amount"] = *input.Amount
	}
	if input.DueDate != nil {
		updates["due_date"] = *input.DueDate
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	if len(updates) > 0 {
		if err := db.Model(invoice).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	return invoice, nil
}

// Delete removes an unpaid invoice and its ledger rows. Paid invoices
// stay on record.
func Delete(db *gorm.DB, invoiceID, orgID uint) error {
	invoice, err := Get(db, invoiceID, orgID)
	if err != nil {
		return err
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return apperrors.BadRequest("Invoice is already paid")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.PaymentTransaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Invoice{}, invoice.ID).Error
	})
	if err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Pay charges the invoice's full amount against the sale's stored
// payment profile. Every attempt, approved or declined, lands in the
// payment ledger before the outcome is reported.
func Pay(ctx context.Context, db *gorm.DB, gw payments.Gateway, invoiceID, orgID uint) (*models.PaymentTransaction, error) {
	invoice, err := Get(db, invoiceID, orgID)
	if err != nil {
		return nil, err
	}
	sale := invoice.Sale

	if invoice.Status == models.InvoiceStatusPaid {
		return nil, apperrors.BadRequest("Invoice is already paid")
	}
	if sale.CustomerProfileID == "" || sale.PaymentProfileID == "" {
		return nil, apperrors.BadRequest("Sale does not have payment profiles configured")
	}

	resp := gw.ChargeProfile(ctx, payments.ChargeRequest{
		CustomerProfileID: sale.CustomerProfileID,
		PaymentProfileID:  sale.PaymentProfileID,
		Amount:            invoice.Amount,
		InvoiceNumber:     invoice.InvoiceNumber,
	})

	transactionID := resp.TransactionID
	if transactionID == "" {
		// Declines without a gateway id still need a unique ledger key.
		transactionID = fmt.Sprintf("failed_%d_%d", invoice.ID, time.Now().UnixNano())
	}

	txn := models.PaymentTransaction{
		TransactionID:   transactionID,
		Type:            models.TransactionOneTime,
		Amount:          invoice.Amount,
		Status:          models.TransactionStatusFailed,
		ResponseCode:    resp.ResponseCode,
		ResponseMessage: resp.Message,
		SaleID:          sale.ID,
		InvoiceID:       &invoice.ID,
	}
	if resp.Success {
		txn.Status = models.TransactionStatusSuccess
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		if resp.Success {
			return tx.Model(&models.Invoice{}).
				Where("id = ?", invoice.ID).
				Update("status", models.InvoiceStatusPaid).Error
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if !resp.Success {
		metrics.PaymentAttempts.WithLabelValues("declined").Inc()
		return &txn, apperrors.BadRequest(fmt.Sprintf("Payment failed: %s", resp.Message))
	}

	metrics.PaymentAttempts.WithLabelValues("success").Inc()
	logrus.WithFields(logrus.Fields{
		"invoice":        invoice.InvoiceNumber,
		"transaction_id": txn.TransactionID,
		"amount":         invoice.Amount,
	}).Info("invoice paid")
	return &txn, nil
}

// MarkOverdue flips UNPAID invoices past their due date to OVERDUE.
// Returns the number of invoices updated.
func MarkOverdue(db *gorm.DB, orgID uint) (int64, error) {
	result := db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoiceStatusUnpaid, time.Now()).
		Where("sale_id IN (?)", db.Model(&models.Sale{}).Select("id").Where("organization_id = ?", orgID)).
		Update("status", models.InvoiceStatusOverdue)
	if result.Error != nil {
		return 0, apperrors.Internal(result.Error)
	}
	return result.RowsAffected, nil
}

// Transactions returns the payment ledger rows for an invoice.
func Transactions(db *gorm.DB, invoiceID, orgID uint) ([]models.PaymentTransaction, error) {
	invoice, err := Get(db, invoiceID, orgID)
	if err != nil {
		return nil, err
	}

	var txns []models.PaymentTransaction
	if err := db.Where("invoice_id = ?", invoice.ID).Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return txns, nil
}
