package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sentra-backend/internal/database"
	"sentra-backend/internal/models"
)

func sign(body []byte, key string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return "sha512=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"eventType":"net.authorize.payment.authcapture.created"}`)
	key := "topsecret"

	assert.True(t, VerifySignature(body, sign(body, key), key))
	assert.False(t, VerifySignature(body, sign(body, "wrongkey"), key))
	assert.False(t, VerifySignature([]byte("tampered"), sign(body, key), key))
	assert.False(t, VerifySignature(body, "sha512=nothex", key))
	assert.False(t, VerifySignature(body, "", key))
	assert.False(t, VerifySignature(body, sign(body, key), ""))
}

func webhookFixture(t *testing.T) (*gorm.DB, *models.Sale, *models.Invoice) {
	t.Helper()

	db, err := database.OpenTest()
	require.NoError(t, err)

	org := models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	client := models.Client{Email: "buyer@example.com", OrganizationID: org.ID}
	require.NoError(t, db.Create(&client).Error)
	sale := models.Sale{
		TotalAmount:    500,
		Currency:       "USD",
		Status:         models.SaleStatusPending,
		ClientID:       client.ID,
		OrganizationID: org.ID,
	}
	require.NoError(t, db.Create(&sale).Error)
	invoice := models.Invoice{
		InvoiceNumber: "INV-2026-0001",
		Amount:        500,
		Status:        models.InvoiceStatusUnpaid,
		SaleID:        sale.ID,
	}
	require.NoError(t, db.Create(&invoice).Error)

	return db, &sale, &invoice
}

func TestSettleCaptureMarksInvoicePaid(t *testing.T) {
	db, sale, invoice := webhookFixture(t)

	txn := models.PaymentTransaction{
		TransactionID: "1234567890",
		Type:          models.TransactionOneTime,
		Amount:        500,
		Status:        models.TransactionStatusPending,
		SaleID:        sale.ID,
		InvoiceID:     &invoice.ID,
	}
	require.NoError(t, db.Create(&txn).Error)

	event := WebhookEvent{
		EventType: EventPaymentCaptured,
		Payload:   WebhookPayload{ID: "1234567890", AuthAmount: 500, ResponseCode: 1},
	}
	require.NoError(t, ProcessEvent(db, event))

	var settled models.PaymentTransaction
	require.NoError(t, db.First(&settled, txn.ID).Error)
	assert.Equal(t, models.TransactionStatusSuccess, settled.Status)
	assert.Equal(t, "1", settled.ResponseCode)

	var paid models.Invoice
	require.NoError(t, db.First(&paid, invoice.ID).Error)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)

	// Replays are no-ops.
	require.NoError(t, ProcessEvent(db, event))
}

func TestSettleCaptureIgnoresUnknownTransaction(t *testing.T) {
	db, _, _ := webhookFixture(t)

	event := WebhookEvent{
		EventType: EventPaymentCaptured,
		Payload:   WebhookPayload{ID: "does-not-exist"},
	}
	require.NoError(t, ProcessEvent(db, event))

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestFraudDeclineMarksTransactionFailed(t *testing.T) {
	db, sale, _ := webhookFixture(t)

	txn := models.PaymentTransaction{
		TransactionID: "fraud-1",
		Type:          models.TransactionOneTime,
		Amount:        500,
		Status:        models.TransactionStatusPending,
		SaleID:        sale.ID,
	}
	require.NoError(t, db.Create(&txn).Error)

	event := WebhookEvent{
		EventType: EventFraudDeclined,
		Payload:   WebhookPayload{ID: "fraud-1", ResponseCode: 2},
	}
	require.NoError(t, ProcessEvent(db, event))

	var declined models.PaymentTransaction
	require.NoError(t, db.First(&declined, txn.ID).Error)
	assert.Equal(t, models.TransactionStatusFailed, declined.Status)
	assert.Equal(t, "Declined due to fraud detection", declined.ResponseMessage)
	assert.Equal(t, "2", declined.ResponseCode)

	// Replay leaves the row unchanged.
	require.NoError(t, ProcessEvent(db, event))
}

func TestRefundCreatesLedgerRowAndMarksOriginal(t *testing.T) {
	db, sale, invoice := webhookFixture(t)

	txn := models.PaymentTransaction{
		TransactionID: "charge-9",
		Type:          models.TransactionOneTime,
		Amount:        500,
		Status:        models.TransactionStatusSuccess,
		SaleID:        sale.ID,
		InvoiceID:     &invoice.ID,
	}
	require.NoError(t, db.Create(&txn).Error)

	event := WebhookEvent{
		EventType: EventRefundCreated,
		Payload:   WebhookPayload{ID: "charge-9", AuthAmount: 250, ResponseCode: 1},
	}
	require.NoError(t, ProcessEvent(db, event))

	var original models.PaymentTransaction
	require.NoError(t, db.First(&original, txn.ID).Error)
	assert.Equal(t, models.TransactionStatusRefunded, original.Status)

	var refund models.PaymentTransaction
	require.NoError(t, db.Where("transaction_id = ?", "refund_charge-9").First(&refund).Error)
	assert.Equal(t, models.TransactionRefund, refund.Type)
	assert.Equal(t, models.TransactionStatusSuccess, refund.Status)
	assert.Equal(t, 250.0, refund.Amount)
	assert.Equal(t, sale.ID, refund.SaleID)
	assert.Equal(t, "1", refund.ResponseCode)
}

func TestOrganizationForTransaction(t *testing.T) {
	db, sale, _ := webhookFixture(t)

	txn := models.PaymentTransaction{
		TransactionID: "org-lookup-1",
		Type:          models.TransactionOneTime,
		Amount:        500,
		Status:        models.TransactionStatusSuccess,
		SaleID:        sale.ID,
	}
	require.NoError(t, db.Create(&txn).Error)

	orgID, ok := organizationForTransaction(db, "org-lookup-1")
	require.True(t, ok)
	assert.Equal(t, sale.OrganizationID, orgID)

	_, ok = organizationForTransaction(db, "no-such-txn")
	assert.False(t, ok)
}

func TestRefundReplayIsIdempotent(t *testing.T) {
	db, sale, _ := webhookFixture(t)

	txn := models.PaymentTransaction{
		TransactionID: "charge-7",
		Type:          models.TransactionOneTime,
		Amount:        300,
		Status:        models.TransactionStatusSuccess,
		SaleID:        sale.ID,
	}
	require.NoError(t, db.Create(&txn).Error)

	event := WebhookEvent{
		EventType: EventRefundCreated,
		Payload:   WebhookPayload{ID: "charge-7"},
	}
	require.NoError(t, ProcessEvent(db, event))
	require.NoError(t, ProcessEvent(db, event))
	require.NoError(t, ProcessEvent(db, event))

	var refunds int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).
		Where("transaction_id = ?", "refund_charge-7").Count(&refunds).Error)
	assert.EqualValues(t, 1, refunds)

	// Amount falls back to the original charge when the payload omits it.
	var refund models.PaymentTransaction
	require.NoError(t, db.Where("transaction_id = ?", "refund_charge-7").First(&refund).Error)
	assert.Equal(t, 300.0, refund.Amount)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	db, _, _ := webhookFixture(t)

	event := WebhookEvent{
		EventType: "net.authorize.customer.created",
		Payload:   WebhookPayload{ID: "whatever"},
	}
	require.NoError(t, ProcessEvent(db, event))
}
