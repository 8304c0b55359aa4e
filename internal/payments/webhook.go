package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/config"
	"sentra-backend/internal/database"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/metrics"
	"sentra-backend/internal/models"
	"sentra-backend/pkg/utils"
)

var cacheClient *cache.Client

// SetCache wires the shared cache client so reconciliation can drop
// stale invoice and sale listings.
func SetCache(c *cache.Client) {
	cacheClient = c
}

// Gateway webhook event types.
const (
	EventPaymentCaptured = "net.authorize.payment.authcapture.created"
	EventFraudDeclined   = "net.authorize.payment.fraud.declined"
	EventRefundCreated   = "net.authorize.payment.refund.created"
)

// SignatureHeader carries the HMAC-SHA512 digest of the raw body.
const SignatureHeader = "X-ANET-Signature"

// WebhookEvent is the notification envelope posted by the gateway.
type WebhookEvent struct {
	NotificationID string         `json:"notificationId"`
	EventType      string         `json:"eventType"`
	Payload        WebhookPayload `json:"payload"`
}

// WebhookPayload identifies the gateway transaction the event refers to.
type WebhookPayload struct {
	ID           string  `json:"id"`
	AuthAmount   float64 `json:"authAmount"`
	ResponseCode int     `json:"responseCode"`
}

// responseCode renders the gateway's numeric response code the way the
// ledger stores it. Zero means the event carried none.
func (p WebhookPayload) responseCode() string {
	if p.ResponseCode == 0 {
		return ""
	}
	return strconv.Itoa(p.ResponseCode)
}

// VerifySignature checks the X-ANET-Signature header against the raw
// body. The header value is "sha512=" followed by the hex digest; the
// comparison is constant time.
func VerifySignature(body []byte, header, key string) bool {
	if key == "" || header == "" {
		return false
	}

	digest := strings.TrimPrefix(header, "sha512=")
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// ProcessEvent reconciles a verified webhook event against the payment
// ledger. Events for unknown transactions are ignored; replayed refund
// events are no-ops.
func ProcessEvent(db *gorm.DB, event WebhookEvent) error {
	switch event.EventType {
	case EventPaymentCaptured:
		return settleCapture(db, event.Payload)
	case EventFraudDeclined:
		return declineFraud(db, event.Payload)
	case EventRefundCreated:
		return recordRefund(db, event.Payload)
	default:
		metrics.WebhookEvents.WithLabelValues(event.EventType, "ignored").Inc()
		return nil
	}
}

func findTransaction(db *gorm.DB, transactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func settleCapture(db *gorm.DB, payload WebhookPayload) error {
	txn, err := findTransaction(db, payload.ID)
	if err != nil {
		return err
	}
	if txn == nil {
		metrics.WebhookEvents.WithLabelValues(EventPaymentCaptured, "ignored").Inc()
		return nil
	}
	if txn.Status == models.TransactionStatusSuccess {
		metrics.WebhookEvents.WithLabelValues(EventPaymentCaptured, "replay").Inc()
		return nil
	}

	updates := map[string]interface{}{"status": models.TransactionStatusSuccess}
	if code := payload.responseCode(); code != "" {
		updates["response_code"] = code
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(txn).Updates(updates).Error; err != nil {
			return err
		}
		if txn.InvoiceID != nil {
			if err := tx.Model(&models.Invoice{}).
				Where("id = ?", *txn.InvoiceID).
				Update("status", models.InvoiceStatusPaid).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.WebhookEvents.WithLabelValues(EventPaymentCaptured, "processed").Inc()
	logrus.WithField("transaction_id", payload.ID).Info("payment capture settled")
	return nil
}

func declineFraud(db *gorm.DB, payload WebhookPayload) error {
	txn, err := findTransaction(db, payload.ID)
	if err != nil {
		return err
	}
	if txn == nil {
		metrics.WebhookEvents.WithLabelValues(EventFraudDeclined, "ignored").Inc()
		return nil
	}
	if txn.Status == models.TransactionStatusFailed {
		metrics.WebhookEvents.WithLabelValues(EventFraudDeclined, "replay").Inc()
		return nil
	}

	updates := map[string]interface{}{
		"status":           models.TransactionStatusFailed,
		"response_message": "Declined due to fraud detection",
	}
	if code := payload.responseCode(); code != "" {
		updates["response_code"] = code
	}

	if err := db.Model(txn).Updates(updates).Error; err != nil {
		return err
	}

	metrics.WebhookEvents.WithLabelValues(EventFraudDeclined, "processed").Inc()
	logrus.WithField("transaction_id", payload.ID).Warn("payment declined by fraud filter")
	return nil
}

// recordRefund marks the original transaction REFUNDED and writes a
// REFUND ledger row keyed "refund_<original id>". That key doubles as
// the replay guard: a duplicate delivery finds the row and does nothing.
func recordRefund(db *gorm.DB, payload WebhookPayload) error {
	txn, err := findTransaction(db, payload.ID)
	if err != nil {
		return err
	}
	if txn == nil {
		metrics.WebhookEvents.WithLabelValues(EventRefundCreated, "ignored").Inc()
		return nil
	}

	refundID := "refund_" + txn.TransactionID
	if existing, err := findTransaction(db, refundID); err != nil {
		return err
	} else if existing != nil || txn.Status == models.TransactionStatusRefunded {
		metrics.WebhookEvents.WithLabelValues(EventRefundCreated, "replay").Inc()
		return nil
	}

	amount := payload.AuthAmount
	if amount == 0 {
		amount = txn.Amount
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		refund := models.PaymentTransaction{
			TransactionID: refundID,
			Type:          models.TransactionRefund,
			Amount:        amount,
			Status:        models.TransactionStatusSuccess,
			ResponseCode:  payload.responseCode(),
			SaleID:        txn.SaleID,
			InvoiceID:     txn.InvoiceID,
		}
		if err := tx.Create(&refund).Error; err != nil {
			// Lost a race against a concurrent delivery of the same event.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}
		return tx.Model(txn).Update("status", models.TransactionStatusRefunded).Error
	})
	if err != nil {
		return err
	}

	metrics.WebhookEvents.WithLabelValues(EventRefundCreated, "processed").Inc()
	logrus.WithFields(logrus.Fields{
		"transaction_id": payload.ID,
		"amount":         amount,
	}).Info("refund recorded")
	return nil
}

// HandleWebhook receives gateway notifications. The body must carry a
// valid HMAC-SHA512 signature; anything else is rejected before parsing.
func HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	key := config.GetEnv("AUTHNET_SIGNATURE_KEY", "")
	if !VerifySignature(body, c.GetHeader(SignatureHeader), key) {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		utils.SendErrorResponse(c, http.StatusBadRequest, apperrors.BadRequest("Invalid webhook signature"))
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	if err := ProcessEvent(database.DB, event); err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.CodeInternal, "Failed to process webhook event"))
		return
	}

	// Reconciliation may have flipped ledger and invoice rows; stale
	// listings must not outlive the mutation.
	if orgID, ok := organizationForTransaction(database.DB, event.Payload.ID); ok {
		cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
		cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// organizationForTransaction resolves the tenant that owns a ledger row
// via its sale. Unknown transactions report false.
func organizationForTransaction(db *gorm.DB, transactionID string) (uint, bool) {
	var orgID uint
	err := db.Model(&models.PaymentTransaction{}).
		Joins("JOIN sales ON sales.id = payment_transactions.sale_id").
		Where("payment_transactions.transaction_id = ?", transactionID).
		Select("sales.organization_id").
		Take(&orgID).Error
	if err != nil {
		return 0, false
	}
	return orgID, true
}
