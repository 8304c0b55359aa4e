package invoices

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
	"sentra-backend/internal/email"
	"sentra-backend/internal/models"
	"sentra-backend/internal/payments"
	"sentra-backend/pkg/utils"
)

var (
	cacheClient *cache.Client
	gateway     payments.Gateway
	mailer      *email.Mailer
)

// SetCache wires the shared cache client.
func SetCache(c *cache.Client) {
	cacheClient = c
}

// SetGateway wires the payment gateway used by HandlePayInvoice.
func SetGateway(gw payments.Gateway) {
	gateway = gw
}

// SetMailer wires the mailer used for payment receipts.
func SetMailer(m *email.Mailer) {
	mailer = m
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return 0, false
	}
	return uint(id), true
}

type listResponse struct {
	Invoices []models.Invoice `json:"invoices"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// HandleCreateInvoice creates an invoice for a sale.
func HandleCreateInvoice(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	invoice, err := Create(database.DB, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	c.JSON(http.StatusCreated, invoice)
}

// HandleListInvoices lists invoices for the organization.
func HandleListInvoices(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	saleID, _ := strconv.ParseUint(c.Query("sale_id"), 10, 32)
	status := c.Query("status")

	cacheKey := cache.Key("invoices", orgID, c.Request.URL.RawQuery)
	var cached listResponse
	if cacheClient.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	items, total, err := List(database.DB, orgID, uint(saleID), status, page, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	resp := listResponse{Invoices: items, Total: total, Page: page, Limit: limit}
	cacheClient.Set(c.Request.Context(), cacheKey, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleGetInvoice returns a single invoice.
func HandleGetInvoice(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	invoice, err := Get(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// HandleUpdateInvoice mutates amount, due date or notes.
func HandleUpdateInvoice(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	invoice, err := Update(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	c.JSON(http.StatusOK, invoice)
}

// HandleDeleteInvoice removes an unpaid invoice.
func HandleDeleteInvoice(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := Delete(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	c.JSON(http.StatusOK, gin.H{"message": "Invoice deleted successfully"})
}

// HandlePayInvoice charges the invoice against the sale's payment profile.
func HandlePayInvoice(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	txn, err := Pay(c.Request.Context(), database.DB, gateway, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	sendReceipt(id, orgID)
	c.JSON(http.StatusOK, gin.H{
		"transaction": txn,
		"status":      models.InvoiceStatusPaid,
	})
}

// sendReceipt emails the client a payment receipt. Failures are logged,
// never surfaced; the charge has already settled.
func sendReceipt(invoiceID, orgID uint) {
	if mailer == nil {
		return
	}

	invoice, err := Get(database.DB, invoiceID, orgID)
	if err != nil {
		return
	}
	var client models.Client
	if err := database.DB.First(&client, invoice.Sale.ClientID).Error; err != nil {
		return
	}

	go func() {
		name := client.ContactName
		if name == "" {
			name = client.CompanyName
		}
		err := mailer.SendInvoiceReceipt(client.Email, name, invoice.InvoiceNumber, invoice.Amount, invoice.Sale.Currency)
		if err != nil {
			logrus.WithError(err).WithField("invoice", invoice.InvoiceNumber).Warn("receipt email failed")
		}
	}()
}

// HandleListInvoiceTransactions returns the ledger rows for an invoice.
func HandleListInvoiceTransactions(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	txns, err := Transactions(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// HandleMarkOverdue flips past-due unpaid invoices to OVERDUE.
func HandleMarkOverdue(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	updated, err := MarkOverdue(database.DB, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if updated > 0 {
		cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
