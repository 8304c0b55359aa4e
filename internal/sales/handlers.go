package sales

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
	"sentra-backend/internal/models"
	"sentra-backend/internal/payments"
	"sentra-backend/pkg/utils"
)

var (
	cacheClient *cache.Client
	gateway     payments.Gateway
)

// SetCache wires the shared cache client.
func SetCache(c *cache.Client) {
	cacheClient = c
}

// SetGateway wires the payment gateway used by charge and subscription
// handlers.
func SetGateway(gw payments.Gateway) {
	gateway = gw
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sale ID"})
		return 0, false
	}
	return uint(id), true
}

type listResponse struct {
	Sales []models.Sale `json:"sales"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// HandleCreateSale creates a sale for a client.
func HandleCreateSale(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	sale, err := Create(database.DB, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusCreated, sale)
}

// HandleListSales lists sales for the organization.
func HandleListSales(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	clientID, _ := strconv.ParseUint(c.Query("client_id"), 10, 32)
	status := c.Query("status")

	cacheKey := cache.Key("sales", orgID, c.Request.URL.RawQuery)
	var cached listResponse
	if cacheClient.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	items, total, err := List(database.DB, orgID, uint(clientID), status, page, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	resp := listResponse{Sales: items, Total: total, Page: page, Limit: limit}
	cacheClient.Set(c.Request.Context(), cacheKey, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleGetSale returns a single sale.
func HandleGetSale(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	sale, err := Get(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// HandleUpdateSale mutates amount, description or status.
func HandleUpdateSale(c *gin.Context) {
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

	sale, err := Update(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, sale)
}

// HandleDeleteSale removes a sale and its invoices.
func HandleDeleteSale(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := Delete(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	cacheClient.Invalidate(c.Request.Context(), "invoices", orgID)
	c.JSON(http.StatusOK, gin.H{"message": "Sale deleted successfully"})
}

// HandleSetPaymentProfiles stores gateway profile references on a sale.
func HandleSetPaymentProfiles(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	sale, err := SetPaymentProfiles(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, sale)
}

// HandleSetupPaymentProfiles creates gateway profiles from opaque card
// data and stores the references on the sale.
func HandleSetupPaymentProfiles(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input SetupProfilesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	sale, err := SetupPaymentProfiles(c.Request.Context(), database.DB, gateway, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, sale)
}

// HandleGetSubscriptionStatus reports the gateway-side subscription
// state for the sale.
func HandleGetSubscriptionStatus(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	status, err := SubscriptionStatus(c.Request.Context(), database.DB, gateway, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// HandleChargeSale runs a one-time charge against the sale.
func HandleChargeSale(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input ChargeInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
			return
		}
	}

	txn, err := Charge(c.Request.Context(), database.DB, gateway, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// HandleSubscribeSale starts recurring billing for the sale.
func HandleSubscribeSale(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input SubscribeInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
			return
		}
	}

	sale, err := Subscribe(c.Request.Context(), database.DB, gateway, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, sale)
}

// HandleCancelSubscription stops recurring billing for the sale.
func HandleCancelSubscription(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	sale, err := CancelSubscription(c.Request.Context(), database.DB, gateway, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "sales", orgID)
	c.JSON(http.StatusOK, sale)
}

// HandleListSaleTransactions returns the ledger rows for a sale.
func HandleListSaleTransactions(c *gin.Context) {
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
