package clients

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
	"sentra-backend/internal/models"
	"sentra-backend/pkg/utils"
)

var cacheClient *cache.Client

// SetCache wires the shared cache client.
func SetCache(c *cache.Client) {
	cacheClient = c
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return 0, false
	}
	return uint(id), true
}

type listResponse struct {
	Clients []models.Client `json:"clients"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// HandleCreateClient adds a client to the organization.
func HandleCreateClient(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	client, err := Create(database.DB, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "clients", orgID)
	c.JSON(http.StatusCreated, client)
}

// HandleListClients lists clients for the organization.
func HandleListClients(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	brandID, _ := strconv.ParseUint(c.Query("brand_id"), 10, 32)
	search := c.Query("search")

	cacheKey := cache.Key("clients", orgID, c.Request.URL.RawQuery)
	var cached listResponse
	if cacheClient.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	items, total, err := List(database.DB, orgID, uint(brandID), search, page, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	resp := listResponse{Clients: items, Total: total, Page: page, Limit: limit}
	cacheClient.Set(c.Request.Context(), cacheKey, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleGetClient returns a single client.
func HandleGetClient(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	client, err := Get(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// HandleUpdateClient mutates client fields.
func HandleUpdateClient(c *gin.Context) {
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

	client, err := Update(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "clients", orgID)
	c.JSON(http.StatusOK, client)
}

// HandleDeleteClient removes a client without sales.
func HandleDeleteClient(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := Delete(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "clients", orgID)
	c.JSON(http.StatusOK, gin.H{"message": "Client deleted successfully"})
}
