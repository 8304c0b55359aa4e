package brands

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
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
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid brand ID"})
		return 0, false
	}
	return uint(id), true
}

// HandleCreateBrand adds a brand to the organization.
func HandleCreateBrand(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	brand, err := Create(database.DB, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "brands", orgID)
	c.JSON(http.StatusCreated, brand)
}

// HandleListBrands lists all brands for the organization.
func HandleListBrands(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	brands, err := List(database.DB, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

// HandleGetBrand returns a single brand.
func HandleGetBrand(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	brand, err := Get(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, brand)
}

// HandleUpdateBrand mutates brand fields.
func HandleUpdateBrand(c *gin.Context) {
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

	brand, err := Update(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "brands", orgID)
	c.JSON(http.StatusOK, brand)
}

// HandleDeleteBrand removes an unused brand.
func HandleDeleteBrand(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := Delete(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "brands", orgID)
	c.JSON(http.StatusOK, gin.H{"message": "Brand deleted successfully"})
}
