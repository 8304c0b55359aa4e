package leads

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
	"sentra-backend/internal/models"
	"sentra-backend/pkg/utils"
)

var cacheClient *cache.Client

// SetCache wires the optional Redis list cache.
func SetCache(c *cache.Client) {
	cacheClient = c
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
		return 0, false
	}
	return uint(id), true
}

// HandleCreateLead creates a lead
func HandleCreateLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := Create(database.DB, orgID, userID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	c.JSON(http.StatusCreated, gin.H{"lead": lead})
}

// HandleListLeads lists leads with filters and pagination
func HandleListLeads(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	filters := ListFilters{
		Status: c.Query("status"),
		Source: c.Query("source"),
		Search: c.Query("search"),
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filters.Limit = v
	}
	if v, err := strconv.ParseUint(c.Query("brand_id"), 10, 32); err == nil {
		filters.BrandID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("assigned_to"), 10, 32); err == nil {
		filters.AssignedToID = uint(v)
	}
	if v, err := time.Parse(time.RFC3339, c.Query("created_from")); err == nil {
		filters.CreatedFrom = v
	}
	if v, err := time.Parse(time.RFC3339, c.Query("created_to")); err == nil {
		filters.CreatedTo = v
	}

	type listResponse struct {
		Leads []models.Lead `json:"leads"`
		Total int64         `json:"total"`
		Page  int           `json:"page"`
		Limit int           `json:"limit"`
	}

	key := cache.Key("leads", orgID, c.Request.URL.RawQuery)
	var cached listResponse
	if cacheClient.Get(c.Request.Context(), key, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	leads, total, err := List(database.DB, orgID, filters)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	resp := listResponse{Leads: leads, Total: total, Page: filters.Page, Limit: filters.Limit}
	if resp.Page < 1 {
		resp.Page = 1
	}
	cacheClient.Set(c.Request.Context(), key, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleGetLead returns a single lead
func HandleGetLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := Get(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

// HandleUpdateLead edits lead details
func HandleUpdateLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := Update(database.DB, id, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

// HandleDeleteLead removes a lead and its activity trail
func HandleDeleteLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := Delete(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	c.JSON(http.StatusOK, gin.H{"message": "Lead deleted"})
}

// HandleChangeStatus moves a lead through the status graph
func HandleChangeStatus(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := ChangeStatus(database.DB, id, orgID, userID, req.Status)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

// HandleAssignLead sets or clears the lead assignee
func HandleAssignLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		AssignedToID *uint `json:"assigned_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := Assign(database.DB, id, orgID, userID, req.AssignedToID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

// HandleAddNote appends a note to the lead's activity trail
func HandleAddNote(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	activity, err := AddNote(database.DB, id, orgID, userID, req.Note)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"activity": activity})
}

// HandleListActivities returns a lead's audit trail
func HandleListActivities(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	activities, err := Activities(database.DB, id, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// HandleConvertLead converts a lead into a client
func HandleConvertLead(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input ConvertInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	client, err := Convert(database.DB, id, orgID, userID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	cacheClient.Invalidate(c.Request.Context(), "leads", orgID)
	cacheClient.Invalidate(c.Request.Context(), "clients", orgID)
	c.JSON(http.StatusCreated, gin.H{"client": client})
}
