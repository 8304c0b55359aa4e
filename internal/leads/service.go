package leads

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentra-backend/internal/auth"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/metrics"
	"sentra-backend/internal/models"
)

// CreateInput holds the fields accepted when creating a lead.
type CreateInput struct {
	Title        string      `json:"title" binding:"required"`
	Source       string      `json:"source"`
	Data         models.JSON `json:"data"`
	BrandID      uint        `json:"brand_id" binding:"required"`
	AssignedToID *uint       `json:"assigned_to_id"`
}

// UpdateInput holds the mutable lead fields. Status and assignment have
// their own operations and are deliberately absent.
type UpdateInput struct {
	Title  *string     `json:"title"`
	Source *string     `json:"source"`
	Data   models.JSON `json:"data"`
}

// ListFilters narrows a lead listing.
type ListFilters struct {
	Status       string
	Source       string
	BrandID      uint
	AssignedToID uint
	Search       string
	CreatedFrom  time.Time
	CreatedTo    time.Time
	Page         int
	Limit        int
}

// ConvertInput carries the client fields for a lead conversion. Empty
// fields fall back to the lead's captured data payload.
type ConvertInput struct {
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Password    string `json:"password"`
}

// getForOrg loads a lead and enforces tenant ownership.
func getForOrg(db *gorm.DB, leadID, orgID uint) (*models.Lead, error) {
	var lead models.Lead
	if err := db.First(&lead, leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Lead not found")
		}
		return nil, apperrors.Internal(err)
	}
	if lead.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Lead belongs to another organization")
	}
	return &lead, nil
}

func recordActivity(tx *gorm.DB, leadID, userID uint, activityType string, data models.JSON) error {
	activity := models.LeadActivity{
		Type:   activityType,
		Data:   data,
		LeadID: leadID,
		UserID: userID,
	}
	return tx.Create(&activity).Error
}

// Create inserts a lead in NEW status and records the CREATED activity.
func Create(db *gorm.DB, orgID, actorID uint, input CreateInput) (*models.Lead, error) {
	if input.AssignedToID != nil {
		if err := validateAssignee(db, *input.AssignedToID, orgID); err != nil {
			return nil, err
		}
	}

	var brand models.Brand
	if err := db.Where("id = ? AND organization_id = ?", input.BrandID, orgID).First(&brand).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Brand not found")
		}
		return nil, apperrors.Internal(err)
	}

	lead := models.Lead{
		Title:          strings.TrimSpace(input.Title),
		Status:         models.LeadStatusNew,
		Source:         input.Source,
		Data:           input.Data,
		BrandID:        input.BrandID,
		OrganizationID: orgID,
		AssignedToID:   input.AssignedToID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lead).Error; err != nil {
			return err
		}
		return recordActivity(tx, lead.ID, actorID, models.ActivityCreated, models.JSON{
			"title":  lead.Title,
			"source": lead.Source,
		})
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"lead_id":         lead.ID,
		"organization_id": orgID,
		"source":          lead.Source,
	}).Info("lead created")

	return &lead, nil
}

// List returns a page of leads with the total count for the filters.
func List(db *gorm.DB, orgID uint, filters ListFilters) ([]models.Lead, int64, error) {
	query := db.Model(&models.Lead{}).Where("organization_id = ?", orgID)

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.BrandID != 0 {
		query = query.Where("brand_id = ?", filters.BrandID)
	}
	if filters.AssignedToID != 0 {
		query = query.Where("assigned_to_id = ?", filters.AssignedToID)
	}
	if filters.Search != "" {
		query = query.Where("title LIKE ?", "%"+filters.Search+"%")
	}
	if !filters.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", filters.CreatedFrom)
	}
	if !filters.CreatedTo.IsZero() {
		query = query.Where("created_at <= ?", filters.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal(err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var leads []models.Lead
	err := query.Preload("AssignedTo").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}

	return leads, total, nil
}

// Get returns a single lead scoped to the organization.
func Get(db *gorm.DB, leadID, orgID uint) (*models.Lead, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}
	if err := db.Preload("AssignedTo").First(lead, lead.ID).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return lead, nil
}

// Update edits lead details. Status changes go through ChangeStatus.
func Update(db *gorm.DB, leadID, orgID uint, input UpdateInput) (*models.Lead, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		lead.Title = strings.TrimSpace(*input.Title)
	}
	if input.Source != nil {
		lead.Source = *input.Source
	}
	if input.Data != nil {
		lead.Data = input.Data
	}

	if err := db.Save(lead).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return lead, nil
}

// Delete removes a lead and its entire activity trail.
func Delete(db *gorm.DB, leadID, orgID uint) error {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lead_id = ?", lead.ID).Delete(&models.LeadActivity{}).Error; err != nil {
			return err
		}
		return tx.Delete(lead).Error
	})
	if err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// ChangeStatus moves a lead through the status graph and records the
// transition in the activity trail atomically.
func ChangeStatus(db *gorm.DB, leadID, orgID, actorID uint, target string) (*models.Lead, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(lead.Status, target); err != nil {
		return nil, err
	}

	from := lead.Status
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(lead).Update("status", target).Error; err != nil {
			return err
		}
		return recordActivity(tx, lead.ID, actorID, models.ActivityStatusChange, models.JSON{
			"from": from,
			"to":   target,
		})
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	lead.Status = target
	metrics.LeadTransitions.WithLabelValues(from, target).Inc()
	logrus.WithFields(logrus.Fields{
		"lead_id": lead.ID,
		"from":    from,
		"to":      target,
	}).Info("lead status changed")

	return lead, nil
}

func validateAssignee(db *gorm.DB, assigneeID, orgID uint) error {
	var assignee models.User
	if err := db.First(&assignee, assigneeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Assignee not found")
		}
		return apperrors.Internal(err)
	}
	if assignee.OrganizationID != orgID {
		return apperrors.BadRequest("Assignee must be in the same organization")
	}
	return nil
}

// Assign sets or clears the lead's assignee and records the change.
func Assign(db *gorm.DB, leadID, orgID, actorID uint, assigneeID *uint) (*models.Lead, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	if assigneeID != nil {
		if err := validateAssignee(db, *assigneeID, orgID); err != nil {
			return nil, err
		}
	}

	data := models.JSON{}
	if lead.AssignedToID != nil {
		data["from"] = *lead.AssignedToID
	}
	if assigneeID != nil {
		data["to"] = *assigneeID
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(lead).Update("assigned_to_id", assigneeID).Error; err != nil {
			return err
		}
		return recordActivity(tx, lead.ID, actorID, models.ActivityAssignmentChange, data)
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	lead.AssignedToID = assigneeID
	return lead, nil
}

// AddNote appends a NOTE activity to the lead's trail.
func AddNote(db *gorm.DB, leadID, orgID, actorID uint, note string) (*models.LeadActivity, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.BadRequest("Note cannot be empty")
	}

	activity := models.LeadActivity{
		Type:   models.ActivityNote,
		Data:   models.JSON{"note": note},
		LeadID: lead.ID,
		UserID: actorID,
	}
	if err := db.Create(&activity).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &activity, nil
}

// Activities returns a lead's audit trail, newest first.
func Activities(db *gorm.DB, leadID, orgID uint) ([]models.LeadActivity, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	var activities []models.LeadActivity
	if err := db.Preload("User").Where("lead_id = ?", lead.ID).Order("created_at DESC").Find(&activities).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return activities, nil
}

// Convert closes a lead into a client record. A lead converts at most
// once; the resulting client inherits the lead's brand and organization.
func Convert(db *gorm.DB, leadID, orgID, actorID uint, input ConvertInput) (*models.Client, error) {
	lead, err := getForOrg(db, leadID, orgID)
	if err != nil {
		return nil, err
	}

	if lead.ConvertedClientID != nil {
		return nil, apperrors.BadRequest("Lead has already been converted")
	}

	pick := func(explicit, dataKey string) string {
		if explicit != "" {
			return explicit
		}
		if lead.Data != nil {
			if v, ok := lead.Data[dataKey].(string); ok {
				return v
			}
		}
		return ""
	}

	client := models.Client{
		Email:          pick(input.Email, "email"),
		CompanyName:    pick(input.CompanyName, "company_name"),
		ContactName:    pick(input.ContactName, "contact_name"),
		Phone:          pick(input.Phone, "phone"),
		Address:        pick(input.Address, "address"),
		BrandID:        lead.BrandID,
		OrganizationID: orgID,
	}
	if client.Email == "" {
		return nil, apperrors.BadRequest("Client email is required for conversion")
	}

	if input.Password != "" {
		hashed, err := auth.HashPassword(input.Password)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		client.Password = hashed
	}

	priorStatus := lead.Status
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&client).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"converted_client_id": client.ID}
		if priorStatus != models.LeadStatusClosed {
			updates["status"] = models.LeadStatusClosed
		}
		if err := tx.Model(lead).Updates(updates).Error; err != nil {
			return err
		}

		if priorStatus != models.LeadStatusClosed {
			if err := recordActivity(tx, lead.ID, actorID, models.ActivityStatusChange, models.JSON{
				"from": priorStatus,
				"to":   models.LeadStatusClosed,
			}); err != nil {
				return err
			}
		}
		return recordActivity(tx, lead.ID, actorID, models.ActivityConversion, models.JSON{
			"client_id":    client.ID,
			"company_name": client.CompanyName,
		})
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"lead_id":   lead.ID,
		"client_id": client.ID,
	}).Info("lead converted to client")

	return &client, nil
}
