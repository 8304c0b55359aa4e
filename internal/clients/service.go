package clients

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentra-backend/internal/auth"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

// CreateInput holds the fields accepted when creating a client.
type CreateInput struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
	BrandID     uint   `json:"brand_id"`
}

// UpdateInput holds the mutable client fields.
type UpdateInput struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	CompanyName *string `json:"company_name"`
	ContactName *string `json:"contact_name"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	Notes       *string `json:"notes"`
}

func getForOrg(db *gorm.DB, clientID, orgID uint) (*models.Client, error) {
	var client models.Client
	if err := db.First(&client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Client not found")
		}
		return nil, apperrors.Internal(err)
	}
	if client.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Client belongs to another organization")
	}
	return &client, nil
}

// Create adds a client to the organization. A portal password, when
// supplied, is stored hashed.
func Create(db *gorm.DB, orgID uint, input CreateInput) (*models.Client, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if input.BrandID != 0 {
		var brand models.Brand
		if err := db.First(&brand, input.BrandID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("Brand not found")
			}
			return nil, apperrors.Internal(err)
		}
		if brand.OrganizationID != orgID {
			return nil, apperrors.Forbidden("Brand belongs to another organization")
		}
	}

	var count int64
	if err := db.Model(&models.Client{}).
		Where("email = ? AND organization_id = ?", email, orgID).
		Count(&count).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("A client with this email already exists")
	}

	client := models.Client{
		Email:          email,
		CompanyName:    input.CompanyName,
		ContactName:    input.ContactName,
		Phone:          input.Phone,
		Address:        input.Address,
		Notes:          input.Notes,
		BrandID:        input.BrandID,
		OrganizationID: orgID,
	}
	if input.Password != "" {
		hashed, err := auth.HashPassword(input.Password)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		client.Password = hashed
	}

	if err := db.Create(&client).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"client_id":       client.ID,
		"organization_id": orgID,
	}).Info("client created")
	return &client, nil
}

// List returns clients for the organization with optional filters.
func List(db *gorm.DB, orgID uint, brandID uint, search string, page, limit int) ([]models.Client, int64, error) {
	query := db.Model(&models.Client{}).Where("organization_id = ?", orgID)
	if brandID != 0 {
		query = query.Where("brand_id = ?", brandID)
	}
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR company_name LIKE ? OR contact_name LIKE ?", like, like, like)
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

	var clients []models.Client
	err := query.Preload("Brand").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&clients).Error
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return clients, total, nil
}

// Get returns a client scoped to the organization.
func Get(db *gorm.DB, clientID, orgID uint) (*models.Client, error) {
	client, err := getForOrg(db, clientID, orgID)
	if err != nil {
		return nil, err
	}
	if err := db.Preload("Brand").First(client, client.ID).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return client, nil
}

// Update mutates client fields. Only non-nil inputs are applied.
func Update(db *gorm.DB, clientID, orgID uint, input UpdateInput) (*models.Client, error) {
	client, err := getForOrg(db, clientID, orgID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Password != nil && *input.Password != "" {
		hashed, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		updates["password"] = hashed
	}
	if input.CompanyName != nil {
		updates["company_name"] = *input.CompanyName
	}
	if input.ContactName != nil {
		updates["contact_name"] = *input.ContactName
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	if len(updates) > 0 {
		if err := db.Model(client).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	return client, nil
}

// Delete removes a client. Clients with recorded sales cannot be
// deleted; the ledger must stay intact.
func Delete(db *gorm.DB, clientID, orgID uint) error {
	client, err := getForOrg(db, clientID, orgID)
	if err != nil {
		return err
	}

	var saleCount int64
	if err := db.Model(&models.Sale{}).Where("client_id = ?", client.ID).Count(&saleCount).Error; err != nil {
		return apperrors.Internal(err)
	}
	if saleCount > 0 {
		return apperrors.Conflict("Client has sales and cannot be deleted")
	}

	if err := db.Delete(client).Error; err != nil {
		return apperrors.Internal(err)
	}
	return nil
}
