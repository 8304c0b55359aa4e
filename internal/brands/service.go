package brands

import (
	"errors"

	"gorm.io/gorm"

	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

// CreateInput holds the fields accepted when creating a brand.
type CreateInput struct {
	Name     string      `json:"name" binding:"required"`
	Domain   string      `json:"domain"`
	LogoURL  string      `json:"logo_url"`
	Settings models.JSON `json:"settings"`
}

// UpdateInput holds the mutable brand fields.
type UpdateInput struct {
	Name     *string     `json:"name"`
	Domain   *string     `json:"domain"`
	LogoURL  *string     `json:"logo_url"`
	Settings models.JSON `json:"settings"`
}

func getForOrg(db *gorm.DB, brandID, orgID uint) (*models.Brand, error) {
	var brand models.Brand
	if err := db.First(&brand, brandID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Brand not found")
		}
		return nil, apperrors.Internal(err)
	}
	if brand.OrganizationID != orgID {
		return nil, apperrors.Forbidden("Brand belongs to another organization")
	}
	return &brand, nil
}

// Create adds a brand to the organization.
func Create(db *gorm.DB, orgID uint, input CreateInput) (*models.Brand, error) {
	var count int64
	if err := db.Model(&models.Brand{}).
		Where("name = ? AND organization_id = ?", input.Name, orgID).
		Count(&count).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("A brand with this name already exists")
	}

	brand := models.Brand{
		Name:           input.Name,
		Domain:         input.Domain,
		LogoURL:        input.LogoURL,
		Settings:       input.Settings,
		OrganizationID: orgID,
	}
	if err := db.Create(&brand).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &brand, nil
}

// List returns all brands for the organization.
func List(db *gorm.DB, orgID uint) ([]models.Brand, error) {
	var brands []models.Brand
	if err := db.Where("organization_id = ?", orgID).Order("name ASC").Find(&brands).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return brands, nil
}

// Get returns a brand scoped to the organization.
func Get(db *gorm.DB, brandID, orgID uint) (*models.Brand, error) {
	return getForOrg(db, brandID, orgID)
}

// Update mutates brand fields. Only non-nil inputs are applied.
func Update(db *gorm.DB, brandID, orgID uint, input UpdateInput) (*models.Brand, error) {
	brand, err := getForOrg(db, brandID, orgID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Domain != nil {
		updates["domain"] = *input.Domain
	}
	if input.LogoURL != nil {
		updates["logo_url"] = *input.LogoURL
	}
	if input.Settings != nil {
		updates["settings"] = input.Settings
	}

	if len(updates) > 0 {
		if err := db.Model(brand).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	return brand, nil
}

// Delete removes a brand. Brands still referenced by clients or leads
// cannot be deleted.
func Delete(db *gorm.DB, brandID, orgID uint) error {
	brand, err := getForOrg(db, brandID, orgID)
	if err != nil {
		return err
	}

	var clientCount, leadCount int64
	if err := db.Model(&models.Client{}).Where("brand_id = ?", brand.ID).Count(&clientCount).Error; err != nil {
		return apperrors.Internal(err)
	}
	if err := db.Model(&models.Lead{}).Where("brand_id = ?", brand.ID).Count(&leadCount).Error; err != nil {
		return apperrors.Internal(err)
	}
	if clientCount > 0 || leadCount > 0 {
		return apperrors.Conflict("Brand is in use and cannot be deleted")
	}

	if err := db.Delete(brand).Error; err != nil {
		return apperrors.Internal(err)
	}
	return nil
}
