package brands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sentra-backend/internal/database"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

func setup(t *testing.T) (*gorm.DB, models.Organization) {
	t.Helper()

	db, err := database.OpenTest()
	require.NoError(t, err)

	org := models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	return db, org
}

func TestCreateBrandRejectsDuplicateName(t *testing.T) {
	db, org := setup(t)

	_, err := Create(db, org.ID, CreateInput{Name: "Acme Main"})
	require.NoError(t, err)

	_, err = Create(db, org.ID, CreateInput{Name: "Acme Main"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.AsAppError(err).Code)
}

func TestBrandSettingsRoundTrip(t *testing.T) {
	db, org := setup(t)

	brand, err := Create(db, org.ID, CreateInput{
		Name:     "Acme Main",
		Domain:   "acme.example.com",
		Settings: models.JSON{"theme": "dark", "currency": "USD"},
	})
	require.NoError(t, err)

	loaded, err := Get(db, brand.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "dark", loaded.Settings["theme"])
	assert.Equal(t, "USD", loaded.Settings["currency"])
}

func TestDeleteBrandInUseIsBlocked(t *testing.T) {
	db, org := setup(t)

	brand, err := Create(db, org.ID, CreateInput{Name: "Acme Main"})
	require.NoError(t, err)

	client := models.Client{Email: "c@example.com", BrandID: brand.ID, OrganizationID: org.ID}
	require.NoError(t, db.Create(&client).Error)

	err = Delete(db, brand.ID, org.ID)
	require.Error(t, err)
	assert.Equal(t, "Brand is in use and cannot be deleted", apperrors.AsAppError(err).Message)

	require.NoError(t, db.Delete(&client).Error)
	require.NoError(t, Delete(db, brand.ID, org.ID))
}

func TestBrandTenantIsolation(t *testing.T) {
	db, org := setup(t)

	brand, err := Create(db, org.ID, CreateInput{Name: "Acme Main"})
	require.NoError(t, err)

	other := models.Organization{Name: "Rival"}
	require.NoError(t, db.Create(&other).Error)

	_, err = Get(db, brand.ID, other.ID)
	require.Error(t, err)
	assert.Equal(t, "Brand belongs to another organization", apperrors.AsAppError(err).Message)
}
