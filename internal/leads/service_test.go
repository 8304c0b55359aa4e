package leads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sentra-backend/internal/auth"
	"sentra-backend/internal/database"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

type fixture struct {
	db    *gorm.DB
	org   models.Organization
	other models.Organization
	user  models.User
	brand models.Brand
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenTest()
	require.NoError(t, err)

	f := &fixture{db: db}
	f.org = models.Organization{Name: "Acme", Plan: "FREE"}
	require.NoError(t, db.Create(&f.org).Error)
	f.other = models.Organization{Name: "Rival", Plan: "FREE"}
	require.NoError(t, db.Create(&f.other).Error)

	f.user = models.User{
		Email:          "agent@acme.test",
		Name:           "Agent",
		Role:           models.RoleFrontsellAgent,
		Active:         true,
		OrganizationID: f.org.ID,
	}
	require.NoError(t, db.Create(&f.user).Error)

	f.brand = models.Brand{Name: "Acme Main", OrganizationID: f.org.ID}
	require.NoError(t, db.Create(&f.brand).Error)

	return f
}

func (f *fixture) newLead(t *testing.T) *models.Lead {
	t.Helper()
	lead, err := Create(f.db, f.org.ID, f.user.ID, CreateInput{
		Title:   "Website redesign",
		Source:  "referral",
		BrandID: f.brand.ID,
	})
	require.NoError(t, err)
	return lead
}

func TestCreateLeadRecordsActivity(t *testing.T) {
	f := setup(t)

	lead := f.newLead(t)
	assert.Equal(t, models.LeadStatusNew, lead.Status)

	activities, err := Activities(f.db, lead.ID, f.org.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityCreated, activities[0].Type)
	assert.Equal(t, f.user.ID, activities[0].UserID)
}

func TestCreateLeadRejectsForeignBrand(t *testing.T) {
	f := setup(t)

	foreignBrand := models.Brand{Name: "Rival Brand", OrganizationID: f.other.ID}
	require.NoError(t, f.db.Create(&foreignBrand).Error)

	_, err := Create(f.db, f.org.ID, f.user.ID, CreateInput{
		Title:   "Poached lead",
		BrandID: foreignBrand.ID,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)
}

func TestCreateLeadRejectsAssigneeFromOtherOrg(t *testing.T) {
	f := setup(t)

	outsider := models.User{
		Email:          "spy@rival.test",
		Role:           models.RoleFrontsellAgent,
		Active:         true,
		OrganizationID: f.other.ID,
	}
	require.NoError(t, f.db.Create(&outsider).Error)

	_, err := Create(f.db, f.org.ID, f.user.ID, CreateInput{
		Title:        "Cross-org assignment",
		BrandID:      f.brand.ID,
		AssignedToID: &outsider.ID,
	})
	require.Error(t, err)
	assert.Equal(t, "Assignee must be in the same organization", apperrors.AsAppError(err).Message)
}

func TestChangeStatusFollowsGraph(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	lead, err := ChangeStatus(f.db, lead.ID, f.org.ID, f.user.ID, models.LeadStatusContacted)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusContacted, lead.Status)

	lead, err = ChangeStatus(f.db, lead.ID, f.org.ID, f.user.ID, models.LeadStatusProposal)
	require.NoError(t, err)

	lead, err = ChangeStatus(f.db, lead.ID, f.org.ID, f.user.ID, models.LeadStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusClosed, lead.Status)

	_, err = ChangeStatus(f.db, lead.ID, f.org.ID, f.user.ID, models.LeadStatusContacted)
	require.Error(t, err)
	assert.Equal(t, "Cannot transition from CLOSED to CONTACTED", apperrors.AsAppError(err).Message)
}

func TestChangeStatusRecordsTransitionActivity(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	_, err := ChangeStatus(f.db, lead.ID, f.org.ID, f.user.ID, models.LeadStatusContacted)
	require.NoError(t, err)

	activities, err := Activities(f.db, lead.ID, f.org.ID)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	var change *models.LeadActivity
	for i := range activities {
		if activities[i].Type == models.ActivityStatusChange {
			change = &activities[i]
		}
	}
	require.NotNil(t, change)
	assert.Equal(t, models.LeadStatusNew, change.Data["from"])
	assert.Equal(t, models.LeadStatusContacted, change.Data["to"])
}

func TestLeadTenantIsolation(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	_, err := Get(f.db, lead.ID, f.other.ID)
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeForbidden, appErr.Code)
	assert.Equal(t, "Lead belongs to another organization", appErr.Message)

	_, err = ChangeStatus(f.db, lead.ID, f.other.ID, f.user.ID, models.LeadStatusContacted)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeForbidden, apperrors.AsAppError(err).Code)
}

func TestAssignAndClearAssignee(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	colleague := models.User{
		Email:          "closer@acme.test",
		Role:           models.RoleSalesManager,
		Active:         true,
		OrganizationID: f.org.ID,
	}
	require.NoError(t, f.db.Create(&colleague).Error)

	lead, err := Assign(f.db, lead.ID, f.org.ID, f.user.ID, &colleague.ID)
	require.NoError(t, err)
	require.NotNil(t, lead.AssignedToID)
	assert.Equal(t, colleague.ID, *lead.AssignedToID)

	lead, err = Assign(f.db, lead.ID, f.org.ID, f.user.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, lead.AssignedToID)

	activities, err := Activities(f.db, lead.ID, f.org.ID)
	require.NoError(t, err)

	var changes int
	for _, a := range activities {
		if a.Type == models.ActivityAssignmentChange {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestAddNoteRejectsEmpty(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	_, err := AddNote(f.db, lead.ID, f.org.ID, f.user.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeBadRequest, apperrors.AsAppError(err).Code)

	activity, err := AddNote(f.db, lead.ID, f.org.ID, f.user.ID, "Called, left voicemail")
	require.NoError(t, err)
	assert.Equal(t, "Called, left voicemail", activity.Data["note"])
}

func TestConvertLead(t *testing.T) {
	f := setup(t)

	lead, err := Create(f.db, f.org.ID, f.user.ID, CreateInput{
		Title:   "Inbound signup",
		BrandID: f.brand.ID,
		Data: models.JSON{
			"email":        "buyer@example.com",
			"company_name": "Example LLC",
		},
	})
	require.NoError(t, err)

	client, err := Convert(f.db, lead.ID, f.org.ID, f.user.ID, ConvertInput{
		ContactName: "Jordan Buyer",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", client.Email)
	assert.Equal(t, "Example LLC", client.CompanyName)
	assert.Equal(t, "Jordan Buyer", client.ContactName)
	assert.Equal(t, f.brand.ID, client.BrandID)
	assert.Equal(t, f.org.ID, client.OrganizationID)

	converted, err := Get(f.db, lead.ID, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusClosed, converted.Status)
	require.NotNil(t, converted.ConvertedClientID)
	assert.Equal(t, client.ID, *converted.ConvertedClientID)

	// Second conversion is rejected.
	_, err = Convert(f.db, lead.ID, f.org.ID, f.user.ID, ConvertInput{Email: "again@example.com"})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Lead has already been converted", appErr.Message)
}

func TestConvertLeadWithPortalPassword(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	client, err := Convert(f.db, lead.ID, f.org.ID, f.user.ID, ConvertInput{
		Email:    "portal@example.com",
		Password: "portal-secret",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "portal-secret", client.Password)
	assert.True(t, auth.CheckPassword("portal-secret", client.Password))
}

func TestConvertLeadRequiresEmail(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	_, err := Convert(f.db, lead.ID, f.org.ID, f.user.ID, ConvertInput{})
	require.Error(t, err)
	assert.Equal(t, "Client email is required for conversion", apperrors.AsAppError(err).Message)
}

func TestListLeadsFilters(t *testing.T) {
	f := setup(t)

	first := f.newLead(t)
	_, err := Create(f.db, f.org.ID, f.user.ID, CreateInput{
		Title:   "Cold outreach",
		Source:  "cold-call",
		BrandID: f.brand.ID,
	})
	require.NoError(t, err)

	_, err = ChangeStatus(f.db, first.ID, f.org.ID, f.user.ID, models.LeadStatusContacted)
	require.NoError(t, err)

	contacted, total, err := List(f.db, f.org.ID, ListFilters{Status: models.LeadStatusContacted})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, contacted, 1)
	assert.Equal(t, first.ID, contacted[0].ID)

	byTitle, total, err := List(f.db, f.org.ID, ListFilters{Search: "outreach"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Cold outreach", byTitle[0].Title)

	none, total, err := List(f.db, f.other.ID, ListFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, none)

	// Date-range filters.
	recent, total, err := List(f.db, f.org.ID, ListFilters{CreatedFrom: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, recent, 2)

	old, total, err := List(f.db, f.org.ID, ListFilters{CreatedTo: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, old)
}

func TestDeleteLeadRemovesActivities(t *testing.T) {
	f := setup(t)
	lead := f.newLead(t)

	require.NoError(t, Delete(f.db, lead.ID, f.org.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.LeadActivity{}).Where("lead_id = ?", lead.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	_, err := Get(f.db, lead.ID, f.org.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)
}
