package organization

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
	owner models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenTest()
	require.NoError(t, err)

	f := &fixture{db: db}
	f.org = models.Organization{Name: "Acme", Plan: "FREE"}
	require.NoError(t, db.Create(&f.org).Error)

	f.owner = models.User{
		Email:          "owner@acme.test",
		Name:           "Owner",
		Role:           models.RoleOwner,
		Active:         true,
		OrganizationID: f.org.ID,
	}
	require.NoError(t, db.Create(&f.owner).Error)
	return f
}

func TestInviteCreatesPendingInvitation(t *testing.T) {
	f := setup(t)

	invitation, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "New.Agent@Example.com",
		Role:  models.RoleFrontsellAgent,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.agent@example.com", invitation.Email)
	assert.Equal(t, models.InvitationPending, invitation.Status)
	assert.NotEmpty(t, invitation.Token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), invitation.ExpiresAt, time.Minute)
}

func TestInviteRejectsOwnerRole(t *testing.T) {
	f := setup(t)

	_, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "usurper@example.com",
		Role:  models.RoleOwner,
	})
	require.Error(t, err)
	assert.Equal(t, "Cannot invite a user as OWNER", apperrors.AsAppError(err).Message)
}

func TestInviteRejectsExistingMember(t *testing.T) {
	f := setup(t)

	_, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: f.owner.Email,
		Role:  models.RoleAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, "User is already a member", apperrors.AsAppError(err).Message)
}

func TestInviteRejectsDuplicatePendingInvitation(t *testing.T) {
	f := setup(t)

	_, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "dup@example.com",
		Role:  models.RoleFrontsellAgent,
	})
	require.NoError(t, err)

	_, err = Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "dup@example.com",
		Role:  models.RoleProjectManager,
	})
	require.Error(t, err)
	assert.Equal(t, "Invitation already sent", apperrors.AsAppError(err).Message)
}

func TestInvitationByToken(t *testing.T) {
	f := setup(t)

	invitation, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "lookup@example.com",
		Role:  models.RoleFrontsellAgent,
	})
	require.NoError(t, err)

	found, err := InvitationByToken(f.db, invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, "lookup@example.com", found.Email)
	assert.Equal(t, f.org.Name, found.Organization.Name)

	_, err = InvitationByToken(f.db, "no-such-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)
}

func TestAcceptCreatesUserWithInvitedRole(t *testing.T) {
	f := setup(t)

	invitation, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "hire@example.com",
		Role:  models.RoleProjectManager,
	})
	require.NoError(t, err)

	user, err := Accept(f.db, AcceptInput{
		Token:    invitation.Token,
		Name:     "New Hire",
		Password: "sufficiently-long",
	})
	require.NoError(t, err)
	assert.Equal(t, "hire@example.com", user.Email)
	assert.Equal(t, models.RoleProjectManager, user.Role)
	assert.Equal(t, f.org.ID, user.OrganizationID)
	assert.True(t, user.Active)
	assert.True(t, auth.CheckPassword("sufficiently-long", user.Password))

	var accepted models.Invitation
	require.NoError(t, f.db.First(&accepted, invitation.ID).Error)
	assert.Equal(t, models.InvitationAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)

	// A redeemed token cannot be reused.
	_, err = Accept(f.db, AcceptInput{Token: invitation.Token, Name: "Again", Password: "sufficiently-long"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.AsAppError(err).Code)
}

func TestAcceptExpiredInvitation(t *testing.T) {
	f := setup(t)

	invitation, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "late@example.com",
		Role:  models.RoleFrontsellAgent,
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(invitation).Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = Accept(f.db, AcceptInput{Token: invitation.Token, Name: "Late", Password: "sufficiently-long"})
	require.Error(t, err)
	assert.Equal(t, "Invitation has expired", apperrors.AsAppError(err).Message)

	var expired models.Invitation
	require.NoError(t, f.db.First(&expired, invitation.ID).Error)
	assert.Equal(t, models.InvitationExpired, expired.Status)
}

func TestCancelInvitation(t *testing.T) {
	f := setup(t)

	invitation, err := Invite(f.db, f.org.ID, f.owner.ID, InviteInput{
		Email: "cancelled@example.com",
		Role:  models.RoleFrontsellAgent,
	})
	require.NoError(t, err)

	require.NoError(t, CancelInvitation(f.db, invitation.ID, f.org.ID))

	_, err = Accept(f.db, AcceptInput{Token: invitation.Token, Name: "X", Password: "sufficiently-long"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.AsAppError(err).Code)
}

func TestUpdateMemberRoleGuards(t *testing.T) {
	f := setup(t)

	member := models.User{
		Email:          "agent@acme.test",
		Role:           models.RoleFrontsellAgent,
		Active:         true,
		OrganizationID: f.org.ID,
	}
	require.NoError(t, f.db.Create(&member).Error)

	updated, err := UpdateMemberRole(f.db, member.ID, f.org.ID, models.RoleSalesManager)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSalesManager, updated.Role)

	_, err = UpdateMemberRole(f.db, member.ID, f.org.ID, models.RoleOwner)
	require.Error(t, err)

	_, err = UpdateMemberRole(f.db, f.owner.ID, f.org.ID, models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, "Cannot change the owner's role", apperrors.AsAppError(err).Message)
}

func TestRemoveMemberDeactivates(t *testing.T) {
	f := setup(t)

	member := models.User{
		Email:            "leaving@acme.test",
		Role:             models.RoleFrontsellAgent,
		Active:           true,
		RefreshTokenHash: "some-hash",
		OrganizationID:   f.org.ID,
	}
	require.NoError(t, f.db.Create(&member).Error)

	require.NoError(t, RemoveMember(f.db, member.ID, f.org.ID, f.owner.ID))

	var gone models.User
	require.NoError(t, f.db.First(&gone, member.ID).Error)
	assert.False(t, gone.Active)
	assert.Empty(t, gone.RefreshTokenHash)

	// The owner cannot be removed, nor can you remove yourself.
	err := RemoveMember(f.db, f.owner.ID, f.org.ID, member.ID)
	require.Error(t, err)
	err = RemoveMember(f.db, member.ID, f.org.ID, member.ID)
	require.Error(t, err)
}
