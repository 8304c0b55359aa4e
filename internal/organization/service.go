package organization

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sentra-backend/internal/auth"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

const invitationTTL = 7 * 24 * time.Hour

// UpdateInput holds the mutable organization fields.
type UpdateInput struct {
	Name *string `json:"name"`
	Plan *string `json:"plan"`
}

// InviteInput describes a new member invitation.
type InviteInput struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AcceptInput carries the invitation token plus the new user's details.
type AcceptInput struct {
	Token    string `json:"token" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// Get returns the organization record.
func Get(db *gorm.DB, orgID uint) (*models.Organization, error) {
	var org models.Organization
	if err := db.First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Organization not found")
		}
		return nil, apperrors.Internal(err)
	}
	return &org, nil
}

// Update mutates organization fields.
func Update(db *gorm.DB, orgID uint, input UpdateInput) (*models.Organization, error) {
	org, err := Get(db, orgID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperrors.BadRequest("Organization name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Plan != nil {
		updates["plan"] = *input.Plan
	}

	if len(updates) > 0 {
		if err := db.Model(org).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	return org, nil
}

// Members returns all users in the organization.
func Members(db *gorm.DB, orgID uint) ([]models.User, error) {
	var members []models.User
	if err := db.Where("organization_id = ?", orgID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return members, nil
}

// Invite creates a pending invitation for a new member. The OWNER role
// cannot be granted through invitations.
func Invite(db *gorm.DB, orgID, inviterID uint, input InviteInput) (*models.Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if models.RoleLevel(input.Role) < 0 {
		return nil, apperrors.BadRequest("Invalid role")
	}
	if input.Role == models.RoleOwner {
		return nil, apperrors.BadRequest("Cannot invite a user as OWNER")
	}

	var existingUser models.User
	if err := db.Where("email = ?", email).First(&existingUser).Error; err == nil {
		if existingUser.OrganizationID == orgID {
			return nil, apperrors.Conflict("User is already a member")
		}
		return nil, apperrors.Conflict("User already belongs to another organization")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal(err)
	}

	var pending int64
	err := db.Model(&models.Invitation{}).
		Where("organization_id = ? AND email = ? AND status = ?", orgID, email, models.InvitationPending).
		Count(&pending).Error
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if pending > 0 {
		return nil, apperrors.Conflict("Invitation already sent")
	}

	invitation := models.Invitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           input.Role,
		Token:          uuid.NewString(),
		InvitedBy:      inviterID,
		Status:         models.InvitationPending,
		ExpiresAt:      time.Now().Add(invitationTTL),
	}
	if err := db.Create(&invitation).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"organization_id": orgID,
		"email":           email,
		"role":            input.Role,
	}).Info("invitation created")
	return &invitation, nil
}

// Invitations returns pending invitations for the organization.
func Invitations(db *gorm.DB, orgID uint) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := db.Where("organization_id = ? AND status = ?", orgID, models.InvitationPending).
		Preload("Inviter").
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return invitations, nil
}

// InvitationByToken resolves a pending invitation for the accept page.
// Expired invitations are marked as such on lookup.
func InvitationByToken(db *gorm.DB, token string) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := db.Where("token = ?", token).Preload("Organization").First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Invitation not found")
		}
		return nil, apperrors.Internal(err)
	}
	if invitation.Status != models.InvitationPending {
		return nil, apperrors.Conflict("Invitation is no longer pending")
	}
	if time.Now().After(invitation.ExpiresAt) {
		db.Model(&invitation).Update("status", models.InvitationExpired)
		return nil, apperrors.BadRequest("Invitation has expired")
	}
	return &invitation, nil
}

// CancelInvitation cancels a pending invitation.
func CancelInvitation(db *gorm.DB, invitationID, orgID uint) error {
	var invitation models.Invitation
	if err := db.Where("id = ? AND organization_id = ?", invitationID, orgID).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Invitation not found")
		}
		return apperrors.Internal(err)
	}
	if invitation.Status != models.InvitationPending {
		return apperrors.Conflict("Invitation is no longer pending")
	}

	if err := db.Model(&invitation).Update("status", models.InvitationCancelled).Error; err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Accept redeems an invitation token, creating the invited user with
// the invited role. Expired invitations are marked as such on first use.
func Accept(db *gorm.DB, input AcceptInput) (*models.User, error) {
	var invitation models.Invitation
	if err := db.Where("token = ?", input.Token).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Invitation not found")
		}
		return nil, apperrors.Internal(err)
	}

	if invitation.Status != models.InvitationPending {
		return nil, apperrors.Conflict("Invitation is no longer pending")
	}
	if time.Now().After(invitation.ExpiresAt) {
		db.Model(&invitation).Update("status", models.InvitationExpired)
		return nil, apperrors.BadRequest("Invitation has expired")
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", invitation.Email).Count(&count).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("An account with this email already exists")
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := models.User{
		Email:          invitation.Email,
		Password:       hashed,
		Name:           input.Name,
		Role:           invitation.Role,
		Active:         true,
		OrganizationID: invitation.OrganizationID,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&invitation).Updates(map[string]interface{}{
			"status":      models.InvitationAccepted,
			"accepted_at": &now,
		}).Error
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
	}).Info("invitation accepted")
	return &user, nil
}

// UpdateMemberRole changes a member's role. The OWNER role can be
// neither granted nor revoked here.
func UpdateMemberRole(db *gorm.DB, memberID, orgID uint, role string) (*models.User, error) {
	if models.RoleLevel(role) < 0 {
		return nil, apperrors.BadRequest("Invalid role")
	}
	if role == models.RoleOwner {
		return nil, apperrors.BadRequest("Cannot grant the OWNER role")
	}

	var member models.User
	if err := db.Where("id = ? AND organization_id = ?", memberID, orgID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Member not found")
		}
		return nil, apperrors.Internal(err)
	}
	if member.Role == models.RoleOwner {
		return nil, apperrors.Forbidden("Cannot change the owner's role")
	}

	if err := db.Model(&member).Update("role", role).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &member, nil
}

// RemoveMember deactivates a member and revokes their sessions. The
// owner cannot be removed.
func RemoveMember(db *gorm.DB, memberID, orgID, actorID uint) error {
	if memberID == actorID {
		return apperrors.BadRequest("Cannot remove yourself")
	}

	var member models.User
	if err := db.Where("id = ? AND organization_id = ?", memberID, orgID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Member not found")
		}
		return apperrors.Internal(err)
	}
	if member.Role == models.RoleOwner {
		return apperrors.Forbidden("Cannot remove the organization owner")
	}

	err := db.Model(&member).Updates(map[string]interface{}{
		"active":             false,
		"refresh_token_hash": "",
	}).Error
	if err != nil {
		return apperrors.Internal(err)
	}

	logrus.WithFields(logrus.Fields{
		"member_id":       member.ID,
		"organization_id": orgID,
	}).Info("member removed")
	return nil
}
