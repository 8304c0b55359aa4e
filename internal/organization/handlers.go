package organization

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/database"
	"sentra-backend/internal/email"
	"sentra-backend/internal/models"
	"sentra-backend/pkg/utils"
)

var mailer *email.Mailer

// SetMailer wires the mailer used for invitation emails.
func SetMailer(m *email.Mailer) {
	mailer = m
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// HandleGetOrganization returns the caller's organization.
func HandleGetOrganization(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	org, err := Get(database.DB, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// HandleUpdateOrganization mutates organization fields.
func HandleUpdateOrganization(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	var input UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	org, err := Update(database.DB, orgID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// HandleGetMembers lists all users in the organization.
func HandleGetMembers(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	members, err := Members(database.DB, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

// HandleInviteMember creates an invitation and emails the invitee.
func HandleInviteMember(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")

	var input InviteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	invitation, err := Invite(database.DB, orgID, userID, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if mailer != nil {
		org, orgErr := Get(database.DB, orgID)
		inviterName := ""
		var inviter models.User
		if database.DB.First(&inviter, userID).Error == nil {
			inviterName = inviter.Name
		}
		if orgErr == nil {
			mailer.SendInvitation(invitation.Email, org.Name, inviterName, invitation.Token)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"invitation": invitation,
		"message":    "Invitation sent successfully",
	})
}

// HandleGetInvitations lists pending invitations.
func HandleGetInvitations(c *gin.Context) {
	orgID := c.GetUint("organization_id")

	invitations, err := Invitations(database.DB, orgID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations, "total": len(invitations)})
}

// HandleCancelInvitation cancels a pending invitation.
func HandleCancelInvitation(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := CancelInvitation(database.DB, id, orgID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation cancelled successfully"})
}

// HandleGetInvitation resolves an invitation token for the accept page.
// Public route.
func HandleGetInvitation(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invitation token is required"})
		return
	}

	invitation, err := InvitationByToken(database.DB, token)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":        invitation.Email,
		"role":         invitation.Role,
		"organization": invitation.Organization.Name,
		"expires_at":   invitation.ExpiresAt,
	})
}

// HandleAcceptInvitation redeems an invitation token. Public route; the
// invitee does not have an account yet.
func HandleAcceptInvitation(c *gin.Context) {
	var input AcceptInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	user, err := Accept(database.DB, input)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Invitation accepted successfully",
		"user":    user,
	})
}

// HandleUpdateMemberRole changes a member's role.
func HandleUpdateMemberRole(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	member, err := UpdateMemberRole(database.DB, id, orgID, req.Role)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member role updated successfully", "member": member})
}

// HandleRemoveMember deactivates a member.
func HandleRemoveMember(c *gin.Context) {
	orgID := c.GetUint("organization_id")
	userID := c.GetUint("user_id")
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := RemoveMember(database.DB, id, orgID, userID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}
