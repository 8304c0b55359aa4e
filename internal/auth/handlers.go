package auth

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sentra-backend/internal/database"
	"sentra-backend/internal/email"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/middleware"
	"sentra-backend/internal/models"
	"sentra-backend/pkg/utils"
)

var mailer *email.Mailer

// SetMailer wires the transactional mailer used for password resets and
// welcome emails.
func SetMailer(m *email.Mailer) {
	mailer = m
}

// HandleRegister creates a new organization with its first (OWNER) user.
func HandleRegister(c *gin.Context) {
	if os.Getenv("DISABLE_REGISTRATION") == "true" {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "User registration is disabled. Please contact an administrator.",
		})
		return
	}

	email := utils.GetValidatedString(c, "validated_email")
	password := utils.GetValidatedString(c, "validated_password")
	name := utils.GetValidatedString(c, "validated_name")
	organizationName := utils.GetValidatedString(c, "validated_organization_name")

	if email == "" || password == "" || name == "" || organizationName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
		return
	}

	var existingUser models.User
	if err := database.DB.Where("email = ?", email).First(&existingUser).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
		return
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	var organization models.Organization
	var user models.User
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		organization = models.Organization{Name: organizationName}
		if err := tx.Create(&organization).Error; err != nil {
			return err
		}

		user = models.User{
			Name:           name,
			Email:          email,
			Password:       hashedPassword,
			Role:           models.RoleOwner,
			OrganizationID: organization.ID,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.CodeInternal, "Failed to create account"))
		return
	}

	if mailer != nil {
		go func() {
			if err := mailer.SendWelcome(user.Email, user.Name, organization.Name); err != nil {
				utils.HandleError(err, "auth.SendWelcome")
			}
		}()
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "User registered successfully",
		"user":         gin.H{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role},
		"organization": gin.H{"id": organization.ID, "name": organization.Name},
	})
}

// HandleLogin handles user login
func HandleLogin(c *gin.Context) {
	email := utils.GetValidatedString(c, "validated_email")
	password := utils.GetValidatedString(c, "validated_password")

	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ? AND active = ?", email, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			middleware.RecordFailedLoginAttempt(c)
			respondInvalidCredentials(c)
			return
		}
		utils.SendErrorResponse(c, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.CodeInternal, "Database error occurred"))
		return
	}

	if !CheckPassword(password, user.Password) {
		middleware.RecordFailedLoginAttempt(c)
		respondInvalidCredentials(c)
		return
	}
	middleware.RecordSuccessfulLoginAttempt(c)

	token, expiry, csrfToken, err := GenerateToken(user, user.OrganizationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	SetAuthCookie(c, token, expiry, csrfToken)
	c.Header("X-CSRF-Token", csrfToken)

	refreshToken, refreshExpiry, err := GenerateRefreshToken(user.ID, user.OrganizationID)
	if err != nil {
		log.Printf("Failed to generate refresh token for user %s: %v", user.Email, err)
	} else {
		user.RefreshTokenHash = HashToken(refreshToken)
		if err := database.DB.Model(&user).Update("refresh_token_hash", user.RefreshTokenHash).Error; err != nil {
			log.Printf("Failed to persist refresh token hash for user %s: %v", user.Email, err)
		}
		SetRefreshCookie(c, refreshToken, refreshExpiry)
	}

	var organization models.Organization
	database.DB.First(&organization, user.OrganizationID)

	responseBody := gin.H{
		"message":      "Login successful",
		"user":         gin.H{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role},
		"organization": gin.H{"id": organization.ID, "name": organization.Name},
		"csrf_token":   csrfToken,
		"expires_at":   expiry.Unix(),
		"token":        token,
	}
	if refreshToken != "" {
		responseBody["refresh_token"] = refreshToken
		responseBody["refresh_expires_at"] = refreshExpiry.Unix()
	}

	c.JSON(http.StatusOK, responseBody)
}

// HandleRefreshToken rotates the refresh token and issues a new access token.
func HandleRefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	tokenString := strings.TrimSpace(req.RefreshToken)
	if tokenString == "" {
		if cookieToken, err := c.Cookie(RefreshCookieName); err == nil {
			tokenString = cookieToken
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No refresh token provided"})
		return
	}

	claims, err := ParseRefreshToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	var user models.User
	if err := database.DB.First(&user, claims.UserID).Error; err != nil || !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	// Rotation: the presented token must match the stored hash.
	if user.RefreshTokenHash == "" || user.RefreshTokenHash != HashToken(tokenString) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token has been revoked"})
		return
	}

	token, expiry, csrfToken, err := GenerateToken(user, user.OrganizationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	refreshToken, refreshExpiry, err := GenerateRefreshToken(user.ID, user.OrganizationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
		return
	}
	if err := database.DB.Model(&user).Update("refresh_token_hash", HashToken(refreshToken)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rotate refresh token"})
		return
	}

	SetAuthCookie(c, token, expiry, csrfToken)
	SetRefreshCookie(c, refreshToken, refreshExpiry)
	c.Header("X-CSRF-Token", csrfToken)

	c.JSON(http.StatusOK, gin.H{
		"token":              token,
		"expires_at":         expiry.Unix(),
		"refresh_token":      refreshToken,
		"refresh_expires_at": refreshExpiry.Unix(),
		"csrf_token":         csrfToken,
	})
}

// HandleLogout handles user logout
func HandleLogout(c *gin.Context) {
	tokenString := c.GetString("token")
	if tokenString == "" {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) == 2 && tokenParts[0] == "Bearer" {
				tokenString = tokenParts[1]
			}
		}
	}
	if tokenString == "" {
		if cookieToken, err := c.Cookie(AuthCookieName); err == nil {
			tokenString = cookieToken
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No active session found"})
		return
	}

	claims, err := ParseToken(tokenString)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
		return
	}

	BlacklistToken(database.DB, tokenString, claims.ExpiresAt.Time)
	ClearAuthCookie(c)
	ClearRefreshCookie(c)

	// Drop the stored refresh token so it cannot be replayed.
	if userID := c.GetUint("user_id"); userID != 0 {
		database.DB.Model(&models.User{}).Where("id = ?", userID).Update("refresh_token_hash", "")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func respondInvalidCredentials(c *gin.Context) {
	utils.SendErrorResponse(c, http.StatusUnauthorized, &apperrors.AppError{
		Code:    apperrors.ErrInvalidCredentials.Code,
		Message: apperrors.ErrInvalidCredentials.Message,
	})
}

// HandleGetProfile retrieves the current user's profile
func HandleGetProfile(c *gin.Context) {
	userID := c.GetUint("user_id")
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var organization models.Organization
	database.DB.First(&organization, user.OrganizationID)

	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"organization": gin.H{
			"id":   organization.ID,
			"name": organization.Name,
			"plan": organization.Plan,
		},
	})
}

// HandleUpdateProfile updates the user's profile
func HandleUpdateProfile(c *gin.Context) {
	var req struct {
		Name      string  `json:"name"`
		AvatarURL *string `json:"avatar_url"`
		JobTitle  *string `json:"job_title"`
		Phone     *string `json:"phone"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if req.JobTitle != nil {
		user.JobTitle = *req.JobTitle
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}

	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// HandleChangePassword changes the user's password
func HandleChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=8"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if !CheckPassword(req.CurrentPassword, user.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}

	hashedPassword, err := HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user.Password = hashedPassword
	user.RefreshTokenHash = ""
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully. Please log in again."})
}

// HandleRequestPasswordReset sends a password reset link
func HandleRequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		// Don't reveal if email exists or not
		c.JSON(http.StatusOK, gin.H{"message": "If the email exists, a reset link has been sent"})
		return
	}

	resetToken := GenerateToken64()
	tokenExpiry := time.Now().Add(1 * time.Hour)
	user.PasswordResetToken = HashToken(resetToken)
	user.PasswordResetExpiry = &tokenExpiry

	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate reset token"})
		return
	}

	if mailer != nil {
		if err := mailer.SendPasswordReset(user.Email, user.Name, resetToken); err != nil {
			utils.HandleError(err, "auth.SendPasswordReset")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "If the email exists, a reset link has been sent"})
}

// HandleResetPassword resets a user's password using a token
func HandleResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.DB.Where("password_reset_token = ?", HashToken(req.Token)).First(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
		return
	}

	if user.PasswordResetExpiry == nil || time.Now().After(*user.PasswordResetExpiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password reset token has expired. Please request a new one."})
		return
	}

	hashedPassword, err := HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user.Password = hashedPassword
	user.PasswordResetToken = ""
	user.PasswordResetExpiry = nil
	user.RefreshTokenHash = ""

	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}
