package bootstrap

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sentra-backend/internal/models"
)

// Run wires up the default organization and owner user for local
// Docker Compose stacks and fresh deployments.
func Run(db *gorm.DB) {
	if db == nil {
		logrus.Warn("bootstrap: skipping; database not initialized")
		return
	}

	org := ensureOrganization(db)
	if org == nil {
		logrus.Warn("bootstrap: unable to ensure default organization")
		return
	}

	ensureOwnerUser(db, org)
}

func ensureOrganization(db *gorm.DB) *models.Organization {
	orgIDStr := strings.TrimSpace(os.Getenv("BOOTSTRAP_ORG_ID"))
	if orgIDStr != "" {
		if orgID, err := strconv.ParseUint(orgIDStr, 10, 64); err == nil {
			var org models.Organization
			if err := db.First(&org, orgID).Error; err == nil {
				return &org
			}
		}
	}

	var org models.Organization
	if err := db.First(&org).Error; err == nil {
		return &org
	}

	name := strings.TrimSpace(os.Getenv("BOOTSTRAP_ORG_NAME"))
	if name == "" {
		name = "Sentra Demo Organization"
	}

	org = models.Organization{
		Name: name,
		Plan: "FREE",
	}
	if err := db.Create(&org).Error; err != nil {
		logrus.WithError(err).Errorf("bootstrap: failed to create organization %q", name)
		return nil
	}

	logrus.Infof("bootstrap: created organization %q (ID %d)", org.Name, org.ID)
	return &org
}

func ensureOwnerUser(db *gorm.DB, org *models.Organization) {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	if email == "" {
		email = "admin@sentra.local"
	}

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		// No password, no seeded account. Forces production deployments
		// to set credentials explicitly.
		logrus.Warn("bootstrap: ADMIN_PASSWORD not set; skipping owner user creation")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		logrus.WithError(err).Error("bootstrap: failed to hash owner password")
		return
	}

	name := strings.TrimSpace(os.Getenv("ADMIN_NAME"))
	if name == "" {
		name = "System Administrator"
	}

	user = models.User{
		Email:          email,
		Password:       string(hashed),
		Name:           name,
		Role:           models.RoleOwner,
		Active:         true,
		OrganizationID: org.ID,
	}

	if err := db.Create(&user).Error; err != nil {
		logrus.WithError(err).Errorf("bootstrap: failed to create owner user %s", email)
		return
	}

	logrus.Infof("bootstrap: created owner user %s", email)
}
