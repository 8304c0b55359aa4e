package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func readBody(c *gin.Context) ([]byte, bool) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		c.Abort()
		return nil, false
	}
	// Restore body for further processing
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return bodyBytes, true
}

func validEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// ValidateLoginInput validates login request input
func ValidateLoginInput() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, ok := readBody(c)
		if !ok {
			return
		}

		var payload struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}

		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
			c.Abort()
			return
		}

		email := strings.TrimSpace(payload.Email)
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
			c.Abort()
			return
		}
		if !validEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
			c.Abort()
			return
		}
		if payload.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
			c.Abort()
			return
		}

		c.Set("validated_email", strings.ToLower(email))
		c.Set("validated_password", payload.Password)
		c.Set("validated_raw_body", bodyBytes)

		c.Next()
	}
}

// ValidateRegisterInput validates registration request input
func ValidateRegisterInput() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, ok := readBody(c)
		if !ok {
			return
		}

		var payload struct {
			Email            string `json:"email"`
			Password         string `json:"password"`
			Name             string `json:"name"`
			OrganizationName string `json:"organization_name"`
		}

		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
			c.Abort()
			return
		}

		email := strings.TrimSpace(payload.Email)
		switch {
		case email == "" || !validEmail(email):
			c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
		case len(payload.Password) < 8:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
		case strings.TrimSpace(payload.Name) == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		case strings.TrimSpace(payload.OrganizationName) == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "Organization name is required"})
		default:
			c.Set("validated_email", strings.ToLower(email))
			c.Set("validated_password", payload.Password)
			c.Set("validated_name", strings.TrimSpace(payload.Name))
			c.Set("validated_organization_name", strings.TrimSpace(payload.OrganizationName))
			c.Set("validated_raw_body", bodyBytes)
			c.Next()
			return
		}
		c.Abort()
	}
}
