package utils

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentra-backend/internal/errors"
)

// SendErrorResponse writes the error envelope every handler uses.
// Server-side failures additionally go to Sentry.
func SendErrorResponse(c *gin.Context, statusCode int, appErr *errors.AppError) {
	if appErr == nil {
		appErr = &errors.AppError{Code: "UNKNOWN_ERROR", Message: "An unexpected error occurred"}
	}

	c.JSON(statusCode, gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	})

	if statusCode >= http.StatusInternalServerError {
		extras := map[string]interface{}{
			"status_code": statusCode,
			"error_code":  appErr.Code,
			"details":     appErr.Details,
		}
		if c != nil && c.FullPath() != "" {
			extras["route"] = c.FullPath()
		}
		CaptureSentryError(c, appErr.Err, fmt.Sprintf("SendErrorResponse:%s", appErr.Code), extras)
	}
}

// RespondAppError maps a service error to its HTTP status and sends it.
func RespondAppError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	SendErrorResponse(c, errors.HTTPStatus(appErr.Code), appErr)
}

// HandleError logs and reports a background error that has no request
// to answer.
func HandleError(err error, context string) {
	if err != nil {
		logrus.WithError(err).Error(context)
		CaptureSentryError(nil, err, context, nil)
	}
}

// GetClientIP resolves the caller's address behind proxies.
// X-Forwarded-For may carry a chain; the first hop is the client.
func GetClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return c.ClientIP()
}

// GetValidatedString returns a string the validation middleware stored
// on the context, or "" when absent.
func GetValidatedString(c *gin.Context, key string) string {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}
