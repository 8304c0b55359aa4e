package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentra-backend/internal/cache"
	"sentra-backend/internal/database"
)

var (
	startTime   = time.Now()
	cacheClient *cache.Client
)

// SetCache wires the cache client checked by readiness probes.
func SetCache(c *cache.Client) {
	cacheClient = c
}

// HandleHealthCheck returns basic health status
func HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "sentra-api",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// HandleSystemReady returns readiness status
func HandleSystemReady(c *gin.Context) {
	dbReady := false
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbReady = true
			}
		}
	}

	cacheReady := cacheClient.Ping(c.Request.Context())

	status := http.StatusOK
	if !dbReady || !cacheReady {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ready":    dbReady && cacheReady,
		"database": dbReady,
		"cache":    cacheReady,
		"service":  "sentra-api",
	})
}
