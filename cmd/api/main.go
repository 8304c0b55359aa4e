package main

import (
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentra-backend/internal/auth"
	"sentra-backend/internal/bootstrap"
	"sentra-backend/internal/brands"
	"sentra-backend/internal/cache"
	"sentra-backend/internal/clients"
	"sentra-backend/internal/database"
	"sentra-backend/internal/email"
	"sentra-backend/internal/health"
	"sentra-backend/internal/invoices"
	"sentra-backend/internal/leads"
	"sentra-backend/internal/metrics"
	"sentra-backend/internal/middleware"
	"sentra-backend/internal/models"
	"sentra-backend/internal/organization"
	"sentra-backend/internal/payments"
	"sentra-backend/internal/sales"
	"sentra-backend/pkg/utils"
)

func main() {
	if os.Getenv("LOG_FORMAT") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.Info("🚀 Starting Sentra API Server")
	startedAt := time.Now()

	// Initialize Sentry before other subsystems so we capture initialization errors
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		host, _ := os.Hostname()
		opts := sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
			Release:     os.Getenv("SENTRY_RELEASE"),
		}
		if host != "" {
			opts.ServerName = host
		}

		if err := sentry.Init(opts); err != nil {
			logrus.WithError(err).Warn("Sentry initialization failed")
		} else {
			sentry.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("service", "sentra-backend")
			})
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}

	if err := database.RunMigrations(); err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}
	logrus.Info("✅ Database migrations completed")
	bootstrap.Run(database.DB)

	// Initialize auth components
	auth.InitJWT()

	// Optional Redis cache for list endpoints
	cacheClient, err := cache.New()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to Redis")
	}
	if cacheClient != nil {
		logrus.Info("✅ Redis cache connected")
		defer cacheClient.Close()
	}
	leads.SetCache(cacheClient)
	clients.SetCache(cacheClient)
	brands.SetCache(cacheClient)
	sales.SetCache(cacheClient)
	invoices.SetCache(cacheClient)
	payments.SetCache(cacheClient)
	health.SetCache(cacheClient)

	// Outbound email
	mailer := email.NewMailer()
	auth.SetMailer(mailer)
	organization.SetMailer(mailer)
	invoices.SetMailer(mailer)

	// Payment gateway
	gateway := payments.NewClient()
	sales.SetGateway(gateway)
	invoices.SetGateway(gateway)

	// Start background tasks
	middleware.StartCleanup()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			auth.CleanupTokenBlacklist(database.DB)
		}
	}()

	// Set up router
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}))
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if os.Getenv("ENABLE_SENTRY_DEBUG_ENDPOINT") == "true" {
		router.GET("/internal/sentry-test", func(c *gin.Context) {
			const msg = "Sentry debug endpoint hit"
			utils.CaptureSentryError(c, nil, msg, nil)
			_ = sentry.Flush(2 * time.Second)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// CORS - MUST be first to handle OPTIONS requests
	router.Use(cors.New(middleware.SecureCORSConfig()))

	// Security middleware - after CORS
	securityConfig := middleware.GetSecurityConfig()
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(securityConfig.MaxRequestSize))
	router.Use(middleware.SecurityMonitoring())
	router.Use(middleware.GeneralRateLimit())
	router.Use(middleware.InputSanitization())
	router.Use(middleware.CSRFProtection(auth.AuthCookieName, auth.CSRFCookieName))
	router.Use(metrics.Middleware())

	// Health + telemetry endpoints
	router.GET("/health", health.HandleHealthCheck)
	router.GET("/ready", health.HandleSystemReady)
	router.GET("/metrics", metrics.Handler())

	// API routes
	api := router.Group("/api/v1")
	{
		// Public auth routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", middleware.RegisterRateLimit(), middleware.ValidateRegisterInput(), auth.HandleRegister)
			authRoutes.POST("/login", middleware.LoginRateLimit(), middleware.ValidateLoginInput(), auth.HandleLogin)
			authRoutes.POST("/refresh", auth.HandleRefreshToken)
			authRoutes.POST("/logout", auth.HandleLogout)
			authRoutes.POST("/forgot-password", middleware.PasswordResetRateLimit(), auth.HandleRequestPasswordReset)
			authRoutes.POST("/reset-password", middleware.PasswordResetRateLimit(), auth.HandleResetPassword)
		}

		// Invitation lookup and acceptance (invitee has no account yet)
		api.GET("/invitations/:token", organization.HandleGetInvitation)
		api.POST("/invitations/accept", organization.HandleAcceptInvitation)

		// Payment gateway webhook (authenticated by HMAC signature)
		api.POST("/webhooks/authorize-net", payments.HandleWebhook)

		api.GET("/health", health.HandleHealthCheck)

		// Protected routes
		protected := api.Group("")
		protected.Use(auth.Middleware(database.DB))
		{
			// Profile management
			protected.GET("/profile", auth.HandleGetProfile)
			protected.PUT("/profile", auth.HandleUpdateProfile)
			protected.PUT("/profile/password", auth.HandleChangePassword)

			// System telemetry
			protected.GET("/metrics", metrics.HandleSystemMetrics)

			// Organization + membership
			orgRoutes := protected.Group("/organization")
			{
				orgRoutes.GET("", organization.HandleGetOrganization)
				orgRoutes.PUT("", auth.RequireRole(models.RoleAdmin), organization.HandleUpdateOrganization)
				orgRoutes.GET("/members", organization.HandleGetMembers)
				orgRoutes.PUT("/members/:id/role", auth.RequireRole(models.RoleAdmin), organization.HandleUpdateMemberRole)
				orgRoutes.DELETE("/members/:id", auth.RequireRole(models.RoleAdmin), organization.HandleRemoveMember)
				orgRoutes.GET("/invitations", auth.RequireRole(models.RoleAdmin), organization.HandleGetInvitations)
				orgRoutes.POST("/invitations", auth.RequireRole(models.RoleAdmin), organization.HandleInviteMember)
				orgRoutes.DELETE("/invitations/:id", auth.RequireRole(models.RoleAdmin), organization.HandleCancelInvitation)
			}

			// Brands
			protected.GET("/brands", brands.HandleListBrands)
			protected.POST("/brands", auth.RequireRole(models.RoleSalesManager), brands.HandleCreateBrand)
			protected.GET("/brands/:id", brands.HandleGetBrand)
			protected.PUT("/brands/:id", auth.RequireRole(models.RoleSalesManager), brands.HandleUpdateBrand)
			protected.DELETE("/brands/:id", auth.RequireRole(models.RoleSalesManager), brands.HandleDeleteBrand)

			// Clients
			protected.GET("/clients", clients.HandleListClients)
			protected.POST("/clients", clients.HandleCreateClient)
			protected.GET("/clients/:id", clients.HandleGetClient)
			protected.PUT("/clients/:id", clients.HandleUpdateClient)
			protected.DELETE("/clients/:id", auth.RequireRole(models.RoleSalesManager), clients.HandleDeleteClient)

			// Leads
			leadRoutes := protected.Group("/leads")
			{
				leadRoutes.GET("", leads.HandleListLeads)
				leadRoutes.POST("", leads.HandleCreateLead)
				leadRoutes.GET("/:id", leads.HandleGetLead)
				leadRoutes.PUT("/:id", leads.HandleUpdateLead)
				leadRoutes.DELETE("/:id", auth.RequireRole(models.RoleSalesManager), leads.HandleDeleteLead)
				leadRoutes.PUT("/:id/status", leads.HandleChangeStatus)
				leadRoutes.PUT("/:id/assign", leads.HandleAssignLead)
				leadRoutes.POST("/:id/notes", leads.HandleAddNote)
				leadRoutes.GET("/:id/activities", leads.HandleListActivities)
				leadRoutes.POST("/:id/convert", leads.HandleConvertLead)
			}

			// Sales + recurring billing
			saleRoutes := protected.Group("/sales")
			{
				saleRoutes.GET("", sales.HandleListSales)
				saleRoutes.POST("", sales.HandleCreateSale)
				saleRoutes.GET("/:id", sales.HandleGetSale)
				saleRoutes.PUT("/:id", sales.HandleUpdateSale)
				saleRoutes.DELETE("/:id", auth.RequireRole(models.RoleSalesManager), sales.HandleDeleteSale)
				saleRoutes.PUT("/:id/payment-profiles", sales.HandleSetPaymentProfiles)
				saleRoutes.POST("/:id/payment-profiles", sales.HandleSetupPaymentProfiles)
				saleRoutes.POST("/:id/charge", sales.HandleChargeSale)
				saleRoutes.POST("/:id/subscribe", sales.HandleSubscribeSale)
				saleRoutes.GET("/:id/subscription", sales.HandleGetSubscriptionStatus)
				saleRoutes.POST("/:id/cancel-subscription", sales.HandleCancelSubscription)
				saleRoutes.GET("/:id/transactions", sales.HandleListSaleTransactions)
			}

			// Invoices
			invoiceRoutes := protected.Group("/invoices")
			{
				invoiceRoutes.GET("", invoices.HandleListInvoices)
				invoiceRoutes.POST("", invoices.HandleCreateInvoice)
				invoiceRoutes.GET("/:id", invoices.HandleGetInvoice)
				invoiceRoutes.PUT("/:id", invoices.HandleUpdateInvoice)
				invoiceRoutes.DELETE("/:id", auth.RequireRole(models.RoleSalesManager), invoices.HandleDeleteInvoice)
				invoiceRoutes.POST("/:id/pay", invoices.HandlePayInvoice)
				invoiceRoutes.GET("/:id/transactions", invoices.HandleListInvoiceTransactions)
				invoiceRoutes.POST("/mark-overdue", auth.RequireRole(models.RoleSalesManager), invoices.HandleMarkOverdue)
			}
		}
	}

	// Status metrics endpoint (outside API group)
	router.GET("/status/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uptime":   time.Since(startedAt).Seconds(),
			"version":  "1.0.0",
			"status":   "healthy",
			"started":  startedAt,
			"database": database.DB != nil,
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logrus.Infof("✅ Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
}
