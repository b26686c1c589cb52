package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/config"
	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/handlers"
	"github.com/guidelink/marketplace-backend/internal/middleware"
	"github.com/guidelink/marketplace-backend/internal/services"
	"github.com/guidelink/marketplace-backend/pkg/blobstore"
	"github.com/guidelink/marketplace-backend/pkg/gateway"
	"github.com/guidelink/marketplace-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting GuideLink Marketplace Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize repositories
	bookingRepo := database.NewBookingRepository(db)
	ledgerRepo := database.NewLedgerRepository(db)
	eventRepo := database.NewPaymentEventRepository(db)
	refundRepo := database.NewRefundEventRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Initialize external collaborators
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	gatewayClient := gateway.NewClient(gateway.Config{
		Environment:   cfg.Gateway.Environment,
		BaseURL:       cfg.Gateway.BaseURL,
		MerchantKey:   cfg.Gateway.MerchantKey,
		MerchantToken: cfg.Gateway.MerchantToken,
		CallbackURL:   cfg.Gateway.CallbackURL,
	})

	proofStore, err := blobstore.NewMinioStore(blobstore.Config{
		Endpoint:  cfg.BlobStore.Endpoint,
		AccessKey: cfg.BlobStore.AccessKey,
		SecretKey: cfg.BlobStore.SecretKey,
		UseSSL:    cfg.BlobStore.UseSSL,
		Bucket:    cfg.BlobStore.Bucket,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize proof store: %v", err)
	}

	// Initialize services
	logger.Info("Initializing services...")
	conflictChecker := services.NewConflictChecker(bookingRepo, logger)
	ledgerService := services.NewLedgerService(db, ledgerRepo, eventRepo, auditRepo, logger)
	bookingService := services.NewBookingService(db, bookingRepo, ledgerRepo, conflictChecker, logger)
	intentService := services.NewPaymentIntentService(
		db, bookingRepo, eventRepo, auditRepo, ledgerService,
		gatewayClient, cfg.Gateway.WebhookSecret, logger,
	)
	manualService := services.NewManualPaymentService(
		db, bookingRepo, eventRepo, auditRepo, ledgerService,
		proofStore, cfg.BlobStore.UploadTimeout, logger,
	)
	refundService := services.NewRefundService(
		db, refundRepo, eventRepo, auditRepo, ledgerService, gatewayClient, logger,
	)
	reconciliationService := services.NewReconciliationService(eventRepo, auditRepo, cfg.Reconcile, logger)

	if err := reconciliationService.Start(); err != nil {
		logger.Fatalf("Failed to start reconciliation service: %v", err)
	}

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, ledgerService, eventRepo, refundRepo, logger)
	paymentHandler := handlers.NewPaymentHandler(intentService, manualService, bookingService, logger)
	refundHandler := handlers.NewRefundHandler(refundService, logger)

	// Set up router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Gateway callback is unauthenticated; trust is the HMAC signature
		v1.POST("/payments/callback", paymentHandler.Callback)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings := authed.Group("/bookings")
			{
				bookings.POST("", middleware.RequireRole(middleware.RoleTraveler), bookingHandler.CreateBooking)
				bookings.GET("", bookingHandler.ListBookings)
				bookings.GET("/:id", bookingHandler.GetBooking)
				bookings.GET("/:id/ledger", bookingHandler.GetLedger)
				bookings.POST("/:id/confirm", middleware.RequireRole(middleware.RoleGuide), bookingHandler.ConfirmBooking)
				bookings.POST("/:id/complete", middleware.RequireRole(middleware.RoleGuide), bookingHandler.CompleteBooking)
				bookings.POST("/:id/cancel", middleware.RequireRole(middleware.RoleTraveler, middleware.RoleAdmin), bookingHandler.CancelBooking)
			}

			payments := authed.Group("/payments")
			{
				payments.POST("/intent", middleware.RequireRole(middleware.RoleTraveler), paymentHandler.CreateIntent)
				payments.POST("/cash", middleware.RequireRole(middleware.RoleGuide, middleware.RoleAdmin), paymentHandler.SubmitCash)
			}

			authed.POST("/refunds", middleware.RequireRole(middleware.RoleAdmin), refundHandler.IssueRefund)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	reconciliationService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
