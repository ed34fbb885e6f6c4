// Package main runs the alumni events HTTP server with the admin live feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alumni-connect/backend/config"
	"github.com/alumni-connect/backend/internal/auth"
	"github.com/alumni-connect/backend/internal/dashboard"
	"github.com/alumni-connect/backend/internal/donations"
	"github.com/alumni-connect/backend/internal/emaillogs"
	"github.com/alumni-connect/backend/internal/events"
	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/gateway"
	"github.com/alumni-connect/backend/internal/ledger"
	"github.com/alumni-connect/backend/internal/middleware"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/notify"
	"github.com/alumni-connect/backend/internal/payments"
	"github.com/alumni-connect/backend/internal/reconciliation"
	"github.com/alumni-connect/backend/internal/registrations"
	"github.com/alumni-connect/backend/internal/students"
	"github.com/alumni-connect/backend/internal/tokens"
	"github.com/alumni-connect/backend/internal/uploads"
	"github.com/alumni-connect/backend/pkg/database"
	"github.com/alumni-connect/backend/pkg/queue"
	"github.com/alumni-connect/backend/pkg/redis"
	"github.com/alumni-connect/backend/pkg/response"
	"github.com/alumni-connect/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ReceiptsBucket:       cfg.AWS.ReceiptsBucket,
		PhotosBucket:         cfg.AWS.PhotosBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	gw := gateway.NewClient(gateway.Config{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout(),
	}, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := feed.NewHub(feed.NewRedisBroker(rdb.Client, logger), logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Repositories
	authRepo := auth.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	studentRepo := students.NewRepository(pool)
	orderRepo := ledger.NewOrderRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	tokenRepo := tokens.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	reconciliationRepo := reconciliation.NewRepository(pool, ledgerRepo)
	donationRepo := donations.NewRepository(pool)
	emailLogsRepo := emaillogs.NewRepository(pool)
	dashboardRepo := dashboard.NewRepository(pool)

	// Services
	registry := students.NewRegistry(studentRepo, logger)
	notifier := notify.NewService(emailLogsRepo, jobQueue, cfg.Server.PublicBaseURL, logger)
	paymentSvc := payments.NewService(gw, orderRepo, ledgerRepo, cfg.Payment.Currency, logger)
	issuer := tokens.NewIssuer(tokenRepo, ledgerRepo, logger)
	uploadSvc := uploads.NewService(rdb.Client, s3Client, cfg.Uploads.MaxReceiptBytes, logger)
	registrationSvc := registrations.NewService(registry, eventRepo, paymentSvc, issuer, notifier, hub, logger)
	reconciliationSvc := reconciliation.NewService(reconciliation.Deps{
		Store:    reconciliationRepo,
		Receipts: uploadSvc,
		Events:   eventRepo,
		Students: studentRepo,
		Tokens:   tokenRepo,
		Issuer:   issuer,
		Notifier: notifier,
		Pub:      hub,
		Currency: cfg.Payment.Currency,
	}, logger)
	donationSvc := donations.NewService(donationRepo, paymentSvc, notifier, hub, logger)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	eventHandler := events.NewHandler(eventRepo, logger)
	studentHandler := students.NewHandler(registry, studentRepo, s3Client, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, registrationRepo, logger)
	reconciliationHandler := reconciliation.NewHandler(reconciliationSvc, logger)
	tokenHandler := tokens.NewHandler(issuer, ledgerRepo, eventRepo, studentRepo, hub, cfg.Server.PublicBaseURL, logger)
	ledgerHandler := ledger.NewHandler(ledgerRepo, issuer, hub, logger)
	uploadHandler := uploads.NewHandler(uploadSvc, logger)
	donationHandler := donations.NewHandler(donationSvc, logger)
	dashboardHandler := dashboard.NewHandler(dashboardRepo, eventRepo, logger)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/login", authHandler.Login)

	// Public: events, registration and payment
	router.GET("/events", eventHandler.List(true))
	router.GET("/events/:id", eventHandler.GetByID)
	router.POST("/registrations", registrationHandler.Register)
	router.POST("/events/:id/orders", registrationHandler.CreateOrder)
	router.POST("/registrations/confirm", registrationHandler.Confirm)
	router.GET("/events/:id/registrations/:student_id", registrationHandler.Status)
	router.GET("/tokens/:id/receipt", tokenHandler.GetReceipt)
	router.GET("/tokens/:id/receipt/qr", tokenHandler.GetReceiptQR)
	router.GET("/tokens/:id/receipt/pdf", tokenHandler.GetReceiptPDF)

	// Public: donations
	router.GET("/donation-categories", donationHandler.ListCategories)
	router.POST("/donations/orders", donationHandler.CreateOrder)
	router.POST("/donations/confirm", donationHandler.Confirm)

	// Staff API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Volunteers at the door redeem tokens.
		api.POST("/admin/tokens/redeem", middleware.RequireRole(models.RoleAdmin, models.RoleVolunteer), tokenHandler.Redeem)

		// Live admin feed. Browsers pass the JWT as ?token= on the upgrade.
		api.GET("/ws/admin", middleware.RequireRole(models.RoleAdmin), feed.ServeWs(hub, feed.NewUpgrader(cfg.Server.CORSAllowedOrigins), logger))

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))

		admin.GET("/users", authHandler.List)
		admin.POST("/users", authHandler.CreateUser)

		admin.GET("/events", eventHandler.List(false))
		admin.POST("/events", eventHandler.Create)
		admin.PATCH("/events/:id", eventHandler.Update)
		admin.GET("/events/:id/summary", dashboardHandler.GetByEvent)
		admin.GET("/events/:id/emails", emailLogsHandler.ListByEvent)

		admin.GET("/students", studentHandler.Search)
		admin.GET("/students/:id", studentHandler.Get)
		admin.POST("/students/:id/photo", studentHandler.UploadPhoto)

		admin.POST("/uploads", uploadHandler.Issue)
		admin.POST("/uploads/:storage_id/complete", uploadHandler.Complete)

		admin.POST("/events/:id/reconciliations", reconciliationHandler.Reconcile)
		admin.GET("/events/:id/reconciliations", reconciliationHandler.List)
		admin.GET("/reconciliations/:id/receipt-url", reconciliationHandler.ReceiptURL)

		admin.GET("/transactions", ledgerHandler.List)
		admin.GET("/transactions/orphans", ledgerHandler.Orphans)
		admin.POST("/transactions/:id/token", ledgerHandler.IssueToken)

		admin.GET("/donation-categories", donationHandler.ListAllCategories)
		admin.POST("/donation-categories", donationHandler.CreateCategory)
		admin.PATCH("/donation-categories/:id", donationHandler.UpdateCategory)
		admin.GET("/donations", donationHandler.List)
		admin.GET("/donations/totals", donationHandler.Totals)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	hubCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
