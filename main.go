package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/cafe-orders/config"
	"github.com/yeremiapane/cafe-orders/database"
	"github.com/yeremiapane/cafe-orders/kds"
	"github.com/yeremiapane/cafe-orders/messaging"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/router"
	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

func main() {
	utils.InitLogger()

	cfg, err := config.Load("")
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load config: %v", err)
	}
	if err := utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		utils.ErrorLogger.Fatalf("Invalid log level: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	utils.SetJWTSecret(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	prepareDatabase(db, cfg)

	// Dashboard websocket selalu aktif, RabbitMQ opsional
	hub := kds.NewHub(0)
	notifiers := services.Notifiers{hub}
	if cfg.RabbitMQ.Enabled {
		publisher, err := messaging.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.BufferSize)
		if err != nil {
			utils.ErrorLogger.WithError(err).Error("RabbitMQ unavailable, continuing with websocket notifications only")
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
			utils.InfoLogger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Publishing order events to RabbitMQ")
		}
	}

	gateway := services.NewRazorpayService(services.RazorpayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Currency:  cfg.Gateway.Currency,
		Timeout:   cfg.Gateway.Timeout,
	})
	if err := gateway.ValidateConfig(); err != nil {
		utils.ErrorLogger.WithError(err).Warn("Online payments will fail until the gateway is configured")
	}

	repo := repository.NewOrderRepository(db)
	orders := services.NewOrderService(repo, repository.NewCatalogRepository(db), gateway, notifiers, services.OrderConfig{
		CodePrefix: cfg.Orders.CodePrefix,
		MaxRetries: cfg.Orders.MaxRetries,
	})
	reconciler := services.NewPaymentReconciler(repo, notifiers, services.NewPaymentMonitor(), services.WebhookConfig{
		Secret:        cfg.Gateway.WebhookSecret,
		AllowUnsigned: cfg.Gateway.AllowUnsignedWebhooks,
		MaxRetries:    cfg.Orders.MaxRetries,
	})

	r := router.SetupRouter(router.Dependencies{
		DB:             db,
		Orders:         orders,
		Reconciler:     reconciler,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		RateLimit:      cfg.Server.RateLimitPerSecond,
		RateBurst:      cfg.Server.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.InfoLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.WithError(err).Error("Server forced to shutdown")
	}
}

func prepareDatabase(db *gorm.DB, cfg *config.Config) {
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
		}
		utils.InfoLogger.Println("AutoMigrate completed.")
	}

	if !cfg.Database.Seed {
		return
	}
	err := database.SeedUsers(db, []database.SeedUser{
		{Username: cfg.Auth.OwnerUsername, Password: cfg.Auth.OwnerPassword, Role: models.RoleOwner},
		{Username: cfg.Auth.StaffUsername, Password: cfg.Auth.StaffPassword, Role: models.RoleStaff},
	})
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed users: %v", err)
	}
	if err := database.SeedCatalog(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed catalog: %v", err)
	}
}
