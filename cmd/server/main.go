package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"peer-chat-app/backend/internal/models"
	"peer-chat-app/backend/pkg/config"
	"peer-chat-app/backend/pkg/di"
	"peer-chat-app/backend/pkg/logger"
	approuter "peer-chat-app/backend/pkg/router"
	"peer-chat-app/backend/pkg/secrets"
	"peer-chat-app/backend/shared/observability"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := config.New()

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.JSON = cfg.Logging.Format != "text"

	appLogger := logger.New(logCfg)
	logger.SetGlobal(appLogger)

	if err := secrets.Init(appLogger); err != nil {
		appLogger.Warn("Secrets manager unavailable, falling back to environment", "error", err.Error())
	}

	jwtSecret := secrets.GetSecretWithDefault(context.Background(), "jwt_secret", cfg.JWT.Secret)

	var db *gorm.DB
	if cfg.Features.EnableDurableHistory {
		var err error
		db, err = config.NewDB()
		if err != nil {
			appLogger.Error("Failed to connect to database", "error", err.Error())
			os.Exit(1)
		}
		if err := db.AutoMigrate(&models.User{}, &models.Message{}); err != nil {
			appLogger.Error("Failed to run migrations", "error", err.Error())
			os.Exit(1)
		}
	} else {
		appLogger.Info("Durable history disabled, conversations are in-memory only")
	}

	shutdownTracing := observability.SetupTracing("peer-chat-backend")
	defer shutdownTracing()
	observability.SetupMeterProvider()

	container, err := di.New(db, &di.Config{
		LoggerConfig:   logCfg,
		JWTSecret:      jwtSecret,
		JWTExpiry:      cfg.JWT.Expiry,
		RedisAddr:      cfg.Redis.Addr,
		PresenceTTL:    cfg.Redis.PresenceTTL,
		DurableHistory: cfg.Features.EnableDurableHistory,
		EnablePresence: cfg.Features.EnablePresence,
	})
	if err != nil {
		appLogger.Error("Failed to build application container", "error", err.Error())
		os.Exit(1)
	}

	r := approuter.New(container)
	r.SetupRoutes()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		appLogger.Info("Server listening", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Graceful shutdown failed", "error", err.Error())
	}

	// Disconnect websocket clients after the HTTP listener stops accepting
	r.Hub.Stop()
	r.Checker.Stop()

	if container.Redis != nil {
		if err := container.Redis.Close(); err != nil {
			appLogger.Warn("Error closing redis connection", "error", err.Error())
		}
	}

	appLogger.Info("Server shutdown complete")
}
