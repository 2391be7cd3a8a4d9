package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-emergency-alerts/internal/alerting"
	"github.com/mr1hm/go-emergency-alerts/internal/api"
	"github.com/mr1hm/go-emergency-alerts/internal/cache"
	"github.com/mr1hm/go-emergency-alerts/internal/channel"
	"github.com/mr1hm/go-emergency-alerts/internal/config"
	"github.com/mr1hm/go-emergency-alerts/internal/ingestion"
	"github.com/mr1hm/go-emergency-alerts/internal/logging"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
	"github.com/mr1hm/go-emergency-alerts/internal/retention"
	"github.com/mr1hm/go-emergency-alerts/internal/rules"
	"github.com/mr1hm/go-emergency-alerts/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, "alert-engine")

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	loc, err := cfg.Location()
	if err != nil {
		logging.Fatalf("Invalid timezone: %v", err)
	}

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Settings are read once per admitted rule; cache them in front of SQLite.
	var backend cache.Backend = cache.NewMemoryBackend()
	if cfg.Cache.RedisAddr != "" {
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			logging.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		backend = cache.NewRedisBackend(client, "alert-engine:")
		slog.Info("settings cache using redis", "addr", cfg.Cache.RedisAddr)
	}
	store := cache.NewStore(db, backend, cfg.Cache.SettingsTTL, cfg.Cache.StaleTTL)

	if cfg.Alerting.RulesFile != "" {
		f, err := rules.Load(cfg.Alerting.RulesFile)
		if err != nil {
			logging.Fatalf("Failed to load rules: %v", err)
		}
		if err := rules.Sync(ctx, db, f, store); err != nil {
			logging.Fatalf("Failed to sync rules: %v", err)
		}
		if cfg.Alerting.WatchRules {
			go func() {
				err := rules.Watch(ctx, cfg.Alerting.RulesFile, func(f *rules.File) {
					if err := rules.Sync(ctx, db, f, store); err != nil {
						slog.Error("rules sync failed", "error", err)
					}
				})
				if err != nil {
					slog.Error("rules watcher stopped", "error", err)
				}
			}()
		}
	}

	adapters := channel.NewRegistry(
		emailAdapter(cfg),
		smsAdapter(cfg),
		channel.NewWebhookAdapter(cfg.Alerting.AdapterTimeout),
	)

	broadcaster := stream.NewBroadcaster()

	engine := alerting.NewEngine(store, adapters, alerting.Options{
		Location:       loc,
		AdapterTimeout: cfg.Alerting.AdapterTimeout,
		OnDelivery:     broadcaster.Publish,
	})

	mgr := ingestion.NewManager(cfg, db, engine)
	mgr.Start(ctx)

	pruner, err := retention.NewPruner(db, cfg.Retention.Deliveries, cfg.Retention.Schedule, loc)
	if err != nil {
		logging.Fatalf("Failed to set up retention: %v", err)
	}
	pruner.Start()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s per client IP

	handler := api.NewHandler(engine, db, stream.NewHandler(broadcaster))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	pruner.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func emailAdapter(cfg *config.Config) channel.Adapter {
	if !cfg.Email.Enabled() {
		slog.Warn("SMTP not configured, email alerts will only be logged")
		return channel.NewLogAdapter(models.MethodEmail)
	}
	return channel.NewEmailAdapter(channel.EmailConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		UseTLS:   cfg.Email.UseTLS,
	})
}

func smsAdapter(cfg *config.Config) channel.Adapter {
	if !cfg.SMS.Enabled() {
		slog.Warn("SMS gateway not configured, SMS alerts will only be logged")
		return channel.NewLogAdapter(models.MethodSMS)
	}
	return channel.NewSMSAdapter(channel.SMSConfig{
		GatewayURL: cfg.SMS.GatewayURL,
		Token:      cfg.SMS.Token,
		From:       cfg.SMS.From,
	}, cfg.Alerting.AdapterTimeout)
}
