package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/rewear/internal/auth"
	"github.com/dukerupert/rewear/internal/cache"
	"github.com/dukerupert/rewear/internal/config"
	"github.com/dukerupert/rewear/internal/database"
	"github.com/dukerupert/rewear/internal/ledger"
	"github.com/dukerupert/rewear/internal/logging"
	"github.com/dukerupert/rewear/internal/server"
	"github.com/dukerupert/rewear/internal/store"
	"github.com/dukerupert/rewear/internal/upload"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.EphemeralSecret {
		slog.Warn("REWEAR_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := seedAdmin(context.Background(), store.NewUserStore(db), cfg); err != nil {
		slog.Error("failed to seed admin", "error", err)
		os.Exit(1)
	}

	storage, err := newStorage(cfg)
	if err != nil {
		slog.Error("failed to set up image storage", "error", err)
		os.Exit(1)
	}

	var catalogCache cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		cancel()
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		catalogCache = rc
		slog.Info("catalog cache enabled", "ttl", cfg.CacheTTL)
	}

	srv := server.New(db, server.Options{
		Storage: storage,
		Cache:   catalogCache,
		Tokens:  auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Ledger: ledger.Config{
			MaxRetries: cfg.LedgerMaxRetries,
			TxTimeout:  cfg.LedgerTxTimeout,
		},
		SignupPoints: cfg.SignupPoints,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("rewear starting", "addr", ":"+cfg.Port, "db", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// seedAdmin creates the configured admin account on first start.
func seedAdmin(ctx context.Context, users *store.UserStore, cfg *config.Config) error {
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	created, err := users.EnsureAdmin(ctx, store.NewUser{
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "User",
		Points:       cfg.AdminPoints,
	})
	if err != nil {
		return err
	}
	if created {
		slog.Info("admin account created", "email", cfg.AdminEmail)
	}
	return nil
}

func newStorage(cfg *config.Config) (upload.Storage, error) {
	if cfg.S3.Bucket != "" {
		slog.Info("storing images in s3", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return upload.NewS3(upload.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		}), nil
	}
	slog.Info("storing images on disk", "dir", cfg.UploadDir)
	return upload.NewDisk(cfg.UploadDir)
}
