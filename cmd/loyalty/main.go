package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/gemloyalty/internal/backup"
	"github.com/dukerupert/gemloyalty/internal/config"
	"github.com/dukerupert/gemloyalty/internal/database"
	"github.com/dukerupert/gemloyalty/internal/logging"
	"github.com/dukerupert/gemloyalty/internal/server"
)

func main() {
	restoreKey := flag.String("restore", "", "download and decrypt the named backup object to LOYALTY_DB_PATH, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if *restoreKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		m := backup.NewManager(cfg.Backup, nil, logger.With("component", "backup"))
		if err := m.Fetch(ctx, *restoreKey, cfg.DBPath); err != nil {
			logger.Error("restore failed", "key", *restoreKey, "error", err)
			os.Exit(1)
		}
		return
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Refresher().Start(); err != nil {
		logger.Error("failed to start analytics refresher", "error", err)
		os.Exit(1)
	}
	defer srv.Refresher().Stop()

	if err := srv.Backups().Start(); err != nil {
		logger.Error("failed to start backups", "error", err)
		os.Exit(1)
	}
	defer srv.Backups().Stop()

	// Drop idle rate limit buckets periodically
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.CleanupLimiters()
			case <-cleanupDone:
				return
			}
		}
	}()
	defer close(cleanupDone)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("loyalty ledger listening",
			"addr", httpServer.Addr,
			"db", cfg.DBPath,
			"survey_points", cfg.Ledger.SurveyPoints,
			"referral_points", cfg.Ledger.ReferralPoints,
			"profile_bonus", cfg.Ledger.ProfileBonus,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
