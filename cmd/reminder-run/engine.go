package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"expiry-reminders/internal/app"
	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// withEngine builds the engine, runs fn and tears the engine down.
func withEngine(ctx context.Context, fn func(*app.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so table and JSON output on stdout stay clean.
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, "stderr")
	defer zapLog.Sync() //nolint:errcheck

	engine, err := app.New(ctx, cfg, zapLog, cfg.App.Name+"-cli")
	if err != nil {
		zapLog.Error("engine startup failed", zap.Error(err))
		return err
	}
	defer engine.Close()
	return fn(engine)
}

// parseDate accepts an empty string (today in the configured timezone) or
// an ISO-8601 calendar date.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}
