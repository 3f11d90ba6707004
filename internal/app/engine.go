// Package app assembles the reminder engine from configuration. Both the
// long-running service and the one-shot CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"expiry-reminders/internal/alert"
	"expiry-reminders/internal/channels/telegram"
	"expiry-reminders/internal/channels/whatsapp"
	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/common/database"
	commonhttp "expiry-reminders/internal/common/http"
	"expiry-reminders/internal/common/lock"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/observability"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
	"expiry-reminders/internal/reporting"
	"expiry-reminders/internal/storage/postgres"
)

// Engine holds the connected dependencies and the wired batch runner.
type Engine struct {
	Config  *config.Config
	Logger  logger.Logger
	Obs     *observability.Observability
	DB      *database.PostgresClient
	Redis   *database.RedisClient
	ES      *database.ElasticsearchClient
	Store   *postgres.Store
	Indexer *reporting.Indexer
	Runner  *reminder.Runner

	closers []func() error
}

// New connects to Postgres and Redis (and Elasticsearch when reporting is
// on), then wires the dispatcher and runner.
func New(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, serviceName string) (*Engine, error) {
	log := logger.NewZapAdapter(zapLog)
	e := &Engine{Config: cfg, Logger: log}

	e.Obs = observability.New(serviceName, observability.TracingOptions{
		Enabled:        cfg.Tracing.Enabled,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Environment:    cfg.App.Environment,
		Version:        cfg.App.Version,
	}, log)
	e.closers = append(e.closers, func() error { e.Obs.Shutdown(); return nil })

	err := database.ConnectWithRetry(ctx, func(ctx context.Context) error {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return err
		}
		e.DB = pg
		return nil
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, e.DB.Close)
	zapLog.Info("PostgreSQL connected successfully")

	e.Store = postgres.New(e.DB.DB)
	if cfg.Database.Postgres.EnsureSchema {
		if err := e.Store.EnsureSchema(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	e.Redis = database.NewRedis(cfg.Database.Redis)
	e.closers = append(e.closers, e.Redis.Close)
	err = database.ConnectWithRetry(ctx, e.Redis.Ping, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		e.Close()
		return nil, err
	}
	zapLog.Info("Redis connected successfully")

	if cfg.Reporting.Elasticsearch.Enabled {
		if err := e.connectReporting(ctx, zapLog); err != nil {
			e.Close()
			return nil, err
		}
	}

	alerter, err := alert.FromConfig(ctx, cfg.Alerts, log)
	if err != nil {
		e.Close()
		return nil, err
	}

	channels, fallback, rates := Channels(cfg.Channels, config.GetDuration(cfg.Reminders.SendTime))
	options := []reminder.DispatcherOption{reminder.WithLocker(lock.NewRedisLocker(e.Redis.Client))}
	if e.Indexer != nil {
		options = append(options, reminder.WithLogSink(e.Indexer))
	}
	dispatcher := reminder.NewDispatcher(e.Store, channels, DispatchOptions(cfg.Reminders, rates), log, options...)

	runnerOpts := []reminder.RunnerOption{
		reminder.WithLocation(cfg.Location()),
		reminder.WithRecorder(e.Obs),
	}
	if alerter != nil {
		runnerOpts = append(runnerOpts, reminder.WithAlerter(alerter))
	}
	e.Runner = reminder.NewRunner(e.Store, dispatcher, fallback, log, runnerOpts...)

	log.Info("reminder engine ready", map[string]interface{}{
		"channels": len(channels),
		"timezone": cfg.App.Timezone,
		"workers":  cfg.Reminders.Workers,
	})
	return e, nil
}

func (e *Engine) connectReporting(ctx context.Context, zapLog *zap.Logger) error {
	es, err := database.NewElasticsearch(e.Config.Database.Elasticsearch)
	if err != nil {
		return err
	}
	if err := database.ConnectWithRetry(ctx, es.Ping, 15, 2*time.Second, zapLog, "Elasticsearch connection"); err != nil {
		return err
	}
	zapLog.Info("Elasticsearch connected successfully")

	e.ES = es
	e.Indexer = reporting.NewIndexer(es.Client, e.Config.Reporting.Elasticsearch.Index, e.Logger)
	if err := e.Indexer.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Close releases every dependency in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.Logger.Warn("close failed", map[string]interface{}{"error": err})
		}
	}
	e.closers = nil
}

// Channels builds the enabled adapters, their fallback templates and their
// per-minute send budgets. A disabled channel gets no adapter, so its
// tuples are skipped rather than failed.
func Channels(cfg config.ChannelsConfig, sendTimeout time.Duration) ([]reminder.Channel, map[models.ChannelName]string, map[models.ChannelName]int) {
	var (
		channels []reminder.Channel
		fallback = make(map[models.ChannelName]string)
		rates    = make(map[models.ChannelName]int)
	)
	client := commonhttp.NewClient(sendTimeout)

	if cfg.WhatsApp.Enabled {
		channels = append(channels, whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.WhatsApp.APIBaseURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		}, client))
		fallback[models.ChannelWhatsApp] = cfg.WhatsApp.Template
		rates[models.ChannelWhatsApp] = cfg.WhatsApp.RatePerMinute
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, telegram.New(telegram.Config{
			BaseURL:  cfg.Telegram.APIBaseURL,
			BotToken: cfg.Telegram.BotToken,
		}, client))
		fallback[models.ChannelTelegram] = cfg.Telegram.Template
		rates[models.ChannelTelegram] = cfg.Telegram.RatePerMinute
	}
	return channels, fallback, rates
}

// DispatchOptions maps the reminder section of the config onto the
// dispatcher's tuning knobs.
func DispatchOptions(cfg config.ReminderConfig, rates map[models.ChannelName]int) reminder.DispatchOptions {
	return reminder.DispatchOptions{
		Workers:     cfg.Workers,
		LockTTL:     config.GetDuration(cfg.LockTTL),
		SendTimeout: config.GetDuration(cfg.SendTime),
		Retry: reminder.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   config.GetDuration(cfg.Retry.BaseDelay),
			MaxDelay:    config.GetDuration(cfg.Retry.MaxDelay),
		},
		ResendFailed:  cfg.ResendFailed,
		RatePerMinute: rates,
	}
}
