package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"expiry-reminders/internal/api"
	"expiry-reminders/internal/app"
	"expiry-reminders/internal/common/camunda"
	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/reminder"
	"expiry-reminders/internal/scheduler"

	der "expiry-reminders/internal/workers/reminders/dispatch-expiry-reminders"
	rti "expiry-reminders/internal/workers/reminders/register-tracked-item"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync() //nolint:errcheck
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting reminder worker...",
		zap.String("environment", cfg.App.Environment),
		zap.String("timezone", cfg.App.Timezone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, zapLog, cfg.App.Name)
	if err != nil {
		zapLog.Fatal("engine startup failed", zap.Error(err))
	}
	defer engine.Close()

	apiOpts := []api.Option{
		api.WithReadinessCheck("postgres", engine.Store.Ping),
		api.WithReadinessCheck("redis", engine.Redis.Ping),
	}
	if engine.Indexer != nil {
		apiOpts = append(apiOpts,
			api.WithSearcher(engine.Indexer),
			api.WithReadinessCheck("elasticsearch", engine.ES.Ping),
		)
	}

	// --- Zeebe job workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		zeebe, err := camunda.NewClient(cfg.Camunda)
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		defer zeebe.Close() //nolint:errcheck
		zapLog.Info("Zeebe client connected successfully")
		apiOpts = append(apiOpts, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))

		if config.IsWorkerEnabled(cfg, der.TaskType) {
			wc := config.GetWorkerConfig(cfg, der.TaskType)
			handler := der.NewHandler(der.LoadConfig(wc), engine.Runner, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), der.TaskType, wc, handler.Handle, log, engine.Obs))
		}
		if config.IsWorkerEnabled(cfg, rti.TaskType) {
			wc := config.GetWorkerConfig(cfg, rti.TaskType)
			handler := rti.NewHandler(rti.LoadConfig(wc), engine.Store, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), rti.TaskType, wc, handler.Handle, log, engine.Obs))
		}
	}

	// --- In-process daily schedule ---
	var daily *scheduler.Daily
	if cfg.Reminders.Schedule.Enabled {
		daily = scheduler.NewDaily(
			cfg.Reminders.Schedule.Hour,
			cfg.Reminders.Schedule.Minute,
			cfg.Location(),
			func(ctx context.Context) error {
				_, err := engine.Runner.Run(ctx, reminder.RunOptions{})
				return err
			},
			log,
		)
		daily.Start(ctx, cfg.Reminders.Schedule.RunOnStart)
	}

	// --- HTTP: health, metrics, reporting, operator endpoints ---
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewServer(engine.Store, engine.Runner, log, apiOpts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	zapLog.Info("Reminder worker started",
		zap.Int("zeebeWorkers", len(workers)),
		zap.Bool("scheduleEnabled", daily != nil),
	)

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	if daily != nil {
		daily.Stop()
	}
	for _, w := range workers {
		w.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("HTTP server shutdown", zap.Error(err))
	}

	zapLog.Info("Reminder worker stopped")
}
