package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/metrics"
)

// JobRecorder receives per-job telemetry.
type JobRecorder interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// Worker is one open job worker subscription.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for taskType. The handler is wrapped with
// panic recovery and duration metrics.
func NewWorker(
	client zbc.Client,
	taskType string,
	cfg config.WorkerConfig,
	handler worker.JobHandler,
	log logger.Logger,
	recorder JobRecorder,
) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})

	wrapped := func(jc worker.JobClient, job entities.Job) {
		start := time.Now()
		status := "completed"
		defer func() {
			if r := recover(); r != nil {
				status = "panic"
				log.Error("job handler panicked", map[string]interface{}{
					"jobKey": job.Key,
					"panic":  fmt.Sprint(r),
				})
				_, _ = jc.NewFailJobCommand().JobKey(job.Key).Retries(job.Retries - 1).
					ErrorMessage(fmt.Sprintf("handler panic: %v", r)).Send(context.Background())
			}
			elapsed := time.Since(start)
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			if recorder != nil {
				recorder.RecordJobProcessed(context.Background(), status)
				recorder.RecordJobDuration(context.Background(), elapsed, status)
			}
		}()
		handler(jc, job)
	}

	step := client.NewJobWorker().
		JobType(taskType).
		Handler(wrapped).
		MaxJobsActive(max(cfg.MaxJobsActive, 1))
	if cfg.Timeout > 0 {
		step = step.Timeout(config.GetDuration(cfg.Timeout))
	}

	w := &Worker{
		worker:   step.Open(),
		logger:   log,
		taskType: taskType,
	}
	log.Info("worker started", map[string]interface{}{"maxJobsActive": cfg.MaxJobsActive})
	return w
}

func (w *Worker) Close() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// CompleteJob completes job with vars, retrying transient gateway failures.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, vars interface{}, retry *RetryConfig) error {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(vars)
	if err != nil {
		return fmt.Errorf("encode job variables: %w", err)
	}
	_, err = executeWithRetry(ctx, retry, func(ctx context.Context) (interface{}, error) {
		return cmd.Send(ctx)
	}, "complete-job")
	return err
}
