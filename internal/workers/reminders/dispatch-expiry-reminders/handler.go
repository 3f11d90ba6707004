package dispatchexpiryreminders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"expiry-reminders/internal/common/camunda"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/metrics"
	"expiry-reminders/internal/common/validation"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
)

const (
	TaskType = "dispatch-expiry-reminders"
)

type Runner interface {
	Run(ctx context.Context, opts reminder.RunOptions) (*reminder.Report, error)
}

type Handler struct {
	config       *Config
	runner       Runner
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, runner Runner, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		runner:       runner,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output, nil); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{"jobKey": job.Key, "batchId": output.BatchID})
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

// parseInput reads only the run variables out of the process scope.
func parseInput(variables string) (*Input, error) {
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}

	subset := map[string]interface{}{}
	for _, key := range []string{"date", "dryRun"} {
		if v, ok := vars[key]; ok && v != nil {
			subset[key] = v
		}
	}
	result, err := validation.ValidateInput(subset, validation.RunRequestSchema)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	input := &Input{}
	input.Date, _ = subset["date"].(string)
	input.DryRun, _ = subset["dryRun"].(bool)
	return input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	var date time.Time
	if input.Date != "" {
		d, err := models.ParseDate(input.Date)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("date: %v", err))
		}
		date = d
	}

	report, err := h.runner.Run(ctx, reminder.RunOptions{Date: date, DryRun: input.DryRun})
	if err != nil {
		return nil, err
	}

	return &Output{
		BatchID:       report.BatchID,
		Date:          report.Date,
		DryRun:        report.DryRun,
		Evaluated:     report.Evaluated,
		Due:           report.Due,
		Sent:          report.Sent,
		Failed:        report.Failed,
		Skipped:       report.Skipped,
		Misconfigured: report.Misconfigured,
		Missed:        report.Missed,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
