package registertrackeditem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"expiry-reminders/internal/common/camunda"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/metrics"
	"expiry-reminders/internal/common/validation"
	"expiry-reminders/internal/models"
)

const (
	TaskType = "register-tracked-item"
)

// registrationFields are the variables read from the process scope; any
// other process variable is ignored.
var registrationFields = []string{
	"title", "referenceNumber", "expiryDate", "departmentId", "reminderRuleId", "categoryId", "recipientIds",
}

type Store interface {
	CreateItem(ctx context.Context, in models.NewItem) (int64, error)
}

type Handler struct {
	config       *Config
	store        Store
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, store Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		store:        store,
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
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func parseInput(variables string) (*Input, error) {
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}

	subset := make(map[string]interface{}, len(registrationFields))
	for _, key := range registrationFields {
		if v, ok := vars[key]; ok && v != nil {
			subset[key] = v
		}
	}

	result, err := validation.ValidateInput(subset, validation.ItemRegistrationSchema)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(subset)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	expiry, err := models.ParseDate(input.ExpiryDate)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("expiryDate: %v", err))
	}

	id, err := h.store.CreateItem(ctx, models.NewItem{
		Title:           strings.TrimSpace(input.Title),
		ReferenceNumber: strings.TrimSpace(input.ReferenceNumber),
		ExpiryDate:      expiry,
		DepartmentID:    input.DepartmentID,
		ReminderRuleID:  input.ReminderRuleID,
		CategoryID:      input.CategoryID,
		RecipientIDs:    input.RecipientIDs,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("tracked item registered", map[string]interface{}{
		"itemId":     id,
		"expiryDate": input.ExpiryDate,
		"recipients": len(input.RecipientIDs),
	})
	return &Output{
		ItemID:         id,
		WorkflowStatus: string(models.StatusActive),
		ExpiryDate:     expiry.Format(models.DateLayout),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
