package registertrackeditem

import (
	"encoding/json"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/validation"
	"expiry-reminders/pkg/registry"
)

func Activity() registry.Activity {
	return registry.Activity{
		ID:              TaskType,
		DisplayName:     "Register Tracked Item",
		Description:     "Stores a contract or transaction with its reminder rule and linked recipients.",
		Category:        "reminders",
		TaskType:        TaskType,
		InputSchema:     json.RawMessage(validation.ItemRegistrationSchema),
		OutputVariables: []string{"itemId", "workflowStatus", "expiryDate"},
		ErrorCodes: []string{
			string(apperrors.ErrCodeInvalidInput),
			string(apperrors.ErrCodeReferenceNotFound),
			string(apperrors.ErrCodeDatabaseInsertFailed),
			string(apperrors.ErrCodeQueryExecutionFailed),
		},
		Timeout: "10s",
		Retries: apperrors.GetRetryCount(apperrors.ErrCodeDatabaseInsertFailed),
		Tags:    []string{"registration"},
	}
}
