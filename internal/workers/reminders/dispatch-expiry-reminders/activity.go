package dispatchexpiryreminders

import (
	"encoding/json"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/validation"
	"expiry-reminders/pkg/registry"
)

// Activity describes the task for the activity registry.
func Activity() registry.Activity {
	return registry.Activity{
		ID:          TaskType,
		DisplayName: "Dispatch Expiry Reminders",
		Description: "Evaluates every tracked item for the date and sends the reminders that fall due.",
		Category:    "reminders",
		TaskType:    TaskType,
		InputSchema: json.RawMessage(validation.RunRequestSchema),
		OutputVariables: []string{
			"reminderBatchId", "reminderDate", "reminderDryRun", "remindersEvaluated", "remindersDue",
			"remindersSent", "remindersFailed", "remindersSkipped", "misconfiguredItemIds", "missedItemIds",
		},
		ErrorCodes: []string{
			string(apperrors.ErrCodeInvalidInput),
			string(apperrors.ErrCodeQueryExecutionFailed),
			string(apperrors.ErrCodeQueryTimeout),
			string(apperrors.ErrCodeDatabaseInsertFailed),
			string(apperrors.ErrCodeInternal),
		},
		Timeout: "5m",
		Retries: apperrors.GetRetryCount(apperrors.ErrCodeQueryExecutionFailed),
		Tags:    []string{"batch", "notifications"},
	}
}
