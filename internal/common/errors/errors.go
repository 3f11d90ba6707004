// Package errors provides the structured error taxonomy shared by the reminder
// engine, its job workers and the API.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration: the item or batch cannot be evaluated as stored.
	ErrCodeConfigurationInvalid ErrorCode = "REMINDER_CONFIGURATION_INVALID"
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeChannelNotConfigured ErrorCode = "CHANNEL_NOT_CONFIGURED"
	ErrCodeReferenceNotFound    ErrorCode = "REFERENCE_NOT_FOUND"
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"

	// Delivery: a channel adapter could not deliver a message.
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeChannelRateLimited     ErrorCode = "CHANNEL_RATE_LIMITED"

	// Data store: reads or writes against the relational backend failed.
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "DATABASE_QUERY_TIMEOUT"

	// Supporting infrastructure.
	ErrCodeLockUnavailable ErrorCode = "LOCK_UNAVAILABLE"
	ErrCodeIndexingFailed  ErrorCode = "LOG_INDEXING_FAILED"
	ErrCodeAlertFailed     ErrorCode = "OPERATOR_ALERT_FAILED"

	ErrCodeBusinessRule    ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewConfigurationError reports an item that cannot be evaluated, e.g. a
// missing reminder rule or department. The batch skips the item.
func NewConfigurationError(itemID int64, details string) *StandardError {
	se := newError(ErrCodeConfigurationInvalid, "Item reminder configuration is invalid", nil, false)
	se.Details = details
	return se.WithMetadata("itemId", itemID)
}

func NewTemplateNotFoundError(channel string) *StandardError {
	se := newError(ErrCodeTemplateNotFound, "No active template for channel", nil, false)
	se.Details = channel
	return se.WithMetadata("channel", channel)
}

func NewChannelNotConfiguredError(channel string) *StandardError {
	se := newError(ErrCodeChannelNotConfigured, "Channel adapter is not configured", nil, false)
	se.Details = channel
	return se.WithMetadata("channel", channel)
}

func NewReferenceNotFoundError(kind string, id int64) *StandardError {
	se := newError(ErrCodeReferenceNotFound, fmt.Sprintf("Referenced %s does not exist", kind), nil, false)
	se.Details = fmt.Sprintf("%s %d", kind, id)
	return se.WithMetadata(kind+"Id", id)
}

func NewInvalidInputError(details string) *StandardError {
	se := newError(ErrCodeInvalidInput, "Input validation failed", nil, false)
	se.Details = details
	return se
}

// NewDeliveryError wraps an adapter failure. retryable marks transient
// provider failures (rate limits, 5xx, network).
func NewDeliveryError(channel string, err error, retryable bool) *StandardError {
	se := newError(ErrCodeNotificationSendFailed, fmt.Sprintf("Delivery via %s failed", channel), err, retryable)
	return se.WithMetadata("channel", channel)
}

func NewRateLimitedError(channel string, err error) *StandardError {
	se := newError(ErrCodeChannelRateLimited, fmt.Sprintf("Channel %s rate limited", channel), err, true)
	return se.WithMetadata("channel", channel)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Failed to connect to database", err, true)
}

// NewDataStoreError wraps a failed read against the data store.
func NewDataStoreError(op string, err error) *StandardError {
	se := newError(ErrCodeQueryExecutionFailed, fmt.Sprintf("Data store operation '%s' failed", op), err, true)
	return se.WithMetadata("operation", op)
}

func NewDatabaseInsertFailedError(op string, err error) *StandardError {
	se := newError(ErrCodeDatabaseInsertFailed, fmt.Sprintf("Data store write '%s' failed", op), err, true)
	return se.WithMetadata("operation", op)
}

func NewQueryTimeoutError(op string, err error) *StandardError {
	se := newError(ErrCodeQueryTimeout, fmt.Sprintf("Data store operation '%s' timed out", op), err, true)
	return se.WithMetadata("operation", op)
}

func NewLockUnavailableError(key string, err error) *StandardError {
	se := newError(ErrCodeLockUnavailable, "Advisory lock backend unavailable", err, true)
	return se.WithMetadata("key", key)
}

func NewIndexingFailedError(index string, err error) *StandardError {
	se := newError(ErrCodeIndexingFailed, "Failed to index notification log entry", err, true)
	return se.WithMetadata("index", index)
}

func NewAlertFailedError(notifier string, err error) *StandardError {
	se := newError(ErrCodeAlertFailed, fmt.Sprintf("Operator alert via %s failed", notifier), err, true)
	return se.WithMetadata("notifier", notifier)
}

func NewBusinessRuleError(message, details string) *StandardError {
	se := newError(ErrCodeBusinessRule, message, nil, false)
	se.Details = details
	return se
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err, true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err, true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	se := newError(ErrCodeNotFound, fmt.Sprintf("Resource not found in %s", service), nil, false)
	se.Details = details
	return se
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the job retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeTimeout,
		ErrCodeLockUnavailable:
		return 2

	case ErrCodeNotificationSendFailed,
		ErrCodeChannelRateLimited:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// Error categories used by the batch runner to decide between skipping,
// logging and aborting.
const (
	CategoryConfiguration = "CONFIGURATION"
	CategoryDelivery      = "DELIVERY"
	CategoryDataStore     = "DATASTORE"
	CategoryValidation    = "VALIDATION"
	CategoryOther         = "OTHER"
)

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the taxonomy bucket of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeConfigurationInvalid, ErrCodeTemplateNotFound, ErrCodeChannelNotConfigured:
		return CategoryConfiguration
	case ErrCodeNotificationSendFailed, ErrCodeChannelRateLimited:
		return CategoryDelivery
	}

	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "DATABASE"):
		return CategoryDataStore
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "REFERENCE"):
		return CategoryValidation
	default:
		return CategoryOther
	}
}

// As extracts the StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func categoryOf(err error) string {
	se, ok := As(err)
	if !ok {
		return ""
	}
	return GetErrorCategory(se.Code)
}

func IsConfigurationError(err error) bool {
	return categoryOf(err) == CategoryConfiguration
}

func IsDeliveryError(err error) bool {
	return categoryOf(err) == CategoryDelivery
}

func IsDataStoreError(err error) bool {
	return categoryOf(err) == CategoryDataStore
}

func IsValidationError(err error) bool {
	return categoryOf(err) == CategoryValidation
}

// RetryAfter returns the wait a provider asked for before the next call, or
// zero when err carries no retryAfter metadata. The metadata is in seconds.
func RetryAfter(err error) time.Duration {
	se, ok := As(err)
	if !ok {
		return 0
	}
	switch v := se.Metadata["retryAfter"].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	se, ok := As(err)
	return ok && se.Retryable
}
