// Package validation checks inbound JSON payloads against JSON schemas
// before they are decoded into domain types.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

// ItemRegistrationSchema describes the payload that registers a tracked item.
const ItemRegistrationSchema = `{
  "type": "object",
  "required": ["title", "expiryDate", "departmentId", "reminderRuleId"],
  "additionalProperties": false,
  "properties": {
    "title":           {"type": "string", "minLength": 1, "maxLength": 255},
    "referenceNumber": {"type": "string", "maxLength": 100},
    "expiryDate":      {"type": "string", "format": "date"},
    "departmentId":    {"type": "integer", "minimum": 1},
    "reminderRuleId":  {"type": "integer", "minimum": 1},
    "categoryId":      {"type": ["integer", "null"], "minimum": 1},
    "recipientIds": {
      "type": "array",
      "items": {"type": "integer", "minimum": 1},
      "uniqueItems": true
    }
  }
}`

// RunRequestSchema describes the variables of a manual batch run.
const RunRequestSchema = `{
  "type": "object",
  "properties": {
    "date":   {"type": "string", "format": "date"},
    "dryRun": {"type": "boolean"}
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	schemaMu sync.Mutex
	compiled = map[string]*gojsonschema.Schema{}
)

func load(schemaJSON string) (*gojsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := compiled[schemaJSON]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	compiled[schemaJSON] = s
	return s, nil
}

// Validate checks a raw JSON document against schemaJSON.
func Validate(document []byte, schemaJSON string) (*ValidationResult, error) {
	schema, err := load(schemaJSON)
	if err != nil {
		return nil, err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("malformed JSON: %v", err))
	}
	return toResult(result), nil
}

// ValidateInput checks an already decoded document, such as job variables.
func ValidateInput(input map[string]interface{}, schemaJSON string) (*ValidationResult, error) {
	schema, err := load(schemaJSON)
	if err != nil {
		return nil, err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return toResult(result), nil
}

func toResult(r *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: r.Valid()}
	for _, e := range r.Errors() {
		field := e.Field()
		if field == "(root)" {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Err converts a failed result into an INVALID_INPUT error, nil otherwise.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	return apperrors.NewInvalidInputError(strings.Join(vr.GetErrorMessages(), "; "))
}

type itemPayload struct {
	Title           string  `json:"title"`
	ReferenceNumber string  `json:"referenceNumber"`
	ExpiryDate      string  `json:"expiryDate"`
	DepartmentID    int64   `json:"departmentId"`
	ReminderRuleID  int64   `json:"reminderRuleId"`
	CategoryID      *int64  `json:"categoryId"`
	RecipientIDs    []int64 `json:"recipientIds"`
}

// DecodeNewItem validates a registration payload and decodes it.
func DecodeNewItem(document []byte) (models.NewItem, error) {
	result, err := Validate(document, ItemRegistrationSchema)
	if err != nil {
		return models.NewItem{}, err
	}
	if err := result.Err(); err != nil {
		return models.NewItem{}, err
	}

	var p itemPayload
	if err := json.Unmarshal(document, &p); err != nil {
		return models.NewItem{}, apperrors.NewInvalidInputError(err.Error())
	}
	expiry, err := models.ParseDate(p.ExpiryDate)
	if err != nil {
		return models.NewItem{}, apperrors.NewInvalidInputError(fmt.Sprintf("expiryDate: %v", err))
	}

	return models.NewItem{
		Title:           strings.TrimSpace(p.Title),
		ReferenceNumber: strings.TrimSpace(p.ReferenceNumber),
		ExpiryDate:      expiry,
		DepartmentID:    p.DepartmentID,
		ReminderRuleID:  p.ReminderRuleID,
		CategoryID:      p.CategoryID,
		RecipientIDs:    p.RecipientIDs,
	}, nil
}
