package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "expiry-reminders/internal/common/errors"
)

func TestDecodeNewItem(t *testing.T) {
	item, err := DecodeNewItem([]byte(`{
		"title": " Office lease ",
		"expiryDate": "2024-12-31",
		"departmentId": 1,
		"reminderRuleId": 2,
		"recipientIds": [10, 11]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Office lease", item.Title)
	assert.Equal(t, "2024-12-31", item.ExpiryDate.Format("2006-01-02"))
	assert.Equal(t, int64(2), item.ReminderRuleID)
	assert.Nil(t, item.CategoryID)
	assert.Equal(t, []int64{10, 11}, item.RecipientIDs)
}

func TestDecodeNewItem_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing title", `{"expiryDate":"2024-12-31","departmentId":1,"reminderRuleId":1}`, "title"},
		{"empty title", `{"title":"","expiryDate":"2024-12-31","departmentId":1,"reminderRuleId":1}`, "title"},
		{"bad date", `{"title":"x","expiryDate":"31/12/2024","departmentId":1,"reminderRuleId":1}`, "expiryDate"},
		{"string department", `{"title":"x","expiryDate":"2024-12-31","departmentId":"1","reminderRuleId":1}`, "departmentId"},
		{"zero rule", `{"title":"x","expiryDate":"2024-12-31","departmentId":1,"reminderRuleId":0}`, "reminderRuleId"},
		{"duplicate recipients", `{"title":"x","expiryDate":"2024-12-31","departmentId":1,"reminderRuleId":1,"recipientIds":[3,3]}`, "recipientIds"},
		{"unknown field", `{"title":"x","expiryDate":"2024-12-31","departmentId":1,"reminderRuleId":1,"owner":"me"}`, "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Validate([]byte(tt.doc), ItemRegistrationSchema)
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.True(t, result.HasErrors(tt.field), "errors: %v", result.GetErrorMessages())

			_, err = DecodeNewItem([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidationError(err))
		})
	}
}

func TestValidate_MalformedJSON(t *testing.T) {
	_, err := Validate([]byte(`{"title":`), ItemRegistrationSchema)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestValidateInput_RunRequest(t *testing.T) {
	result, err := ValidateInput(map[string]interface{}{"date": "2024-06-23", "dryRun": true}, RunRequestSchema)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NoError(t, result.Err())

	result, err = ValidateInput(map[string]interface{}{"date": "tomorrow"}, RunRequestSchema)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Error(t, result.Err())
}
