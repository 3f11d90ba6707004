package registertrackeditem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-reminders/internal/common/config"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/storage/memory"
	"expiry-reminders/internal/storage/postgres"
)

func createTestConfig() *Config {
	return LoadConfig(config.WorkerConfig{})
}

func seededStore() *memory.Store {
	store := memory.New()
	store.AddDepartment(models.Department{ID: 1, Name: "Legal"})
	store.AddRule(models.ReminderRule{ID: 1, Name: "Month and week", Offsets: []int{30, 7}})
	store.AddCategory(models.Category{ID: 4, Name: "Leases"})
	store.AddRecipient(models.Recipient{ID: 1, Name: "Aisha", WhatsAppNumber: "+1555"})
	return store
}

func TestExecute(t *testing.T) {
	store := seededStore()
	h := NewHandler(createTestConfig(), store, logger.NewTestLogger(t))

	input, err := parseInput(`{
		"title": "Warehouse lease",
		"expiryDate": "2025-01-31",
		"departmentId": 1,
		"reminderRuleId": 1,
		"recipientIds": [1],
		"requestedBy": "ops@example.com"
	}`)
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ItemID)
	assert.Equal(t, "active", out.WorkflowStatus)

	items, err := store.ListItems(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 30, items[0].DaysLeft)
}

func TestExecute_UnknownReference(t *testing.T) {
	store := seededStore()
	h := NewHandler(createTestConfig(), store, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{
		Title: "x", ExpiryDate: "2025-01-31", DepartmentID: 1, ReminderRuleID: 1, RecipientIDs: []int64{1, 42},
	})
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeReferenceNotFound, se.Code)

	bpmn := apperrors.ConvertToBPMNError(se)
	assert.Equal(t, 0, bpmn.Retries, "a missing reference is thrown as a BPMN error")

	items, err := store.ListItems(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExecute_PostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM departments").WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	h := NewHandler(createTestConfig(), postgres.New(db), logger.NewTestLogger(t))
	_, err = h.Execute(context.Background(), &Input{Title: "x", ExpiryDate: "2025-01-31", DepartmentID: 1, ReminderRuleID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsDataStoreError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseInput_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars string
	}{
		{"missing expiry", `{"title":"x","departmentId":1,"reminderRuleId":1}`},
		{"bad expiry", `{"title":"x","expiryDate":"Jan 31","departmentId":1,"reminderRuleId":1}`},
		{"fractional id", `{"title":"x","expiryDate":"2025-01-31","departmentId":1.5,"reminderRuleId":1}`},
		{"not an object", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseInput(tt.vars)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidationError(err))
		})
	}
}
