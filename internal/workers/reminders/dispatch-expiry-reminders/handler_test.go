package dispatchexpiryreminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-reminders/internal/common/config"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/reminder"
)

type stubRunner struct {
	report *reminder.Report
	err    error
	got    reminder.RunOptions
}

func (s *stubRunner) Run(ctx context.Context, opts reminder.RunOptions) (*reminder.Report, error) {
	s.got = opts
	return s.report, s.err
}

func createTestConfig() *Config {
	return LoadConfig(config.WorkerConfig{Timeout: 30000})
}

func TestExecute(t *testing.T) {
	runner := &stubRunner{report: &reminder.Report{
		BatchID:       "b-1",
		Date:          "2024-06-23",
		Evaluated:     3,
		Due:           2,
		Sent:          1,
		Failed:        1,
		Misconfigured: []int64{9},
	}}
	h := NewHandler(createTestConfig(), runner, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Date: "2024-06-23", DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "b-1", out.BatchID)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, []int64{9}, out.Misconfigured)
	assert.True(t, runner.got.DryRun)
	assert.Equal(t, time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC), runner.got.Date)
}

func TestExecute_DefaultsToToday(t *testing.T) {
	runner := &stubRunner{report: &reminder.Report{}}
	h := NewHandler(createTestConfig(), runner, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.True(t, runner.got.Date.IsZero())
}

func TestExecute_DataStoreFailureIsRetryable(t *testing.T) {
	runner := &stubRunner{
		report: &reminder.Report{Aborted: true},
		err:    apperrors.NewDataStoreError("ListDue", errors.New("connection reset")),
	}
	h := NewHandler(createTestConfig(), runner, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.True(t, apperrors.IsDataStoreError(err))

	bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
	assert.Greater(t, bpmn.Retries, 0)
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		vars    string
		want    *Input
		wantErr bool
	}{
		{"empty", `{}`, &Input{}, false},
		{"date and dry run among other process variables", `{"date":"2024-06-23","dryRun":true,"customer":"acme"}`,
			&Input{Date: "2024-06-23", DryRun: true}, false},
		{"null date", `{"date":null}`, &Input{}, false},
		{"bad date", `{"date":"23/06/2024"}`, nil, true},
		{"dry run as string", `{"dryRun":"yes"}`, nil, true},
		{"not json", `date=today`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInput(tt.vars)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
