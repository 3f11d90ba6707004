package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsclient "expiry-reminders/internal/common/aws"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

type notifierFunc func(ctx context.Context, a Alert) error

func (f notifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

func sampleAlert() Alert {
	return Alert{
		Severity: SeverityCritical,
		Subject:  "Reminder batch 2024-06-23 aborted",
		Body:     "database unreachable",
		Fields:   map[string]string{"batchId": "b-1", "sent": "3"},
	}
}

func TestAlert_Text(t *testing.T) {
	text := sampleAlert().Text()
	assert.Contains(t, text, "[CRITICAL] Reminder batch 2024-06-23 aborted")
	assert.Contains(t, text, "batchId: b-1\nsent: 3\n")
}

func TestSESNotifier(t *testing.T) {
	api := &mockSES{}
	n := NewSESNotifier(awsclient.NewSESClientWithAPI(api, "ops@example.com"), []string{"oncall@example.com"})

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	require.NotNil(t, api.input)
	assert.Equal(t, "ops@example.com", aws.ToString(api.input.Source))
	assert.Equal(t, []string{"oncall@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Reminder batch 2024-06-23 aborted", aws.ToString(api.input.Message.Subject.Data))
}

func TestSESNotifier_NoRecipients(t *testing.T) {
	api := &mockSES{}
	n := NewSESNotifier(awsclient.NewSESClientWithAPI(api, "ops@example.com"), nil)

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	assert.Nil(t, api.input)
}

func TestSNSNotifier(t *testing.T) {
	api := &mockSNS{}
	n := NewSNSNotifier(awsclient.NewSNSClientWithAPI(api, "arn:aws:sns:us-east-1:123:alerts"))

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	require.NotNil(t, api.input)
	assert.Equal(t, "arn:aws:sns:us-east-1:123:alerts", aws.ToString(api.input.TopicArn))
	assert.Equal(t, "critical", aws.ToString(api.input.MessageAttributes["severity"].StringValue))
	assert.Equal(t, "b-1", aws.ToString(api.input.MessageAttributes["batchId"].StringValue))
}

func TestSNSNotifier_Error(t *testing.T) {
	api := &mockSNS{err: errors.New("throttled")}
	n := NewSNSNotifier(awsclient.NewSNSClientWithAPI(api, "arn"))

	err := n.Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAlertFailed, se.Code)
}

func TestMulti_TriesEveryNotifier(t *testing.T) {
	var calls []string
	failing := notifierFunc(func(ctx context.Context, a Alert) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	ok := notifierFunc(func(ctx context.Context, a Alert) error {
		calls = append(calls, "second")
		return nil
	})

	m := NewMulti(logger.NewNoOpLogger(), failing, ok)
	err := m.Notify(context.Background(), sampleAlert())

	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, 2, m.Len())
}
