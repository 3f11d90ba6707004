package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-reminders/internal/common/logger"
)

func TestNew_TracingDisabled(t *testing.T) {
	o := New("expiry-reminders-test", TracingOptions{}, logger.NewTestLogger(t))
	defer o.Shutdown()

	assert.Nil(t, o.tracerProvider)
	require.NotNil(t, o.Tracer())

	ctx := context.Background()
	o.RecordBatch(ctx, "completed", 120*time.Millisecond)
	o.RecordDispatch(ctx, "telegram", "sent")
	o.RecordJobProcessed(ctx, "success")
	o.RecordJobDuration(ctx, time.Second, "success")
}

func TestNew_TracingWithoutExporter(t *testing.T) {
	o := New("expiry-reminders-test", TracingOptions{Enabled: true, Environment: "test"}, logger.NewTestLogger(t))
	defer o.Shutdown()

	require.NotNil(t, o.tracerProvider)
	_, span := o.Tracer().Start(context.Background(), "reminder.batch")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
