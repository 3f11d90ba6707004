package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

func plan(t *testing.T, f *fixture, day string) *Plan {
	t.Helper()
	p, err := f.runner.Plan(context.Background(), date(day))
	require.NoError(t, err)
	return p
}

func resultsByChannel(results []Result) map[models.ChannelName]Result {
	out := make(map[models.ChannelName]Result, len(results))
	for _, r := range results {
		out[r.Key.Channel] = r
	}
	return out
}

func TestDispatch_RetriesRetryableErrors(t *testing.T) {
	f := newFixture(t, DispatchOptions{})
	f.wa.On("Send", "+1555", mock.Anything).
		Return(Delivery{}, apperrors.NewRateLimitedError("whatsapp", errors.New("429"))).Twice()
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{ProviderMessageID: "wamid.3"}, nil).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	wa := resultsByChannel(results)[models.ChannelWhatsApp]
	assert.Equal(t, ResultSent, wa.Status)
	assert.Equal(t, 3, wa.Attempts)

	entry := entriesByChannel(f.store.Entries())[models.ChannelWhatsApp]
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, "wamid.3", entry.ProviderMessageID)
}

func TestDispatch_RetryBudgetLogsFinalOutcomeOnly(t *testing.T) {
	f := newFixture(t, DispatchOptions{Retry: fastPolicy(2)})
	f.wa.On("Send", "+1555", mock.Anything).
		Return(Delivery{}, apperrors.NewDeliveryError("whatsapp", errors.New("503"), true))
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil)

	p := plan(t, f, "2024-06-23")
	_, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	f.wa.AssertNumberOfCalls(t, "Send", 2)
	var waEntries []models.LogEntry
	for _, e := range f.store.Entries() {
		if e.Channel == models.ChannelWhatsApp {
			waEntries = append(waEntries, e)
		}
	}
	require.Len(t, waEntries, 1)
	assert.Equal(t, models.LogStatusFailed, waEntries[0].Status)
	assert.Equal(t, 2, waEntries[0].Attempts)
}

func TestDispatch_ForeignErrorIsLoggedAsFailure(t *testing.T) {
	f := newFixture(t, DispatchOptions{})
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, errors.New("dial tcp: no route to host")).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	wa := resultsByChannel(results)[models.ChannelWhatsApp]
	assert.Equal(t, ResultFailed, wa.Status)
	assert.Equal(t, 1, wa.Attempts)
	assert.Contains(t, wa.Error, "no route to host")
}

func TestDispatch_LockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{acquired: false}
	f := newFixture(t, DispatchOptions{LockTTL: time.Minute}, WithLocker(locker))

	p := plan(t, f, "2024-06-23")
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ResultSkippedLocked, r.Status)
	}
	assert.Empty(t, f.store.Entries())
	f.wa.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	_, ok := locker.keys.Load("reminder:lock:1:1:7:whatsapp")
	assert.True(t, ok)
}

func TestDispatch_LockAcquiredIsReleased(t *testing.T) {
	locker := &fakeLocker{acquired: true}
	f := newFixture(t, DispatchOptions{LockTTL: time.Minute}, WithLocker(locker))
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, nil).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	_, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	assert.Len(t, f.store.Entries(), 2)
	assert.EqualValues(t, 2, locker.released)
}

func TestDispatch_LockerFailureFallsBackToStore(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis: connection refused")}
	f := newFixture(t, DispatchOptions{}, WithLocker(locker))
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, nil).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	_, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)
	assert.Len(t, f.store.Entries(), 2)
}

func TestDispatch_RecheckSkipsTupleLoggedAfterPlanning(t *testing.T) {
	f := newFixture(t, DispatchOptions{})
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")

	// Another runner logs the WhatsApp tuple between planning and dispatch.
	_, err := f.store.InsertLogEntry(context.Background(), models.LogEntry{
		ID: "other", ItemID: 1, RecipientID: 1, Offset: 7, Channel: models.ChannelWhatsApp, Status: models.LogStatusSent,
	})
	require.NoError(t, err)

	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	assert.Equal(t, ResultSkippedDuplicate, resultsByChannel(results)[models.ChannelWhatsApp].Status)
	f.wa.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Len(t, f.store.Entries(), 2)
}

func TestDispatch_CancelledSendLeavesTupleUnlogged(t *testing.T) {
	f := newFixture(t, DispatchOptions{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.wa.On("Send", "+1555", mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(Delivery{}, context.Canceled).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Maybe()

	p := plan(t, f, "2024-06-23")
	results, err := f.dispatcher.Dispatch(ctx, "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, ResultCancelled, r.Status)
	}
	assert.Empty(t, f.store.Entries())

	// The next run on the same date picks the tuples up again.
	assert.Len(t, plan(t, f, "2024-06-23").Due, 2)
}

func TestDispatch_MissingAdapterSkipsTuple(t *testing.T) {
	f := newFixture(t, DispatchOptions{})
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	cfg := BatchConfig{
		Templates: p.Config.Templates,
		Channels:  map[models.ChannelName]bool{models.ChannelWhatsApp: true},
	}
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, cfg)
	require.NoError(t, err)

	tg := resultsByChannel(results)[models.ChannelTelegram]
	assert.Equal(t, ResultSkippedNoAdapter, tg.Status)
	assert.Contains(t, tg.Error, string(apperrors.ErrCodeChannelNotConfigured))
	require.Len(t, f.store.Entries(), 1)
	assert.Equal(t, models.ChannelWhatsApp, f.store.Entries()[0].Channel)
}

func TestDispatch_MissingTemplateSkipsTuple(t *testing.T) {
	f := newFixture(t, DispatchOptions{})
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	cfg := BatchConfig{
		Templates: map[models.ChannelName]string{models.ChannelTelegram: tgTemplate},
		Channels:  map[models.ChannelName]bool{models.ChannelWhatsApp: true, models.ChannelTelegram: true},
	}
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, cfg)
	require.NoError(t, err)

	wa := resultsByChannel(results)[models.ChannelWhatsApp]
	assert.Equal(t, ResultSkippedNoAdapter, wa.Status)
	assert.Contains(t, wa.Error, string(apperrors.ErrCodeTemplateNotFound))
	f.wa.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, f.store.Entries(), 1)
	assert.Equal(t, models.ChannelTelegram, f.store.Entries()[0].Channel)
}

func TestDispatch_SinkFailureDoesNotFailTuple(t *testing.T) {
	sink := &recordingSink{err: errors.New("es unavailable")}
	f := newFixture(t, DispatchOptions{}, WithLogSink(sink))
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, nil).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	p := plan(t, f, "2024-06-23")
	results, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, ResultSent, r.Status)
		assert.NotEmpty(t, r.EntryID)
	}
	assert.Len(t, sink.entries, 2)
}

func TestDispatch_RateLimitedChannel(t *testing.T) {
	f := newFixture(t, DispatchOptions{
		RatePerMinute: map[models.ChannelName]int{models.ChannelWhatsApp: 6000},
	})
	f.wa.On("Send", "+1555", mock.Anything).Return(Delivery{}, nil).Once()
	f.tg.On("Send", "42", mock.Anything).Return(Delivery{}, nil).Once()

	require.NotNil(t, f.dispatcher.limiters[models.ChannelWhatsApp])
	assert.Nil(t, f.dispatcher.limiters[models.ChannelTelegram])

	p := plan(t, f, "2024-06-23")
	_, err := f.dispatcher.Dispatch(context.Background(), "batch-1", p.Due, p.Config)
	require.NoError(t, err)
	assert.Len(t, f.store.Entries(), 2)
}

func TestLockKey(t *testing.T) {
	key := models.AttemptKey{ItemID: 4, RecipientID: 9, Offset: 30, Channel: models.ChannelTelegram}
	assert.Equal(t, "reminder:lock:4:9:30:telegram", LockKey(key))
}
