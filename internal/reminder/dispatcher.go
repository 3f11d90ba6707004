package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/metrics"
	"expiry-reminders/internal/models"
)

// DueReminder is one (item, recipient, channel) tuple that fires today.
type DueReminder struct {
	Item        models.Item        `json:"item"`
	Recipient   models.Recipient   `json:"recipient"`
	Destination models.Destination `json:"destination"`
	Offset      int                `json:"offset"`
	DaysLeft    int                `json:"daysLeft"`
}

func (d DueReminder) Key() models.AttemptKey {
	return models.AttemptKey{
		ItemID:      d.Item.ID,
		RecipientID: d.Recipient.ID,
		Offset:      d.Offset,
		Channel:     d.Destination.Channel,
	}
}

// ResultStatus is the fate of one tuple in a dispatch round.
type ResultStatus string

const (
	ResultSent             ResultStatus = "sent"
	ResultFailed           ResultStatus = "failed"
	ResultSkippedLocked    ResultStatus = "skipped_locked"
	ResultSkippedDuplicate ResultStatus = "skipped_duplicate"
	ResultSkippedNoAdapter ResultStatus = "skipped_no_adapter"
	ResultCancelled        ResultStatus = "cancelled"
	// ResultUnlogged marks a tuple abandoned because the data store failed.
	ResultUnlogged ResultStatus = "unlogged"
)

type Result struct {
	Key      models.AttemptKey `json:"key"`
	Status   ResultStatus      `json:"status"`
	Attempts int               `json:"attempts"`
	EntryID  string            `json:"entryId,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// DispatchOptions tunes the dispatcher.
type DispatchOptions struct {
	Workers      int
	LockTTL      time.Duration
	SendTimeout  time.Duration
	Retry        RetryPolicy
	ResendFailed bool
	// RatePerMinute caps adapter calls per channel; zero means unlimited.
	RatePerMinute map[models.ChannelName]int
}

func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{
		Workers:     4,
		LockTTL:     time.Minute,
		SendTimeout: 15 * time.Second,
		Retry:       DefaultRetryPolicy(),
	}
}

type DispatcherOption func(*Dispatcher)

func WithLocker(l Locker) DispatcherOption {
	return func(d *Dispatcher) { d.locker = l }
}

func WithLogSink(s LogSink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher renders, sends and logs due reminders on a bounded pool.
type Dispatcher struct {
	store    Store
	channels map[models.ChannelName]Channel
	limiters map[models.ChannelName]*rate.Limiter
	locker   Locker
	sink     LogSink
	opts     DispatchOptions
	logger   logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewDispatcher(store Store, channels []Channel, opts DispatchOptions, log logger.Logger, options ...DispatcherOption) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}

	d := &Dispatcher{
		store:    store,
		channels: make(map[models.ChannelName]Channel, len(channels)),
		limiters: make(map[models.ChannelName]*rate.Limiter),
		opts:     opts,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		tracer:   otel.Tracer("expiry-reminders/reminder"),
		now:      time.Now,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
		if perMinute := opts.RatePerMinute[ch.Name()]; perMinute > 0 {
			d.limiters[ch.Name()] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), max(1, perMinute/60))
		}
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Channels returns the adapters keyed by name.
func (d *Dispatcher) Channels() map[models.ChannelName]Channel {
	return d.channels
}

// Dispatch processes every tuple independently. Delivery failures are
// logged as failed entries and never stop sibling tuples. Only a data store
// failure aborts the round; results gathered so far are still returned.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID string, due []DueReminder, cfg BatchConfig) ([]Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(due))
	)

	for _, reminder := range due {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := d.dispatchOne(gctx, batchID, reminder, cfg)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()
	return results, err
}

func (d *Dispatcher) dispatchOne(ctx context.Context, batchID string, due DueReminder, cfg BatchConfig) (Result, error) {
	key := due.Key()
	res := Result{Key: key}
	log := d.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"batchId":     batchID,
		"itemId":      key.ItemID,
		"recipientId": key.RecipientID,
		"offset":      key.Offset,
		"channel":     string(key.Channel),
	})

	if ctx.Err() != nil {
		res.Status = ResultCancelled
		return res, nil
	}

	ch, ok := d.channels[key.Channel]
	template, hasTemplate := cfg.Templates[key.Channel]
	var skipErr error
	switch {
	case !hasTemplate:
		skipErr = apperrors.NewTemplateNotFoundError(string(key.Channel))
	case !ok || !cfg.Enabled(key.Channel):
		skipErr = apperrors.NewChannelNotConfiguredError(string(key.Channel))
	}
	if skipErr != nil {
		log.Warn("channel unusable for this batch, tuple skipped", map[string]interface{}{"error": skipErr})
		metrics.DispatchSkipped.WithLabelValues(string(ResultSkippedNoAdapter)).Inc()
		res.Status = ResultSkippedNoAdapter
		res.Error = skipErr.Error()
		return res, nil
	}

	ctx, span := d.tracer.Start(ctx, "reminder.dispatch", trace.WithAttributes(
		attribute.Int64("item.id", key.ItemID),
		attribute.Int64("recipient.id", key.RecipientID),
		attribute.String("channel", string(key.Channel)),
		attribute.Int("offset", key.Offset),
	))
	defer span.End()

	if d.locker != nil {
		lease, acquired, err := d.locker.Acquire(ctx, LockKey(key), d.opts.LockTTL)
		switch {
		case err != nil:
			log.Warn("advisory lock unavailable, relying on log constraint", map[string]interface{}{"error": err})
		case !acquired:
			log.Info("tuple locked by another runner", nil)
			metrics.DispatchSkipped.WithLabelValues(string(ResultSkippedLocked)).Inc()
			res.Status = ResultSkippedLocked
			return res, nil
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("failed to release advisory lock", map[string]interface{}{"error": err})
				}
			}()
		}
	}

	prior, err := d.store.HasPriorAttempt(ctx, key, d.opts.ResendFailed)
	if err != nil {
		res.Status = ResultUnlogged
		return res, err
	}
	if prior {
		metrics.DispatchSkipped.WithLabelValues(string(ResultSkippedDuplicate)).Inc()
		res.Status = ResultSkippedDuplicate
		return res, nil
	}

	text := Render(template, ReminderValues(due.Item, due.Recipient, due.DaysLeft, due.Offset))

	var delivery Delivery
	attempts, sendErr := d.opts.Retry.Do(ctx, func(ctx context.Context) error {
		if lim := d.limiters[key.Channel]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()

		out, err := ch.Send(sendCtx, due.Destination.Address, text)
		if err != nil {
			log.Debug("adapter call failed", map[string]interface{}{"error": err})
			return err
		}
		delivery = out
		return nil
	})
	res.Attempts = attempts

	// Interrupted before the adapter gave an answer: leave the tuple unlogged
	// so the next run on the same date reconsiders it.
	if sendErr != nil && ctx.Err() != nil {
		res.Status = ResultCancelled
		return res, nil
	}

	entry := models.LogEntry{
		ID:                uuid.New().String(),
		BatchID:           batchID,
		ItemID:            key.ItemID,
		RecipientID:       key.RecipientID,
		Channel:           key.Channel,
		Offset:            key.Offset,
		Status:            models.LogStatusSent,
		Attempts:          attempts,
		Message:           text,
		ProviderMessageID: delivery.ProviderMessageID,
		SentAt:            d.now().UTC(),
	}
	if sendErr != nil {
		entry.Status = models.LogStatusFailed
		entry.ErrorDetail = sendErr.Error()
		res.Error = sendErr.Error()
		if !apperrors.IsDeliveryError(sendErr) {
			sendErr = apperrors.NewDeliveryError(string(key.Channel), sendErr, false)
		}
		log.Warn("delivery failed", map[string]interface{}{"error": sendErr, "attempts": attempts})
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	inserted, err := d.store.InsertLogEntry(writeCtx, entry)
	if err != nil {
		log.Error("failed to write notification log entry", map[string]interface{}{"error": err})
		res.Status = ResultUnlogged
		return res, fmt.Errorf("log entry for %s: %w", key, err)
	}
	if !inserted {
		log.Warn("a sent entry already exists for tuple; entry not written", nil)
		metrics.DispatchSkipped.WithLabelValues(string(ResultSkippedDuplicate)).Inc()
		res.Status = ResultSkippedDuplicate
		return res, nil
	}

	res.EntryID = entry.ID
	res.Status = ResultStatus(entry.Status)
	metrics.DispatchTotal.WithLabelValues(string(key.Channel), string(entry.Status)).Inc()
	metrics.DispatchAttempts.WithLabelValues(string(key.Channel)).Observe(float64(attempts))

	if d.sink != nil {
		if err := d.sink.Index(writeCtx, entry); err != nil {
			metrics.LogIndexFailures.Inc()
			log.Warn("failed to mirror log entry", map[string]interface{}{"error": err})
		}
	}

	if entry.Status == models.LogStatusSent {
		log.Info("reminder sent", map[string]interface{}{"attempts": attempts, "providerMessageId": delivery.ProviderMessageID})
	}
	return res, nil
}

// LockKey is the advisory lock key for one attempt key.
func LockKey(key models.AttemptKey) string {
	return "reminder:lock:" + key.String()
}
