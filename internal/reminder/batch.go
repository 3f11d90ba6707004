package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"expiry-reminders/internal/alert"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/common/metrics"
	"expiry-reminders/internal/models"
)

// Alerter notifies operators about aborted or degraded batches.
type Alerter interface {
	Notify(ctx context.Context, a alert.Alert) error
}

// Recorder receives batch-level telemetry.
type Recorder interface {
	RecordBatch(ctx context.Context, result string, duration time.Duration)
	RecordDispatch(ctx context.Context, channel, status string)
}

// Plan is the evaluation pass for one date.
type Plan struct {
	Date          time.Time       `json:"-"`
	Outcomes      map[Outcome]int `json:"outcomes"`
	Due           []DueReminder   `json:"due"`
	Misconfigured []int64         `json:"misconfigured,omitempty"`
	Missed        []int64         `json:"missed,omitempty"`
	Skipped       map[string]int  `json:"skipped,omitempty"`
	Config        BatchConfig     `json:"-"`
}

func (p *Plan) skip(reason string) {
	if p.Skipped == nil {
		p.Skipped = make(map[string]int)
	}
	p.Skipped[reason]++
	metrics.DispatchSkipped.WithLabelValues(reason).Inc()
}

// Report summarizes a batch run.
type Report struct {
	BatchID       string          `json:"batchId"`
	Date          string          `json:"date"`
	DryRun        bool            `json:"dryRun"`
	Evaluated     int             `json:"evaluated"`
	Outcomes      map[Outcome]int `json:"outcomes"`
	Due           int             `json:"due"`
	Sent          int             `json:"sent"`
	Failed        int             `json:"failed"`
	Skipped       map[string]int  `json:"skipped,omitempty"`
	Misconfigured []int64         `json:"misconfigured,omitempty"`
	Missed        []int64         `json:"missed,omitempty"`
	Results       []Result        `json:"results,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	Duration      time.Duration   `json:"duration"`
	Aborted       bool            `json:"aborted"`
	Error         string          `json:"error,omitempty"`
}

// RunOptions selects the evaluation date. A zero Date means today in the
// runner's location.
type RunOptions struct {
	Date   time.Time
	DryRun bool
}

// RunnerOption configures optional collaborators of a Runner.
type RunnerOption func(*Runner)

func WithAlerter(a Alerter) RunnerOption {
	return func(r *Runner) { r.alerter = a }
}

func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

func WithLocation(loc *time.Location) RunnerOption {
	return func(r *Runner) { r.loc = loc }
}

func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Runner executes the periodic batch: load config, evaluate, dispatch.
type Runner struct {
	store        Store
	dispatcher   *Dispatcher
	fallback     map[models.ChannelName]string
	resendFailed bool
	alerter      Alerter
	recorder     Recorder
	logger       logger.Logger
	tracer       trace.Tracer
	loc          *time.Location
	now          func() time.Time
}

// NewRunner wires a batch runner. fallback holds the templates used for
// channels without an active stored template.
func NewRunner(store Store, dispatcher *Dispatcher, fallback map[models.ChannelName]string, log logger.Logger, options ...RunnerOption) *Runner {
	r := &Runner{
		store:        store,
		dispatcher:   dispatcher,
		fallback:     fallback,
		resendFailed: dispatcher.opts.ResendFailed,
		logger:       log.WithFields(map[string]interface{}{"component": "batch"}),
		tracer:       otel.Tracer("expiry-reminders/reminder"),
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Today is the evaluation date for "now" in the runner's location.
func (r *Runner) Today() time.Time {
	return models.DateOf(r.now().In(r.loc))
}

// Plan evaluates every candidate item for date and expands due items into
// (item, recipient, channel) tuples that have no prior attempt.
func (r *Runner) Plan(ctx context.Context, date time.Time) (*Plan, error) {
	date = models.DateOf(date)
	ctx, span := r.tracer.Start(ctx, "reminder.plan", trace.WithAttributes(
		attribute.String("date", date.Format(models.DateLayout)),
	))
	defer span.End()

	cfg, err := loadBatchConfig(ctx, r.store, r.fallback, r.dispatcher.Channels())
	if err != nil {
		return nil, err
	}

	items, err := r.store.ListDue(ctx, date)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Date: date, Outcomes: make(map[Outcome]int), Config: cfg}
	log := r.logger.WithContext(ctx)

	for _, item := range items {
		ev := Evaluate(item, date)
		if ev.Outcome == OutcomeMissed {
			attempted, err := r.store.HasAnyAttempt(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			ev = ev.Settle(attempted)
		}
		plan.Outcomes[ev.Outcome]++
		metrics.EvaluationsTotal.WithLabelValues(string(ev.Outcome)).Inc()

		switch ev.Outcome {
		case OutcomeMisconfigured:
			plan.Misconfigured = append(plan.Misconfigured, item.ID)
			log.Warn("item skipped: invalid reminder configuration", map[string]interface{}{
				"itemId": item.ID,
				"error":  ev.Err,
			})
			continue
		case OutcomeMissed:
			plan.Missed = append(plan.Missed, item.ID)
			log.Info("item expired without any reminder", map[string]interface{}{"itemId": item.ID})
			continue
		case OutcomeDue:
		default:
			continue
		}

		recipients, err := r.store.ListRecipients(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 {
			log.Warn("due item has no recipients", map[string]interface{}{"itemId": item.ID})
			plan.skip("no_recipients")
			continue
		}

		for _, recipient := range recipients {
			destinations := recipient.Destinations()
			if len(destinations) == 0 {
				log.Debug("recipient has no channel configured", map[string]interface{}{
					"itemId":      item.ID,
					"recipientId": recipient.ID,
				})
				plan.skip("no_channel")
				continue
			}

			for _, dest := range destinations {
				if !cfg.Enabled(dest.Channel) {
					plan.skip(string(ResultSkippedNoAdapter))
					continue
				}

				due := DueReminder{
					Item:        item,
					Recipient:   recipient,
					Destination: dest,
					Offset:      ev.Offset,
					DaysLeft:    ev.DaysLeft,
				}
				prior, err := r.store.HasPriorAttempt(ctx, due.Key(), r.resendFailed)
				if err != nil {
					return nil, err
				}
				if prior {
					plan.skip("already_logged")
					continue
				}
				plan.Due = append(plan.Due, due)
			}
		}
	}

	span.SetAttributes(attribute.Int("due", len(plan.Due)))
	return plan, nil
}

// Run executes one batch. A DataStoreError aborts the batch and is returned;
// every other problem is contained to its item or tuple.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	date := opts.Date
	if date.IsZero() {
		date = r.Today()
	}
	date = models.DateOf(date)

	report := &Report{
		BatchID:   uuid.New().String(),
		Date:      date.Format(models.DateLayout),
		DryRun:    opts.DryRun,
		StartedAt: r.now().UTC(),
	}

	ctx, span := r.tracer.Start(ctx, "reminder.batch", trace.WithAttributes(
		attribute.String("batch.id", report.BatchID),
		attribute.String("date", report.Date),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"batchId": report.BatchID,
		"date":    report.Date,
	})
	log.Info("reminder batch started", map[string]interface{}{"dryRun": opts.DryRun})

	err := r.run(ctx, report, date, opts.DryRun)
	report.Duration = r.now().Sub(report.StartedAt)

	result := "completed"
	switch {
	case err != nil:
		result = "aborted"
		report.Aborted = true
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch aborted")
		log.Error("reminder batch aborted", map[string]interface{}{"error": err})
		r.alert(ctx, alert.Alert{
			Severity: alert.SeverityCritical,
			Subject:  fmt.Sprintf("Reminder batch %s aborted", report.Date),
			Body:     fmt.Sprintf("Batch %s stopped: %v. Entries logged before the failure stand; the next run reconsiders the rest.", report.BatchID, err),
			Fields:   reportFields(report),
		})
	case report.Failed > 0:
		result = "degraded"
		r.alert(ctx, alert.Alert{
			Severity: alert.SeverityWarning,
			Subject:  fmt.Sprintf("Reminder batch %s: %d failed deliveries", report.Date, report.Failed),
			Body:     fmt.Sprintf("Batch %s sent %d and failed %d reminders.", report.BatchID, report.Sent, report.Failed),
			Fields:   reportFields(report),
		})
	}

	metrics.BatchesTotal.WithLabelValues(result).Inc()
	metrics.BatchDuration.Observe(report.Duration.Seconds())
	if r.recorder != nil {
		r.recorder.RecordBatch(ctx, result, report.Duration)
	}

	log.Info("reminder batch finished", map[string]interface{}{
		"result":        result,
		"due":           report.Due,
		"sent":          report.Sent,
		"failed":        report.Failed,
		"misconfigured": len(report.Misconfigured),
		"durationMs":    report.Duration.Milliseconds(),
	})
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report, date time.Time, dryRun bool) error {
	plan, err := r.Plan(ctx, date)
	if err != nil {
		return err
	}

	report.Outcomes = plan.Outcomes
	report.Misconfigured = plan.Misconfigured
	report.Missed = plan.Missed
	report.Skipped = plan.Skipped
	report.Due = len(plan.Due)
	for _, n := range plan.Outcomes {
		report.Evaluated += n
	}

	if dryRun || len(plan.Due) == 0 {
		return nil
	}

	results, err := r.dispatcher.Dispatch(ctx, report.BatchID, plan.Due, plan.Config)
	report.Results = results
	for _, res := range results {
		switch res.Status {
		case ResultSent:
			report.Sent++
		case ResultFailed:
			report.Failed++
		default:
			if report.Skipped == nil {
				report.Skipped = make(map[string]int)
			}
			report.Skipped[string(res.Status)]++
		}
		if r.recorder != nil && (res.Status == ResultSent || res.Status == ResultFailed) {
			r.recorder.RecordDispatch(ctx, string(res.Key.Channel), string(res.Status))
		}
	}
	if err != nil && !apperrors.IsDataStoreError(err) {
		err = apperrors.NewInternalError(err)
	}
	return err
}

func (r *Runner) alert(ctx context.Context, a alert.Alert) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Notify(context.WithoutCancel(ctx), a); err != nil {
		r.logger.Warn("operator alert failed", map[string]interface{}{"error": err})
	}
}

func reportFields(report *Report) map[string]string {
	return map[string]string{
		"batchId":       report.BatchID,
		"date":          report.Date,
		"due":           fmt.Sprint(report.Due),
		"sent":          fmt.Sprint(report.Sent),
		"failed":        fmt.Sprint(report.Failed),
		"misconfigured": fmt.Sprint(len(report.Misconfigured)),
	}
}
