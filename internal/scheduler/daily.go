// Package scheduler runs the reminder batch once per day in-process, for
// deployments that have no BPMN timer or external cron.
package scheduler

import (
	"context"
	"sync"
	"time"

	"expiry-reminders/internal/common/logger"
)

// Job is the work run at every firing.
type Job func(ctx context.Context) error

type Option func(*Daily)

// WithClock replaces time.Now and time.After, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(d *Daily) {
		d.now = now
		d.after = after
	}
}

// Daily fires job at hour:minute in loc every day.
type Daily struct {
	hour, minute int
	loc          *time.Location
	job          Job
	logger       logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewDaily(hour, minute int, loc *time.Location, job Job, log logger.Logger, opts ...Option) *Daily {
	if loc == nil {
		loc = time.UTC
	}
	d := &Daily{
		hour:     hour,
		minute:   minute,
		loc:      loc,
		job:      job,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		now:      time.Now,
		after:    time.After,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Next returns the first firing strictly after from.
func (d *Daily) Next(from time.Time) time.Time {
	local := from.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Start launches the loop. With runOnStart the job also runs immediately.
func (d *Daily) Start(ctx context.Context, runOnStart bool) {
	go d.run(ctx, runOnStart)
	d.logger.Info("scheduler started", map[string]interface{}{
		"hour":     d.hour,
		"minute":   d.minute,
		"timezone": d.loc.String(),
	})
}

// Stop ends the loop and waits for a running job to return.
func (d *Daily) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	<-d.done
	d.logger.Info("scheduler stopped", nil)
}

func (d *Daily) run(ctx context.Context, runOnStart bool) {
	defer close(d.done)

	if runOnStart {
		d.fire(ctx)
	}

	for {
		next := d.Next(d.now())
		d.logger.Debug("next batch scheduled", map[string]interface{}{"at": next.Format(time.RFC3339)})

		select {
		case <-d.after(next.Sub(d.now())):
			d.fire(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Daily) fire(ctx context.Context) {
	if err := d.job(ctx); err != nil {
		d.logger.Error("scheduled batch failed", map[string]interface{}{"error": err})
	}
}
