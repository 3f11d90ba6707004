package reminder

import (
	"context"
	"time"

	"expiry-reminders/internal/models"
)

// Store is the data-store boundary of the engine. Implementations wrap their
// failures as DataStoreError.
type Store interface {
	// ListDue returns the candidate items for date: not terminal and expiring
	// no earlier than the day before date, so an item that expired yesterday
	// is seen once more and can be reported missed. Missing rule, department
	// or category references come back as nil ids.
	ListDue(ctx context.Context, date time.Time) ([]models.Item, error)
	ListRecipients(ctx context.Context, itemID int64) ([]models.Recipient, error)
	// HasPriorAttempt reports a logged attempt for key. With sentOnly, failed
	// entries are ignored.
	HasPriorAttempt(ctx context.Context, key models.AttemptKey, sentOnly bool) (bool, error)
	// HasAnyAttempt reports whether any entry, sent or failed, was ever
	// logged for the item.
	HasAnyAttempt(ctx context.Context, itemID int64) (bool, error)
	// InsertLogEntry appends entry atomically. It returns false when a sent
	// entry for the same key already exists.
	InsertLogEntry(ctx context.Context, entry models.LogEntry) (bool, error)
	ActiveTemplates(ctx context.Context) (map[models.ChannelName]string, error)
}

// Locker serializes dispatch of a single attempt key across runners.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// LogSink receives every log entry after it is stored.
type LogSink interface {
	Index(ctx context.Context, entry models.LogEntry) error
}
