package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"expiry-reminders/internal/alert"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/storage/memory"
)

type mockChannel struct {
	mock.Mock
	name models.ChannelName
}

func newMockChannel(name models.ChannelName) *mockChannel {
	return &mockChannel{name: name}
}

func (m *mockChannel) Name() models.ChannelName { return m.name }

func (m *mockChannel) Send(ctx context.Context, address, text string) (Delivery, error) {
	args := m.Called(address, text)
	return args.Get(0).(Delivery), args.Error(1)
}

type fakeLease struct{ released *int32 }

func (l fakeLease) Release(ctx context.Context) error {
	atomic.AddInt32(l.released, 1)
	return nil
}

type fakeLocker struct {
	acquired bool
	err      error
	released int32
	keys     sync.Map
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.keys.Store(key, ttl)
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.acquired {
		return nil, false, nil
	}
	return fakeLease{released: &l.released}, true, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []models.LogEntry
	err     error
}

func (s *recordingSink) Index(ctx context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (a *recordingAlerter) Notify(ctx context.Context, al alert.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return nil
}

const (
	waTemplate = "Hi {{recipient_name}}, {{item_title}} expires in {{days_left}} days."
	tgTemplate = "{recipient_name}: {item_title} expires {expiry_date}"
)

var evaluationNow = time.Date(2024, 6, 23, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	wa         *mockChannel
	tg         *mockChannel
	dispatcher *Dispatcher
	runner     *Runner
	alerter    *recordingAlerter
}

// newFixture seeds one item expiring 2024-06-30 with offsets {7, 1} and three
// recipients: WhatsApp only, Telegram only, and none.
func newFixture(t *testing.T, opts DispatchOptions, dopts ...DispatcherOption) *fixture {
	t.Helper()

	store := memory.New()
	store.AddDepartment(models.Department{ID: 1, Name: "Legal"})
	store.AddRule(models.ReminderRule{ID: 1, Name: "Week and day", Offsets: []int{7, 1}})
	store.AddCategory(models.Category{ID: 1, Name: "Contracts"})
	store.AddRecipient(models.Recipient{ID: 1, Name: "Aisha", WhatsAppNumber: "+1555"})
	store.AddRecipient(models.Recipient{ID: 2, Name: "Omar", TelegramChatID: "42"})
	store.AddRecipient(models.Recipient{ID: 3, Name: "Nobody"})
	store.AddItem(memory.ItemRow{
		ID:             1,
		Title:          "Office lease",
		ExpiryDate:     date("2024-06-30"),
		WorkflowStatus: models.StatusActive,
		DepartmentID:   1,
		ReminderRuleID: 1,
		CategoryID:     1,
	}, 1, 2, 3)

	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fastPolicy(3)
	}

	log := logger.NewTestLogger(t)
	wa := newMockChannel(models.ChannelWhatsApp)
	tg := newMockChannel(models.ChannelTelegram)
	clock := WithClock(func() time.Time { return evaluationNow })
	d := NewDispatcher(store, []Channel{wa, tg}, opts, log, append([]DispatcherOption{clock}, dopts...)...)

	alerter := &recordingAlerter{}
	r := NewRunner(store, d, map[models.ChannelName]string{
		models.ChannelWhatsApp: waTemplate,
		models.ChannelTelegram: tgTemplate,
	}, log, WithAlerter(alerter), WithNow(func() time.Time { return evaluationNow }))

	return &fixture{store: store, wa: wa, tg: tg, dispatcher: d, runner: r, alerter: alerter}
}

func entriesByChannel(entries []models.LogEntry) map[models.ChannelName]models.LogEntry {
	out := make(map[models.ChannelName]models.LogEntry, len(entries))
	for _, e := range entries {
		out[e.Channel] = e
	}
	return out
}
