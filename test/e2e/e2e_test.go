// Package e2e runs the reminder engine against real PostgreSQL and Redis.
// It is skipped unless E2E_POSTGRES_DSN (key=value form) and E2E_REDIS_ADDR
// are set. Every test works in a throwaway schema.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-reminders/internal/channels/telegram"
	apperrors "expiry-reminders/internal/common/errors"
	commonhttp "expiry-reminders/internal/common/http"
	"expiry-reminders/internal/common/lock"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
	"expiry-reminders/internal/storage/postgres"
)

type environment struct {
	db     *sql.DB
	store  *postgres.Store
	redis  *redis.Client
	today  time.Time
	tgHits *int32
	tgURL  string
}

func setup(t *testing.T) *environment {
	t.Helper()
	dsn, redisAddr := os.Getenv("E2E_POSTGRES_DSN"), os.Getenv("E2E_REDIS_ADDR")
	if dsn == "" || redisAddr == "" {
		t.Skip("E2E_POSTGRES_DSN and E2E_REDIS_ADDR are required")
	}

	ctx := context.Background()
	admin, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	schema := "e2e_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	db, err := sql.Open("postgres", dsn+" search_path="+schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := postgres.New(db)
	require.NoError(t, store.EnsureSchema(ctx))

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	require.NoError(t, rdb.Ping(ctx).Err())
	t.Cleanup(func() { rdb.Close() })

	var hits int32
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"chat":{"id":42}}}`, 1000+n)
	}))
	t.Cleanup(tg.Close)

	return &environment{
		db:     db,
		store:  store,
		redis:  rdb,
		today:  models.DateOf(time.Now().UTC()),
		tgHits: &hits,
		tgURL:  tg.URL,
	}
}

func (e *environment) seed(t *testing.T) (deptID, ruleID, recipientID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.QueryRowContext(ctx, `INSERT INTO departments (name) VALUES ('Legal') RETURNING id`).Scan(&deptID))
	require.NoError(t, e.db.QueryRowContext(ctx, `INSERT INTO reminder_rules (name, offsets) VALUES ('Week and day', '{7,1}') RETURNING id`).Scan(&ruleID))
	_, err := e.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES ('Leases')`)
	require.NoError(t, err)
	require.NoError(t, e.db.QueryRowContext(ctx,
		`INSERT INTO recipients (name, telegram_chat_id) VALUES ('Omar', '42') RETURNING id`).Scan(&recipientID))
	return deptID, ruleID, recipientID
}

func (e *environment) runner(t *testing.T) *reminder.Runner {
	log := logger.NewTestLogger(t)
	tg := telegram.New(telegram.Config{BaseURL: e.tgURL, BotToken: "e2e"}, commonhttp.NewClient(5*time.Second))

	opts := reminder.DefaultDispatchOptions()
	opts.Retry.BaseDelay = 10 * time.Millisecond
	dispatcher := reminder.NewDispatcher(e.store, []reminder.Channel{tg}, opts, log,
		reminder.WithLocker(lock.NewRedisLocker(e.redis)))

	return reminder.NewRunner(e.store, dispatcher,
		map[models.ChannelName]string{models.ChannelTelegram: "{{recipient_name}}: {{item_title}} expires in {{days_left}} days"},
		log)
}

func TestBatch_SendsOncePerOffset(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	dept, rule, recipient := env.seed(t)

	itemID, err := env.store.CreateItem(ctx, models.NewItem{
		Title:          "Warehouse lease",
		ExpiryDate:     env.today.AddDate(0, 0, 7),
		DepartmentID:   dept,
		ReminderRuleID: rule,
		RecipientIDs:   []int64{recipient},
	})
	require.NoError(t, err)

	runner := env.runner(t)

	report, err := runner.Run(ctx, reminder.RunOptions{Date: env.today})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, int32(1), atomic.LoadInt32(env.tgHits))

	// Same date again: the logged tuple is not re-sent.
	report, err = runner.Run(ctx, reminder.RunOptions{Date: env.today})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Equal(t, 1, report.Skipped["already_logged"])
	assert.Equal(t, int32(1), atomic.LoadInt32(env.tgHits))

	entries, err := env.store.ListLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, itemID, entries[0].ItemID)
	assert.Equal(t, models.LogStatusSent, entries[0].Status)

	summary, err := env.store.LogSummary(ctx, env.today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByStatus[models.LogStatusSent])
}

func TestBatch_NonMatchingDaySendsNothing(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	dept, rule, recipient := env.seed(t)

	_, err := env.store.CreateItem(ctx, models.NewItem{
		Title:          "Vendor contract",
		ExpiryDate:     env.today.AddDate(0, 0, 5),
		DepartmentID:   dept,
		ReminderRuleID: rule,
		RecipientIDs:   []int64{recipient},
	})
	require.NoError(t, err)

	report, err := env.runner(t).Run(ctx, reminder.RunOptions{Date: env.today})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Zero(t, report.Due)
	assert.Zero(t, atomic.LoadInt32(env.tgHits))
}

func TestCreateItem_UnknownRecipientWritesNothing(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	dept, rule, _ := env.seed(t)

	_, err := env.store.CreateItem(ctx, models.NewItem{
		Title:          "Orphan",
		ExpiryDate:     env.today.AddDate(0, 1, 0),
		DepartmentID:   dept,
		ReminderRuleID: rule,
		RecipientIDs:   []int64{9999},
	})
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeReferenceNotFound, se.Code)

	items, err := env.store.ListItems(ctx, env.today)
	require.NoError(t, err)
	assert.Empty(t, items)
}
