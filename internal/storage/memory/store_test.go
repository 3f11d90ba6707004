package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

func day(s string) time.Time {
	d, _ := models.ParseDate(s)
	return d
}

func seeded() *Store {
	s := New()
	s.AddDepartment(models.Department{ID: 1, Name: "Legal"})
	s.AddRule(models.ReminderRule{ID: 1, Name: "Standard", Offsets: []int{30, 7, 1}})
	s.AddCategory(models.Category{ID: 3, Name: "Contracts"})
	s.AddRecipient(models.Recipient{ID: 1, Name: "Aisha", WhatsAppNumber: "+1555"})
	return s
}

func TestListDue_Window(t *testing.T) {
	s := seeded()
	s.AddItem(ItemRow{ID: 1, Title: "future", ExpiryDate: day("2024-06-30"), WorkflowStatus: models.StatusActive, DepartmentID: 1, ReminderRuleID: 1, CategoryID: 3})
	s.AddItem(ItemRow{ID: 2, Title: "yesterday", ExpiryDate: day("2024-06-22"), WorkflowStatus: models.StatusActive, DepartmentID: 1, ReminderRuleID: 1, CategoryID: 3})
	s.AddItem(ItemRow{ID: 3, Title: "long gone", ExpiryDate: day("2024-06-01"), WorkflowStatus: models.StatusActive, DepartmentID: 1, ReminderRuleID: 1, CategoryID: 3})
	s.AddItem(ItemRow{ID: 4, Title: "closed", ExpiryDate: day("2024-06-30"), WorkflowStatus: models.StatusClosed, DepartmentID: 1, ReminderRuleID: 1, CategoryID: 3})
	s.AddItem(ItemRow{ID: 5, Title: "dangling", ExpiryDate: day("2024-06-30"), WorkflowStatus: models.StatusActive, DepartmentID: 99, ReminderRuleID: 1, CategoryID: 3})

	items, err := s.ListDue(context.Background(), day("2024-06-23"))
	require.NoError(t, err)

	var ids []int64
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int64{1, 2, 5}, ids)
	assert.Equal(t, []int{30, 7, 1}, items[0].Offsets)
	assert.Equal(t, "Legal", items[0].DepartmentName)
	assert.Nil(t, items[2].DepartmentID)
}

func TestInsertLogEntry_OneSentPerKey(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	key := models.AttemptKey{ItemID: 1, RecipientID: 1, Offset: 7, Channel: models.ChannelWhatsApp}
	entry := func(id string, status models.LogStatus) models.LogEntry {
		return models.LogEntry{ID: id, ItemID: key.ItemID, RecipientID: key.RecipientID, Offset: key.Offset, Channel: key.Channel, Status: status}
	}

	ok, err := s.InsertLogEntry(ctx, entry("a", models.LogStatusFailed))
	require.NoError(t, err)
	assert.True(t, ok)

	prior, err := s.HasPriorAttempt(ctx, key, true)
	require.NoError(t, err)
	assert.False(t, prior, "failed entries are ignored with sentOnly")

	prior, err = s.HasPriorAttempt(ctx, key, false)
	require.NoError(t, err)
	assert.True(t, prior)

	ok, err = s.InsertLogEntry(ctx, entry("b", models.LogStatusSent))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertLogEntry(ctx, entry("c", models.LogStatusSent))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s.Entries(), 2)
}

func TestHasAnyAttempt(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	attempted, err := s.HasAnyAttempt(ctx, 1)
	require.NoError(t, err)
	assert.False(t, attempted)

	_, err = s.InsertLogEntry(ctx, models.LogEntry{ID: "a", ItemID: 1, RecipientID: 1, Offset: 7, Channel: models.ChannelTelegram, Status: models.LogStatusFailed})
	require.NoError(t, err)

	attempted, err = s.HasAnyAttempt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, attempted)

	attempted, err = s.HasAnyAttempt(ctx, 2)
	require.NoError(t, err)
	assert.False(t, attempted)
}

func TestCreateItem(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	id, err := s.CreateItem(ctx, models.NewItem{
		Title: "Lease", ExpiryDate: day("2024-12-31"), DepartmentID: 1, ReminderRuleID: 1, RecipientIDs: []int64{1},
	})
	require.NoError(t, err)

	recipients, err := s.ListRecipients(ctx, id)
	require.NoError(t, err)
	require.Len(t, recipients, 1)

	items, err := s.ListDue(ctx, day("2024-12-01"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].CategoryID)
	assert.Equal(t, int64(3), *items[0].CategoryID, "default category is the first one")
}

func TestCreateItem_MissingReferenceWritesNothing(t *testing.T) {
	s := seeded()
	_, err := s.CreateItem(context.Background(), models.NewItem{
		Title: "Lease", ExpiryDate: day("2024-12-31"), DepartmentID: 1, ReminderRuleID: 1, RecipientIDs: []int64{1, 42},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))

	views, err := s.ListItems(context.Background(), day("2024-12-01"))
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestFailOn(t *testing.T) {
	s := seeded()
	s.FailOn("ListDue", errors.New("connection reset"))

	_, err := s.ListDue(context.Background(), day("2024-06-23"))
	require.Error(t, err)
	assert.True(t, apperrors.IsDataStoreError(err))

	s.FailOn("ListDue", nil)
	_, err = s.ListDue(context.Background(), day("2024-06-23"))
	assert.NoError(t, err)
}

func TestLogSummary(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Date(2024, 6, 23, 8, 0, 0, 0, time.UTC)

	for i, st := range []models.LogStatus{models.LogStatusSent, models.LogStatusFailed, models.LogStatusSent} {
		_, err := s.InsertLogEntry(ctx, models.LogEntry{
			ID: string(rune('a' + i)), ItemID: int64(i + 1), RecipientID: 1, Channel: models.ChannelTelegram, Status: st, SentAt: now,
		})
		require.NoError(t, err)
	}

	sum, err := s.LogSummary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.ByStatus[models.LogStatusSent])
	assert.Equal(t, 1, sum.ByChannel[models.ChannelTelegram][models.LogStatusFailed])

	views, err := s.ListLogEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, int64(3), views[0].ItemID)
	assert.Equal(t, "Aisha", views[0].RecipientName)
}
