// Package memory is an in-process reminder store for engine, API and worker tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

// ItemRow is an item as stored: reference ids may point at rows that do not
// exist, as they can in a database without foreign keys.
type ItemRow struct {
	ID              int64
	Title           string
	ReferenceNumber string
	ExpiryDate      time.Time
	WorkflowStatus  models.WorkflowStatus
	DepartmentID    int64
	ReminderRuleID  int64
	CategoryID      int64
}

type Store struct {
	mu          sync.RWMutex
	items       map[int64]ItemRow
	departments map[int64]models.Department
	rules       map[int64]models.ReminderRule
	categories  map[int64]models.Category
	recipients  map[int64]models.Recipient
	links       map[int64][]int64
	templates   map[models.ChannelName]string
	entries     []models.LogEntry
	nextItemID  int64
	failures    map[string]error
}

func New() *Store {
	return &Store{
		items:       make(map[int64]ItemRow),
		departments: make(map[int64]models.Department),
		rules:       make(map[int64]models.ReminderRule),
		categories:  make(map[int64]models.Category),
		recipients:  make(map[int64]models.Recipient),
		links:       make(map[int64][]int64),
		templates:   make(map[models.ChannelName]string),
		failures:    make(map[string]error),
	}
}

func (s *Store) AddDepartment(d models.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

func (s *Store) AddRule(r models.ReminderRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
}

func (s *Store) AddCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *Store) AddRecipient(r models.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
}

// AddItem stores row as is and links the given recipients.
func (s *Store) AddItem(row ItemRow, recipientIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[row.ID] = row
	s.links[row.ID] = append([]int64(nil), recipientIDs...)
	if row.ID > s.nextItemID {
		s.nextItemID = row.ID
	}
}

// SetTemplate makes body the active template for ch.
func (s *Store) SetTemplate(ch models.ChannelName, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[ch] = body
}

// FailOn makes the named operation return err wrapped as a data store error.
// A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return apperrors.NewDataStoreError(op, err)
	}
	return nil
}

// Entries returns a copy of the notification log in insertion order.
func (s *Store) Entries() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry(nil), s.entries...)
}

func (s *Store) ListDue(ctx context.Context, date time.Time) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListDue"); err != nil {
		return nil, err
	}

	cutoff := models.DateOf(date).AddDate(0, 0, -1)
	var out []models.Item
	for _, row := range s.items {
		if row.WorkflowStatus.Terminal() || models.DateOf(row.ExpiryDate).Before(cutoff) {
			continue
		}
		out = append(out, s.resolve(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) resolve(row ItemRow) models.Item {
	item := models.Item{
		ID:              row.ID,
		Title:           row.Title,
		ReferenceNumber: row.ReferenceNumber,
		ExpiryDate:      models.DateOf(row.ExpiryDate),
		WorkflowStatus:  row.WorkflowStatus,
	}
	if d, ok := s.departments[row.DepartmentID]; ok {
		id := d.ID
		item.DepartmentID = &id
		item.DepartmentName = d.Name
	}
	if r, ok := s.rules[row.ReminderRuleID]; ok {
		id := r.ID
		item.ReminderRuleID = &id
		item.RuleName = r.Name
		item.Offsets = append([]int(nil), r.Offsets...)
	}
	if c, ok := s.categories[row.CategoryID]; ok {
		id := c.ID
		item.CategoryID = &id
	}
	return item
}

func (s *Store) ListRecipients(ctx context.Context, itemID int64) ([]models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListRecipients"); err != nil {
		return nil, err
	}

	var out []models.Recipient
	for _, id := range s.links[itemID] {
		if r, ok := s.recipients[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) HasPriorAttempt(ctx context.Context, key models.AttemptKey, sentOnly bool) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("HasPriorAttempt"); err != nil {
		return false, err
	}

	for _, e := range s.entries {
		if e.Key() != key {
			continue
		}
		if !sentOnly || e.Status == models.LogStatusSent {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HasAnyAttempt(ctx context.Context, itemID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("HasAnyAttempt"); err != nil {
		return false, err
	}

	for _, e := range s.entries {
		if e.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

// InsertLogEntry enforces the same uniqueness as the database index: one
// sent entry per attempt key.
func (s *Store) InsertLogEntry(ctx context.Context, entry models.LogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertLogEntry"); err != nil {
		return false, err
	}

	if entry.Status == models.LogStatusSent {
		for _, e := range s.entries {
			if e.Status == models.LogStatusSent && e.Key() == entry.Key() {
				return false, nil
			}
		}
	}
	s.entries = append(s.entries, entry)
	return true, nil
}

func (s *Store) ActiveTemplates(ctx context.Context) (map[models.ChannelName]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ActiveTemplates"); err != nil {
		return nil, err
	}

	out := make(map[models.ChannelName]string, len(s.templates))
	for k, v := range s.templates {
		out[k] = v
	}
	return out, nil
}

// CreateItem validates every reference before writing anything.
func (s *Store) CreateItem(ctx context.Context, in models.NewItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateItem"); err != nil {
		return 0, err
	}

	if _, ok := s.departments[in.DepartmentID]; !ok {
		return 0, apperrors.NewReferenceNotFoundError("department", in.DepartmentID)
	}
	if _, ok := s.rules[in.ReminderRuleID]; !ok {
		return 0, apperrors.NewReferenceNotFoundError("reminder_rule", in.ReminderRuleID)
	}
	categoryID, err := s.categoryFor(in.CategoryID)
	if err != nil {
		return 0, err
	}
	for _, id := range in.RecipientIDs {
		if _, ok := s.recipients[id]; !ok {
			return 0, apperrors.NewReferenceNotFoundError("recipient", id)
		}
	}

	s.nextItemID++
	row := ItemRow{
		ID:              s.nextItemID,
		Title:           in.Title,
		ReferenceNumber: in.ReferenceNumber,
		ExpiryDate:      models.DateOf(in.ExpiryDate),
		WorkflowStatus:  models.StatusActive,
		DepartmentID:    in.DepartmentID,
		ReminderRuleID:  in.ReminderRuleID,
		CategoryID:      categoryID,
	}
	s.items[row.ID] = row
	s.links[row.ID] = append([]int64(nil), in.RecipientIDs...)
	return row.ID, nil
}

func (s *Store) categoryFor(id *int64) (int64, error) {
	if id != nil {
		if _, ok := s.categories[*id]; !ok {
			return 0, apperrors.NewReferenceNotFoundError("category", *id)
		}
		return *id, nil
	}
	var first int64
	for cid := range s.categories {
		if first == 0 || cid < first {
			first = cid
		}
	}
	if first == 0 {
		return 0, apperrors.NewReferenceNotFoundError("category", 0)
	}
	return first, nil
}

func (s *Store) ListItems(ctx context.Context, date time.Time) ([]models.ItemView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListItems"); err != nil {
		return nil, err
	}

	out := make([]models.ItemView, 0, len(s.items))
	for _, row := range s.items {
		item := s.resolve(row)
		out = append(out, models.ItemView{
			ID:              item.ID,
			Title:           item.Title,
			ReferenceNumber: item.ReferenceNumber,
			ExpiryDate:      item.ExpiryDate.Format(models.DateLayout),
			WorkflowStatus:  item.WorkflowStatus,
			DepartmentName:  item.DepartmentName,
			DaysLeft:        models.DaysBetween(date, item.ExpiryDate),
			Offsets:         item.Offsets,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiryDate != out[j].ExpiryDate {
			return out[i].ExpiryDate < out[j].ExpiryDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListLogEntries returns the newest entries first.
func (s *Store) ListLogEntries(ctx context.Context, limit int) ([]models.LogView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListLogEntries"); err != nil {
		return nil, err
	}

	out := make([]models.LogView, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		out = append(out, models.LogView{
			LogEntry:      e,
			ItemTitle:     s.items[e.ItemID].Title,
			RecipientName: s.recipients[e.RecipientID].Name,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LogSummary(ctx context.Context, since time.Time) (models.LogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("LogSummary"); err != nil {
		return models.LogSummary{}, err
	}

	sum := models.LogSummary{
		Since:     since,
		ByStatus:  make(map[models.LogStatus]int),
		ByChannel: make(map[models.ChannelName]map[models.LogStatus]int),
	}
	for _, e := range s.entries {
		if e.SentAt.Before(since) {
			continue
		}
		sum.Total++
		sum.ByStatus[e.Status]++
		if sum.ByChannel[e.Channel] == nil {
			sum.ByChannel[e.Channel] = make(map[models.LogStatus]int)
		}
		sum.ByChannel[e.Channel][e.Status]++
	}
	return sum, nil
}
