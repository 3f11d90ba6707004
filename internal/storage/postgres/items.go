package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

// CreateItem resolves every reference, then inserts the item and its
// recipient links in one transaction. A missing reference writes nothing.
func (s *Store) CreateItem(ctx context.Context, in models.NewItem) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("CreateItem", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := requireRow(ctx, tx, `SELECT id FROM departments WHERE id = $1`, in.DepartmentID, "department"); err != nil {
		return 0, err
	}
	if err := requireRow(ctx, tx, `SELECT id FROM reminder_rules WHERE id = $1`, in.ReminderRuleID, "reminder_rule"); err != nil {
		return 0, err
	}

	var categoryID int64
	if in.CategoryID != nil {
		if err := requireRow(ctx, tx, `SELECT id FROM categories WHERE id = $1`, *in.CategoryID, "category"); err != nil {
			return 0, err
		}
		categoryID = *in.CategoryID
	} else {
		err := tx.QueryRowContext(ctx, `SELECT id FROM categories ORDER BY id LIMIT 1`).Scan(&categoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.NewReferenceNotFoundError("category", 0)
		}
		if err != nil {
			return 0, wrap("CreateItem", err)
		}
	}

	if err := requireRecipients(ctx, tx, in.RecipientIDs); err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (title, reference_number, expiry_date, workflow_status, department_id, reminder_rule_id, category_id)
		VALUES ($1, NULLIF($2, ''), $3::date, 'active', $4, $5, $6)
		RETURNING id`,
		in.Title, in.ReferenceNumber, in.ExpiryDate.Format(models.DateLayout), in.DepartmentID, in.ReminderRuleID, categoryID,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.NewDatabaseInsertFailedError("CreateItem", err)
	}

	if len(in.RecipientIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO item_recipients (item_id, recipient_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING`, id, pq.Array(in.RecipientIDs)); err != nil {
			return 0, apperrors.NewDatabaseInsertFailedError("CreateItem", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrap("CreateItem", err)
	}
	return id, nil
}

func requireRow(ctx context.Context, tx *sql.Tx, query string, id int64, kind string) error {
	var found int64
	err := tx.QueryRowContext(ctx, query, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewReferenceNotFoundError(kind, id)
	}
	if err != nil {
		return wrap("CreateItem", err)
	}
	return nil
}

func requireRecipients(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM recipients WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return wrap("CreateItem", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return wrap("CreateItem", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return wrap("CreateItem", err)
	}
	for _, id := range ids {
		if !found[id] {
			return apperrors.NewReferenceNotFoundError("recipient", id)
		}
	}
	return nil
}

// ListItems is the dashboard view: every item with its department and the
// days left as of date.
func (s *Store) ListItems(ctx context.Context, date time.Time) ([]models.ItemView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, COALESCE(i.reference_number, ''), i.expiry_date, i.workflow_status, COALESCE(d.name, ''), r.offsets
		FROM items i
		LEFT JOIN departments d ON d.id = i.department_id
		LEFT JOIN reminder_rules r ON r.id = i.reminder_rule_id
		ORDER BY i.expiry_date, i.id`)
	if err != nil {
		return nil, wrap("ListItems", err)
	}
	defer rows.Close()

	var out []models.ItemView
	for rows.Next() {
		var (
			v       models.ItemView
			expiry  time.Time
			status  string
			offsets []int64
		)
		if err := rows.Scan(&v.ID, &v.Title, &v.ReferenceNumber, &expiry, &status, &v.DepartmentName, pq.Array(&offsets)); err != nil {
			return nil, wrap("ListItems", err)
		}
		for _, o := range offsets {
			v.Offsets = append(v.Offsets, int(o))
		}
		v.ExpiryDate = models.DateOf(expiry).Format(models.DateLayout)
		v.WorkflowStatus = models.WorkflowStatus(status)
		v.DaysLeft = models.DaysBetween(date, expiry)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListItems", err)
	}
	return out, nil
}

func (s *Store) ListLogEntries(ctx context.Context, limit int) ([]models.LogView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, COALESCE(l.batch_id, ''), l.item_id, l.recipient_id, l.channel, l.offset_days,
		       l.status, l.attempts, COALESCE(l.message, ''), COALESCE(l.provider_message_id, ''),
		       COALESCE(l.error_detail, ''), l.sent_at, COALESCE(i.title, ''), COALESCE(r.name, '')
		FROM notification_log l
		LEFT JOIN items i ON i.id = l.item_id
		LEFT JOIN recipients r ON r.id = l.recipient_id
		ORDER BY l.sent_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("ListLogEntries", err)
	}
	defer rows.Close()

	var out []models.LogView
	for rows.Next() {
		var (
			v               models.LogView
			channel, status string
		)
		if err := rows.Scan(
			&v.ID, &v.BatchID, &v.ItemID, &v.RecipientID, &channel, &v.Offset,
			&status, &v.Attempts, &v.Message, &v.ProviderMessageID,
			&v.ErrorDetail, &v.SentAt, &v.ItemTitle, &v.RecipientName,
		); err != nil {
			return nil, wrap("ListLogEntries", err)
		}
		v.Channel = models.ChannelName(channel)
		v.Status = models.LogStatus(status)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListLogEntries", err)
	}
	return out, nil
}

func (s *Store) LogSummary(ctx context.Context, since time.Time) (models.LogSummary, error) {
	sum := models.LogSummary{
		Since:     since,
		ByStatus:  make(map[models.LogStatus]int),
		ByChannel: make(map[models.ChannelName]map[models.LogStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, status, COUNT(*)
		FROM notification_log
		WHERE sent_at >= $1
		GROUP BY channel, status`, since)
	if err != nil {
		return sum, wrap("LogSummary", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			channel, status string
			n               int
		)
		if err := rows.Scan(&channel, &status, &n); err != nil {
			return sum, wrap("LogSummary", err)
		}
		ch, st := models.ChannelName(channel), models.LogStatus(status)
		sum.Total += n
		sum.ByStatus[st] += n
		if sum.ByChannel[ch] == nil {
			sum.ByChannel[ch] = make(map[models.LogStatus]int)
		}
		sum.ByChannel[ch][st] += n
	}
	if err := rows.Err(); err != nil {
		return sum, wrap("LogSummary", err)
	}
	return sum, nil
}
