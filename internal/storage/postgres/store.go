// Package postgres implements the reminder store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/lib/pq"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

// EnsureSchema creates missing tables, columns and the notification-log
// uniqueness index. Every statement is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return wrap("EnsureSchema", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(op, err)
	}
	return apperrors.NewDataStoreError(op, err)
}

const listDueQuery = `
	SELECT i.id, i.title, COALESCE(i.reference_number, ''), i.expiry_date, i.workflow_status,
	       d.id, COALESCE(d.name, ''), r.id, COALESCE(r.name, ''), r.offsets, c.id
	FROM items i
	LEFT JOIN departments d ON d.id = i.department_id
	LEFT JOIN reminder_rules r ON r.id = i.reminder_rule_id
	LEFT JOIN categories c ON c.id = i.category_id
	WHERE i.workflow_status NOT IN ('expired', 'closed')
	  AND i.expiry_date >= $1::date - 1
	ORDER BY i.id`

func (s *Store) ListDue(ctx context.Context, date time.Time) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, listDueQuery, date.Format(models.DateLayout))
	if err != nil {
		return nil, wrap("ListDue", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			item                       models.Item
			status                     string
			deptID, ruleID, categoryID sql.NullInt64
			offsets                    []int64
		)
		if err := rows.Scan(
			&item.ID, &item.Title, &item.ReferenceNumber, &item.ExpiryDate, &status,
			&deptID, &item.DepartmentName, &ruleID, &item.RuleName, pq.Array(&offsets), &categoryID,
		); err != nil {
			return nil, wrap("ListDue", err)
		}

		item.ExpiryDate = models.DateOf(item.ExpiryDate)
		item.WorkflowStatus = models.WorkflowStatus(status)
		item.DepartmentID = nullable(deptID)
		item.ReminderRuleID = nullable(ruleID)
		item.CategoryID = nullable(categoryID)
		if item.ReminderRuleID != nil {
			item.Offsets = make([]int, len(offsets))
			for i, o := range offsets {
				item.Offsets[i] = int(o)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListDue", err)
	}
	return items, nil
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func (s *Store) ListRecipients(ctx context.Context, itemID int64) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, COALESCE(r.whatsapp_number, ''), COALESCE(r.telegram_chat_id, '')
		FROM item_recipients ir
		JOIN recipients r ON r.id = ir.recipient_id
		WHERE ir.item_id = $1
		ORDER BY r.id`, itemID)
	if err != nil {
		return nil, wrap("ListRecipients", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.WhatsAppNumber, &r.TelegramChatID); err != nil {
			return nil, wrap("ListRecipients", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListRecipients", err)
	}
	return out, nil
}

func (s *Store) HasPriorAttempt(ctx context.Context, key models.AttemptKey, sentOnly bool) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_log
			WHERE item_id = $1 AND recipient_id = $2 AND offset_days = $3 AND channel = $4
			  AND (NOT $5 OR status = 'sent')
		)`, key.ItemID, key.RecipientID, key.Offset, string(key.Channel), sentOnly).Scan(&exists)
	if err != nil {
		return false, wrap("HasPriorAttempt", err)
	}
	return exists, nil
}

func (s *Store) HasAnyAttempt(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notification_log WHERE item_id = $1)`, itemID).Scan(&exists)
	if err != nil {
		return false, wrap("HasAnyAttempt", err)
	}
	return exists, nil
}

// InsertLogEntry writes entry in a single statement. The partial unique index
// on sent entries turns a concurrent duplicate into a no-op.
func (s *Store) InsertLogEntry(ctx context.Context, entry models.LogEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_log (
			id, batch_id, item_id, recipient_id, channel, offset_days,
			status, attempts, message, provider_message_id, error_detail, sent_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)
		ON CONFLICT DO NOTHING`,
		entry.ID,
		entry.BatchID,
		entry.ItemID,
		entry.RecipientID,
		string(entry.Channel),
		entry.Offset,
		string(entry.Status),
		entry.Attempts,
		entry.Message,
		entry.ProviderMessageID,
		entry.ErrorDetail,
		entry.SentAt,
	)
	if err != nil {
		return false, apperrors.NewDatabaseInsertFailedError("InsertLogEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewDatabaseInsertFailedError("InsertLogEntry", err)
	}
	return n == 1, nil
}

func (s *Store) ActiveTemplates(ctx context.Context) (map[models.ChannelName]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, body FROM message_templates WHERE is_active`)
	if err != nil {
		return nil, wrap("ActiveTemplates", err)
	}
	defer rows.Close()

	out := make(map[models.ChannelName]string)
	for rows.Next() {
		var channel, body string
		if err := rows.Scan(&channel, &body); err != nil {
			return nil, wrap("ActiveTemplates", err)
		}
		out[models.ChannelName(channel)] = body
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ActiveTemplates", err)
	}
	return out, nil
}
