package models

import (
	"fmt"
	"time"
)

type LogStatus string

const (
	LogStatusSent   LogStatus = "sent"
	LogStatusFailed LogStatus = "failed"
)

// AttemptKey identifies the unit of at-most-one dispatch.
type AttemptKey struct {
	ItemID      int64       `json:"itemId"`
	RecipientID int64       `json:"recipientId"`
	Offset      int         `json:"offset"`
	Channel     ChannelName `json:"channel"`
}

func (k AttemptKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s", k.ItemID, k.RecipientID, k.Offset, k.Channel)
}

// LogEntry is one row of the append-only notification log.
type LogEntry struct {
	ID                string      `json:"id"`
	BatchID           string      `json:"batchId,omitempty"`
	ItemID            int64       `json:"itemId"`
	RecipientID       int64       `json:"recipientId"`
	Channel           ChannelName `json:"channel"`
	Offset            int         `json:"offset"`
	Status            LogStatus   `json:"status"`
	Attempts          int         `json:"attempts"`
	Message           string      `json:"message,omitempty"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	ErrorDetail       string      `json:"errorDetail,omitempty"`
	SentAt            time.Time   `json:"sentAt"`
}

func (e LogEntry) Key() AttemptKey {
	return AttemptKey{ItemID: e.ItemID, RecipientID: e.RecipientID, Offset: e.Offset, Channel: e.Channel}
}

// LogView is a log entry joined with the names shown on the dashboard.
type LogView struct {
	LogEntry
	ItemTitle     string `json:"itemTitle"`
	RecipientName string `json:"recipientName"`
}

// LogSummary aggregates log entries since a point in time.
type LogSummary struct {
	Since     time.Time                         `json:"since"`
	Total     int                               `json:"total"`
	ByStatus  map[LogStatus]int                 `json:"byStatus"`
	ByChannel map[ChannelName]map[LogStatus]int `json:"byChannel"`
}

// MessageTemplate is a per-channel template. At most one is active per channel.
type MessageTemplate struct {
	ID       int64       `json:"id"`
	Channel  ChannelName `json:"channel"`
	Body     string      `json:"body"`
	IsActive bool        `json:"isActive"`
}
