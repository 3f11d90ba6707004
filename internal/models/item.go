package models

import "time"

// WorkflowStatus is the externally driven lifecycle of an item. The reminder
// engine reads it and never writes it.
type WorkflowStatus string

const (
	StatusActive       WorkflowStatus = "active"
	StatusReminderSent WorkflowStatus = "reminder_sent"
	StatusExpired      WorkflowStatus = "expired"
	StatusClosed       WorkflowStatus = "closed"
)

// Terminal reports whether no further reminders can fire for the status.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusExpired || s == StatusClosed
}

// Item is a tracked contract or transaction. Reference ids are nil when the
// stored row points at a missing department, rule or category.
type Item struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	ReferenceNumber string         `json:"referenceNumber,omitempty"`
	ExpiryDate      time.Time      `json:"expiryDate"`
	WorkflowStatus  WorkflowStatus `json:"workflowStatus"`
	DepartmentID    *int64         `json:"departmentId,omitempty"`
	DepartmentName  string         `json:"departmentName,omitempty"`
	ReminderRuleID  *int64         `json:"reminderRuleId,omitempty"`
	RuleName        string         `json:"ruleName,omitempty"`
	Offsets         []int          `json:"offsets,omitempty"`
	CategoryID      *int64         `json:"categoryId,omitempty"`
}

type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ReminderRule is a named set of day offsets before expiry.
type ReminderRule struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Offsets []int  `json:"offsets"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NewItem is a registration request: the item plus the recipients to link.
// A nil CategoryID selects the default category.
type NewItem struct {
	Title           string    `json:"title"`
	ReferenceNumber string    `json:"referenceNumber,omitempty"`
	ExpiryDate      time.Time `json:"expiryDate"`
	DepartmentID    int64     `json:"departmentId"`
	ReminderRuleID  int64     `json:"reminderRuleId"`
	CategoryID      *int64    `json:"categoryId,omitempty"`
	RecipientIDs    []int64   `json:"recipientIds"`
}

// ItemView is the dashboard projection of an item.
type ItemView struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	ReferenceNumber string         `json:"referenceNumber,omitempty"`
	ExpiryDate      string         `json:"expiryDate"`
	WorkflowStatus  WorkflowStatus `json:"workflowStatus"`
	DepartmentName  string         `json:"departmentName,omitempty"`
	DaysLeft        int            `json:"daysLeft"`
	Offsets         []int          `json:"offsets,omitempty"`
	NextReminder    *NextReminder  `json:"nextReminder,omitempty"`
}

// NextReminder is the next date an item fires and the offset it fires for.
type NextReminder struct {
	Date   string `json:"date"`
	Offset int    `json:"offset"`
}
