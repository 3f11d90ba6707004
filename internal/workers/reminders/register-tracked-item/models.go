package registertrackeditem

type Input struct {
	Title           string  `json:"title"`
	ReferenceNumber string  `json:"referenceNumber,omitempty"`
	ExpiryDate      string  `json:"expiryDate"`
	DepartmentID    int64   `json:"departmentId"`
	ReminderRuleID  int64   `json:"reminderRuleId"`
	CategoryID      *int64  `json:"categoryId,omitempty"`
	RecipientIDs    []int64 `json:"recipientIds,omitempty"`
}

type Output struct {
	ItemID         int64  `json:"itemId"`
	WorkflowStatus string `json:"workflowStatus"`
	ExpiryDate     string `json:"expiryDate"`
}
