package dispatchexpiryreminders

type Input struct {
	// Date is the evaluation date (YYYY-MM-DD); empty means today.
	Date   string `json:"date,omitempty"`
	DryRun bool   `json:"dryRun,omitempty"`
}

type Output struct {
	BatchID       string         `json:"reminderBatchId"`
	Date          string         `json:"reminderDate"`
	DryRun        bool           `json:"reminderDryRun"`
	Evaluated     int            `json:"remindersEvaluated"`
	Due           int            `json:"remindersDue"`
	Sent          int            `json:"remindersSent"`
	Failed        int            `json:"remindersFailed"`
	Skipped       map[string]int `json:"remindersSkipped,omitempty"`
	Misconfigured []int64        `json:"misconfiguredItemIds,omitempty"`
	Missed        []int64        `json:"missedItemIds,omitempty"`
}
