package registry

import "encoding/json"

// ActivityRegistry describes the service tasks this service can execute, for
// BPMN modelers wiring them into processes.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	TaskType        string          `json:"taskType"`
	InputSchema     json.RawMessage `json:"inputSchema,omitempty"`
	OutputVariables []string        `json:"outputVariables"`
	ErrorCodes      []string        `json:"errorCodes"`
	Timeout         string          `json:"timeout"`
	Retries         int             `json:"retries"`
	Tags            []string        `json:"tags,omitempty"`
}
