package models

import "time"

// ActionKind is what the sweep decided to do with a resource
type ActionKind string

const (
	ActionStop  ActionKind = "stop"
	ActionStart ActionKind = "start"
	ActionSkip  ActionKind = "skip"
)

// ActionOutcome records one attempted action. Every evaluated resource
// produces exactly one per sweep; outcomes are returned, never stored by
// the orchestrator itself.
type ActionOutcome struct {
	ResourceID   string       `json:"resource_id"`
	ResourceType ResourceKind `json:"resource_type"`
	Action       ActionKind   `json:"action"`
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
}

// SweepReport is the result of one full evaluation pass over the fleet
type SweepReport struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcomes   []ActionOutcome `json:"outcomes"`
}

// Actions flattens the report into the audit log: one human-readable line
// per resource, in evaluation order.
func (r *SweepReport) Actions() []string {
	actions := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		actions = append(actions, o.Message)
	}
	return actions
}

// Stops counts issued stop actions (successful or not)
func (r *SweepReport) Stops() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == ActionStop {
			n++
		}
	}
	return n
}

// StartResult is the synchronous answer to a caller-initiated start
type StartResult struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Resource   string `json:"resource,omitempty"`
	Type       string `json:"type,omitempty"`
}

// OK reports whether the start request was accepted by the provider
func (s StartResult) OK() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}
