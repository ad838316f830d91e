package models

import "time"

// TriggerStatus is the execution state of a materialized trigger.
//
// The empty status means unfired. Claiming moves a trigger to processing;
// the claimer finalizes it to sent, failed or skipped. Sent, failed and
// skipped are terminal.
type TriggerStatus string

const (
	// StatusUnfired is the zero value: the trigger has not been claimed
	StatusUnfired TriggerStatus = ""
	// StatusProcessing marks a claimed trigger whose delivery is in flight
	StatusProcessing TriggerStatus = "processing"
	// StatusSent marks a successful delivery
	StatusSent TriggerStatus = "sent"
	// StatusSkipped marks a trigger deliberately not delivered
	StatusSkipped TriggerStatus = "skipped"
	// StatusFailed marks a delivery failure; failures are not retried
	StatusFailed TriggerStatus = "failed"
)

// Terminal reports whether the status can no longer change
func (s TriggerStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusSkipped
}

// Trigger is a per-inspection, point-in-time snapshot of an Action. The
// condition list, logic and delivery parameters are copied at import time and
// never re-read from the Action, so template edits do not retroactively
// change attached triggers. Triggers live embedded on the inspection record
// and travel with its lifecycle.
type Trigger struct {
	ID       string `json:"id"`
	ActionID string `json:"action_id"`
	Name     string `json:"name"`

	TriggerKey     TriggerKey     `json:"trigger_key"`
	Conditions     []Condition    `json:"conditions,omitempty"`
	ConditionLogic ConditionLogic `json:"condition_logic,omitempty"`
	Delivery       DeliveryParams `json:"delivery"`

	// EventAt records when the governing event arrived for event-keyed
	// triggers. It stays nil until then, which keeps the trigger out of the
	// sweep's due-set; date-relative triggers never set it.
	EventAt *time.Time `json:"event_at,omitempty"`

	Status TriggerStatus `json:"status,omitempty"`
	SentAt *time.Time    `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
