package models

import (
	"strconv"
	"strings"
	"time"
)

// DelayUnit is the unit of a date-relative send delay
type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

// IsValid reports whether the delay unit is recognized
func (u DelayUnit) IsValid() bool {
	return u == DelayMinutes || u == DelayHours || u == DelayDays
}

// Duration converts n units into a time.Duration
func (u DelayUnit) Duration(n int) time.Duration {
	switch u {
	case DelayMinutes:
		return time.Duration(n) * time.Minute
	case DelayHours:
		return time.Duration(n) * time.Hour
	case DelayDays:
		return time.Duration(n) * 24 * time.Hour
	default:
		return 0
	}
}

// SendTiming orients a date-relative delay around the inspection date
type SendTiming string

const (
	TimingBefore SendTiming = "before"
	TimingAfter  SendTiming = "after"
)

// DeliveryParams are the delivery settings snapshotted onto each trigger.
// Recipients, subject and body are opaque to the engine and passed through
// to the delivery collaborator; the timing fields gate when a trigger is due.
type DeliveryParams struct {
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`

	SendTiming    SendTiming `json:"send_timing,omitempty"`
	SendDelay     int        `json:"send_delay,omitempty"`
	SendDelayUnit DelayUnit  `json:"send_delay_unit,omitempty"`

	OnlyTriggerOnce bool `json:"only_trigger_once,omitempty"`

	SendDuringCertainHoursOnly bool   `json:"send_during_certain_hours_only,omitempty"`
	StartTime                  string `json:"start_time,omitempty"` // "HH:MM", company local time
	EndTime                    string `json:"end_time,omitempty"`   // "HH:MM", exclusive

	DoNotSendOnWeekends bool `json:"do_not_send_on_weekends,omitempty"`
}

// ValidClock reports whether s is a wall-clock time in "HH:MM" form
func ValidClock(s string) bool {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return false
	}
	return true
}

// Action is a company-scoped, reusable automation rule template. Matching
// actions are snapshotted onto inspections as Triggers at import time, so
// later edits or deletion of the template never affect already-attached
// triggers.
type Action struct {
	ID         string `json:"id"`
	CompanyID  string `json:"company_id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"` // grouping only

	TriggerKey TriggerKey `json:"trigger_key"`
	IsActive   bool       `json:"is_active"`

	Conditions     []Condition    `json:"conditions,omitempty"`
	ConditionLogic ConditionLogic `json:"condition_logic,omitempty"`

	Delivery DeliveryParams `json:"delivery"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
