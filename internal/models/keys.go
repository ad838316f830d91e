// Package models defines the domain types shared by the automation engine:
// actions, conditions, triggers, and the inspection snapshot they evaluate
// against.
package models

// TriggerKey identifies the event or date anchor that makes a trigger
// eligible to fire. The set is a closed wire-level contract; producers of
// these events live outside this service.
type TriggerKey string

const (
	// KeyInspectionScheduled fires when an inspection is scheduled
	KeyInspectionScheduled TriggerKey = "INSPECTION_SCHEDULED"
	// KeyInspectionEventCreated fires when an event is added to an inspection
	KeyInspectionEventCreated TriggerKey = "INSPECTION_EVENT_CREATED"
	// KeyPaymentCompleted fires when payment for an inspection completes
	KeyPaymentCompleted TriggerKey = "PAYMENT_COMPLETED"
	// KeyBeforeInspection is date-relative: due before the inspection date
	KeyBeforeInspection TriggerKey = "BEFORE_INSPECTION"
	// KeyAfterInspection is date-relative: due after the inspection date
	KeyAfterInspection TriggerKey = "AFTER_INSPECTION"
)

// TriggerKeys lists every recognized trigger key
var TriggerKeys = []TriggerKey{
	KeyInspectionScheduled,
	KeyInspectionEventCreated,
	KeyPaymentCompleted,
	KeyBeforeInspection,
	KeyAfterInspection,
}

// IsValid reports whether the key is a member of the closed enum
func (k TriggerKey) IsValid() bool {
	for _, known := range TriggerKeys {
		if k == known {
			return true
		}
	}
	return false
}

// IsDateRelative reports whether the key is anchored to the inspection date
// rather than a discrete event. Date-relative keys are consumed only by the
// scheduler sweep; they never fire off an incoming event.
func (k TriggerKey) IsDateRelative() bool {
	return k == KeyBeforeInspection || k == KeyAfterInspection
}
