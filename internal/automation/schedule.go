package automation

import (
	"strconv"
	"strings"
	"time"

	"automation-engine/internal/models"
)

// maxGatePasses bounds the defer loop; hour and weekend gates interact (a
// Friday-evening deferral lands on Saturday) so one pass is not enough, but
// the fixpoint is always reached within a handful of passes.
const maxGatePasses = 8

// DueAt computes the moment a trigger becomes eligible to fire, before the
// business-hour and weekend gates are applied.
//
// Event-keyed triggers are due the instant their governing event arrived; a
// trigger whose event has not arrived yet is not eligible at all.
// Date-relative triggers are due at the inspection date offset by the
// snapshotted delay; an inspection without a date keeps them out of the
// due-set until a date is assigned.
func DueAt(trigger *models.Trigger, inspection *models.Inspection) (time.Time, bool) {
	if trigger.TriggerKey.IsDateRelative() {
		if inspection.Date == nil {
			return time.Time{}, false
		}
		offset := trigger.Delivery.SendDelayUnit.Duration(trigger.Delivery.SendDelay)
		if timingFor(trigger) == models.TimingBefore {
			return inspection.Date.Add(-offset), true
		}
		return inspection.Date.Add(offset), true
	}

	if trigger.EventAt == nil {
		return time.Time{}, false
	}
	return *trigger.EventAt, true
}

// timingFor resolves the send timing, defaulting from the date-relative key
// when the action did not set one explicitly
func timingFor(trigger *models.Trigger) models.SendTiming {
	if trigger.Delivery.SendTiming != "" {
		return trigger.Delivery.SendTiming
	}
	if trigger.TriggerKey == models.KeyBeforeInspection {
		return models.TimingBefore
	}
	return models.TimingAfter
}

// ApplyGates defers a due moment past the trigger's business-hour and
// weekend constraints, evaluated in the company's local time. A due moment
// outside the send window moves to the next occurrence of the window, never
// dropped; weekends move to the next weekday at the same clock time.
func ApplyGates(due time.Time, delivery models.DeliveryParams, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := due.In(loc)

	for i := 0; i < maxGatePasses; i++ {
		adjusted := local

		if delivery.SendDuringCertainHoursOnly {
			adjusted = deferToWindow(adjusted, delivery.StartTime, delivery.EndTime)
		}
		if delivery.DoNotSendOnWeekends {
			adjusted = deferPastWeekend(adjusted)
		}

		if adjusted.Equal(local) {
			return local
		}
		local = adjusted
	}
	return local
}

// deferToWindow moves t to the next occurrence of the [start, end) clock
// window. Unparseable or empty window bounds disable the gate. A window
// with end before start spans midnight.
func deferToWindow(t time.Time, startClock, endClock string) time.Time {
	startMin, ok := parseClock(startClock)
	if !ok {
		return t
	}
	endMin, ok := parseClock(endClock)
	if !ok || startMin == endMin {
		return t
	}

	minute := t.Hour()*60 + t.Minute()

	if endMin > startMin {
		// Same-day window
		if minute >= startMin && minute < endMin {
			return t
		}
		atStart := atClock(t, startMin)
		if minute < startMin {
			return atStart
		}
		return atStart.AddDate(0, 0, 1)
	}

	// Overnight window, e.g. 22:00-06:00
	if minute >= startMin || minute < endMin {
		return t
	}
	return atClock(t, startMin)
}

// deferPastWeekend moves a Saturday or Sunday moment to the next weekday,
// preserving the clock time
func deferPastWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// IsDue reports whether an unfired trigger's gated due moment has passed.
// Terminal and in-flight statuses are always excluded; presence alone is not
// enough even when import-time de-duplication should have prevented a
// re-attach.
func IsDue(trigger *models.Trigger, inspection *models.Inspection, loc *time.Location, now time.Time) bool {
	if trigger.Status != models.StatusUnfired {
		return false
	}

	due, ok := DueAt(trigger, inspection)
	if !ok {
		return false
	}

	gated := ApplyGates(due, trigger.Delivery, loc)
	return !gated.After(now)
}

func parseClock(clock string) (int, bool) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func atClock(t time.Time, minuteOfDay int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minuteOfDay/60, minuteOfDay%60, 0, 0, t.Location())
}
