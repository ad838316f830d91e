package delivery

import (
	"bytes"
	"fmt"
	"time"

	ics "github.com/emersion/go-ical"

	"automation-engine/internal/models"
)

const inspectionEventDuration = 2 * time.Hour

// BuildInvite renders a single-event iCalendar document for the inspection
// appointment. The trigger id doubles as the event UID so re-sent invites
// update rather than duplicate in the recipient's calendar.
func BuildInvite(inspection *models.Inspection, trigger *models.Trigger) ([]byte, error) {
	if inspection.Date == nil {
		return nil, fmt.Errorf("inspection %s has no date", inspection.ID)
	}

	event := ics.NewEvent()
	event.Props.SetText(ics.PropUID, trigger.ID)
	event.Props.SetDateTime(ics.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ics.PropDateTimeStart, inspection.Date.UTC())
	event.Props.SetDateTime(ics.PropDateTimeEnd, inspection.Date.UTC().Add(inspectionEventDuration))
	event.Props.SetText(ics.PropSummary, trigger.Name)
	if inspection.Address != "" {
		event.Props.SetText(ics.PropLocation, inspection.Address)
	}

	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, "-//automation-engine//EN")
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ics.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
