package automation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
)

func newTestService(t *testing.T, sender *captureSender) (*Service, *captureSender) {
	t.Helper()
	if sender == nil {
		sender = &captureSender{}
	}
	store := seedStore(t)
	service := NewService(store, sender, logging.NewDefaultLogger())
	return service, sender
}

// exclusionWindow returns a same-day clock window guaranteed not to contain
// now, so gated triggers always defer
func exclusionWindow(now time.Time) (string, string) {
	clock := func(t time.Time) string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }
	if now.Hour() >= 21 {
		return clock(now.Add(-3 * time.Hour)), clock(now.Add(-2 * time.Hour))
	}
	return clock(now.Add(2 * time.Hour)), clock(now.Add(3 * time.Hour))
}

func TestServiceProcessEventFiresImmediately(t *testing.T) {
	ctx := context.Background()
	service, sender := newTestService(t, nil)

	seedAction(t, service.store, &models.Action{
		ID:         "act-sched",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
	})

	require.NoError(t, service.ProcessEvent(ctx, "insp-1", models.KeyInspectionScheduled))

	assert.Equal(t, 1, sender.deliveries())

	inspection, err := service.store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.Len(t, inspection.Triggers, 1)
	assert.Equal(t, models.StatusSent, inspection.Triggers[0].Status)
	require.NotNil(t, inspection.Triggers[0].EventAt)
}

func TestServiceProcessEventRepeatDoesNotResend(t *testing.T) {
	ctx := context.Background()
	service, sender := newTestService(t, nil)

	seedAction(t, service.store, &models.Action{
		ID:         "act-sched",
		CompanyID:  "co-1",
		Name:       "Scheduling confirmation",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
	})

	require.NoError(t, service.ProcessEvent(ctx, "insp-1", models.KeyInspectionScheduled))
	require.NoError(t, service.ProcessEvent(ctx, "insp-1", models.KeyInspectionScheduled))

	assert.Equal(t, 1, sender.deliveries())
}

func TestServiceProcessEventRejectsDateRelativeKey(t *testing.T) {
	service, _ := newTestService(t, nil)

	err := service.ProcessEvent(context.Background(), "insp-1", models.KeyBeforeInspection)
	assert.Error(t, err)

	err = service.ProcessEvent(context.Background(), "insp-1", "NOT_A_KEY")
	assert.Error(t, err)
}

func TestServiceProcessEventDefersGatedTrigger(t *testing.T) {
	ctx := context.Background()
	service, sender := newTestService(t, nil)

	start, end := exclusionWindow(time.Now().UTC())
	seedAction(t, service.store, &models.Action{
		ID:         "act-gated",
		CompanyID:  "co-1",
		Name:       "Payment receipt",
		TriggerKey: models.KeyPaymentCompleted,
		IsActive:   true,
		Delivery: models.DeliveryParams{
			SendDuringCertainHoursOnly: true,
			StartTime:                  start,
			EndTime:                    end,
		},
	})

	require.NoError(t, service.ProcessEvent(ctx, "insp-1", models.KeyPaymentCompleted))

	// Gate held it back: attached, event recorded, nothing delivered
	assert.Equal(t, 0, sender.deliveries())

	inspection, err := service.store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	require.Len(t, inspection.Triggers, 1)
	trigger := inspection.Triggers[0]
	assert.Equal(t, models.StatusUnfired, trigger.Status)
	require.NotNil(t, trigger.EventAt)

	// The later sweep picks it up once the window has passed
	fired, err := service.Sweep(ctx, time.Now().UTC().Add(26*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, sender.deliveries())
}

func TestServiceSweepFiresDateRelativeTriggers(t *testing.T) {
	ctx := context.Background()
	service, sender := newTestService(t, nil)

	date := time.Now().UTC().Add(-48 * time.Hour)
	inspection, err := service.store.GetInspection(ctx, "insp-1")
	require.NoError(t, err)
	inspection.Date = &date
	require.NoError(t, service.store.SaveInspection(ctx, inspection))

	seedAction(t, service.store, &models.Action{
		ID:         "act-followup",
		CompanyID:  "co-1",
		Name:       "Report follow-up",
		TriggerKey: models.KeyAfterInspection,
		IsActive:   true,
		Delivery:   models.DeliveryParams{SendDelay: 1, SendDelayUnit: models.DelayDays},
	})

	result, err := service.Attach(ctx, "insp-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)

	fired, err := service.Sweep(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, sender.deliveries())

	// A second sweep finds nothing left to do
	fired, err = service.Sweep(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, sender.deliveries())
}

func TestServiceDue(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	attachTrigger(t, service.store, &models.Trigger{
		ID: "trig-due", ActionID: "act-1", TriggerKey: models.KeyPaymentCompleted, EventAt: &past,
	})
	attachTrigger(t, service.store, &models.Trigger{
		ID: "trig-later", ActionID: "act-2", TriggerKey: models.KeyPaymentCompleted, EventAt: &future,
	})

	due, err := service.Due(ctx, "insp-1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "trig-due", due[0].ID)

	_, err = service.Due(ctx, "insp-gone", time.Now().UTC())
	assert.ErrorIs(t, err, ErrInspectionNotFound)
}
