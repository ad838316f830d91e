package automation

import (
	"context"
	"errors"
	"time"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Sender delivers a fired trigger. Implementations live in the delivery
// package; the executor only cares about success or failure.
type Sender interface {
	Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error
}

// Executor fires triggers with at-most-once delivery semantics. The status
// field doubles as the idempotency guard: the storage layer only grants a
// claim to the caller that transitions it off unfired, and everyone else
// walks away without sending.
type Executor struct {
	store  storage.Storage
	sender Sender
	logger logging.Logger
}

// NewExecutor creates an executor that delivers through the given sender
func NewExecutor(store storage.Storage, sender Sender, logger logging.Logger) *Executor {
	return &Executor{
		store:  store,
		sender: sender,
		logger: logger.WithFields(logging.Component("executor")),
	}
}

// Fire attempts to fire one trigger. It returns the trigger's resulting
// status: the winner of a concurrent race reports the delivery outcome,
// losers report whatever terminal status they observed. A missing
// inspection or trigger is a quiet no-op.
func (e *Executor) Fire(ctx context.Context, inspectionID, triggerID string) (models.TriggerStatus, error) {
	inspection, err := e.store.GetInspection(ctx, inspectionID)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Debug("Inspection gone before firing, skipping",
			logging.InspectionID(inspectionID),
			logging.TriggerID(triggerID),
		)
		return models.StatusUnfired, nil
	}
	if err != nil {
		return models.StatusUnfired, err
	}

	trigger := inspection.TriggerByID(triggerID)
	if trigger == nil {
		return models.StatusUnfired, nil
	}
	if trigger.Status != models.StatusUnfired {
		return trigger.Status, nil
	}

	claimed, err := e.store.ClaimTrigger(ctx, inspectionID, triggerID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.StatusUnfired, nil
	}
	if err != nil {
		return models.StatusUnfired, err
	}
	if !claimed {
		// Someone else got there first; report what they did
		return e.observedStatus(ctx, inspectionID, triggerID), nil
	}

	sendErr := e.sender.Send(ctx, inspection, trigger)
	now := time.Now().UTC()

	if sendErr != nil {
		e.logger.Error("Trigger delivery failed", sendErr,
			logging.InspectionID(inspectionID),
			logging.TriggerID(triggerID),
			logging.Field{Key: "trigger_key", Value: string(trigger.TriggerKey)},
		)
		if err := e.store.FinalizeTrigger(ctx, inspectionID, triggerID, models.StatusFailed, nil); err != nil {
			return models.StatusFailed, err
		}
		return models.StatusFailed, nil
	}

	if err := e.store.FinalizeTrigger(ctx, inspectionID, triggerID, models.StatusSent, &now); err != nil {
		return models.StatusSent, err
	}

	e.logger.Info("Trigger fired",
		logging.InspectionID(inspectionID),
		logging.TriggerID(triggerID),
		logging.Field{Key: "trigger_key", Value: string(trigger.TriggerKey)},
	)
	return models.StatusSent, nil
}

// observedStatus re-reads the trigger after a lost claim race
func (e *Executor) observedStatus(ctx context.Context, inspectionID, triggerID string) models.TriggerStatus {
	inspection, err := e.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return models.StatusProcessing
	}
	if trigger := inspection.TriggerByID(triggerID); trigger != nil {
		return trigger.Status
	}
	return models.StatusUnfired
}
