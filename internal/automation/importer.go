package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// ImportResult summarizes one import pass over an inspection
type ImportResult struct {
	// Imported is the number of triggers newly attached
	Imported int `json:"imported_count"`
	// Considered is the number of active actions examined
	Considered int `json:"-"`
	// AlreadyAttached is how many active actions already had a trigger
	AlreadyAttached int `json:"-"`
	// Matched is how many of the remaining actions matched the inspection
	Matched int `json:"-"`
}

// Reason describes a zero-import outcome for a human
func (r *ImportResult) Reason() string {
	switch {
	case r.Imported > 0:
		return ""
	case r.Considered == 0:
		return "no active actions"
	case r.Considered == r.AlreadyAttached:
		return "no new actions"
	default:
		return "no matching actions"
	}
}

// Importer materializes matching actions as trigger snapshots on an
// inspection
type Importer struct {
	store  storage.Storage
	logger logging.Logger
}

// NewImporter creates an importer backed by the given storage
func NewImporter(store storage.Storage, logger logging.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: logger.WithFields(logging.Component("importer")),
	}
}

// Attach imports the company's active actions into the inspection. Actions
// that already have a trigger on the inspection are skipped, so repeated
// calls are idempotent. Zero new imports is a valid outcome, not an error.
func (im *Importer) Attach(ctx context.Context, inspectionID string) (*ImportResult, error) {
	return im.attach(ctx, inspectionID, "", time.Time{})
}

// attach runs an import pass. When eventKey is set, newly attached triggers
// for that key are stamped with the event arrival time so they enter the
// due-set immediately.
func (im *Importer) attach(ctx context.Context, inspectionID string, eventKey models.TriggerKey, eventAt time.Time) (*ImportResult, error) {
	inspection, err := im.store.GetInspection(ctx, inspectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInspectionNotFound, inspectionID)
	}
	if err != nil {
		return nil, err
	}

	actions, err := im.store.ListActiveActions(ctx, inspection.CompanyID)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Considered: len(actions)}

	for _, action := range actions {
		if inspection.HasActionTrigger(action.ID) {
			result.AlreadyAttached++
			continue
		}

		// Fail closed: one malformed action must not block the import of
		// the others.
		matched, err := EvaluateAll(action.Conditions, action.ConditionLogic, inspection)
		if err != nil {
			im.logger.Warn("Action evaluation failed, skipping",
				logging.ActionID(action.ID),
				logging.InspectionID(inspection.ID),
				logging.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		if !matched {
			continue
		}
		result.Matched++

		trigger := snapshotAction(action)
		if eventKey != "" && action.TriggerKey == eventKey {
			at := eventAt
			trigger.EventAt = &at
		}

		appended, err := im.store.AppendTrigger(ctx, inspection.ID, &trigger)
		if errors.Is(err, storage.ErrNotFound) {
			// Inspection deleted mid-import; nothing left to attach to
			return result, nil
		}
		if err != nil {
			im.logger.Error("Failed to attach trigger", err,
				logging.ActionID(action.ID),
				logging.InspectionID(inspection.ID),
			)
			continue
		}
		if appended {
			result.Imported++
		}
	}

	im.logger.Debug("Import pass complete",
		logging.InspectionID(inspection.ID),
		logging.Field{Key: "imported", Value: result.Imported},
		logging.Field{Key: "considered", Value: result.Considered},
	)
	return result, nil
}

// snapshotAction copies everything the trigger needs from the action so
// later template edits or deletion never reach already-attached triggers
func snapshotAction(action *models.Action) models.Trigger {
	conditions := make([]models.Condition, len(action.Conditions))
	copy(conditions, action.Conditions)

	return models.Trigger{
		ID:             uuid.NewString(),
		ActionID:       action.ID,
		Name:           action.Name,
		TriggerKey:     action.TriggerKey,
		Conditions:     conditions,
		ConditionLogic: action.ConditionLogic,
		Delivery:       action.Delivery,
		CreatedAt:      time.Now().UTC(),
	}
}
