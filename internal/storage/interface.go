// Package storage defines the persistence contract for the automation
// engine. Triggers are stored embedded within the inspection record so they
// travel with the inspection's lifecycle; all trigger mutations are targeted,
// atomic operations rather than full-document overwrites.
package storage

import (
	"context"
	"errors"
	"time"

	"automation-engine/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a create collides with an existing id
	ErrDuplicate = errors.New("record already exists")
)

// Storage is the persistence interface the engine runs against.
//
// AppendTrigger, ClaimTrigger and FinalizeTrigger are the only writers of the
// embedded trigger array and each must be implemented as a single atomic
// storage operation: AppendTrigger deduplicates by action id against the
// freshest state, ClaimTrigger is the compare-and-swap that makes concurrent
// firing safe, and FinalizeTrigger records the terminal outcome.
type Storage interface {
	Close() error
	Health(ctx context.Context) error

	// Companies
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)

	// Reference data used by condition validation
	SaveService(ctx context.Context, service *models.Service) error
	GetService(ctx context.Context, companyID, id string) (*models.Service, error)
	SaveCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, companyID, id string) (*models.Category, error)

	// Actions
	CreateAction(ctx context.Context, action *models.Action) error
	GetAction(ctx context.Context, companyID, id string) (*models.Action, error)
	ListActions(ctx context.Context, companyID string) ([]*models.Action, error)
	ListActiveActions(ctx context.Context, companyID string) ([]*models.Action, error)
	UpdateAction(ctx context.Context, action *models.Action) error
	DeleteAction(ctx context.Context, companyID, id string) error

	// Inspections. SaveInspection upserts the externally-owned snapshot
	// fields and never touches the embedded trigger array of an existing
	// record.
	SaveInspection(ctx context.Context, inspection *models.Inspection) error
	GetInspection(ctx context.Context, id string) (*models.Inspection, error)
	DeleteInspection(ctx context.Context, id string) error

	// AppendTrigger attaches a trigger unless one for the same action id is
	// already present. Returns true when the trigger was appended.
	AppendTrigger(ctx context.Context, inspectionID string, trigger *models.Trigger) (bool, error)

	// ClaimTrigger atomically moves a trigger from unfired to processing.
	// Returns true when this caller won the claim; false when the trigger
	// was already claimed or finished. ErrNotFound when the inspection or
	// trigger does not exist.
	ClaimTrigger(ctx context.Context, inspectionID, triggerID string) (bool, error)

	// MarkTriggerEvent records the arrival time of an event-keyed trigger's
	// governing event. A trigger whose event time is already set keeps the
	// original value.
	MarkTriggerEvent(ctx context.Context, inspectionID, triggerID string, at time.Time) error

	// FinalizeTrigger records the terminal status of a claimed trigger.
	FinalizeTrigger(ctx context.Context, inspectionID, triggerID string, status models.TriggerStatus, sentAt *time.Time) error

	// ListInspectionsWithUnfiredTriggers returns inspections that still carry
	// at least one unfired trigger, for the scheduler sweep.
	ListInspectionsWithUnfiredTriggers(ctx context.Context, limit int) ([]*models.Inspection, error)
}
