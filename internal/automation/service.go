package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Service is the engine facade the handlers, event workers and the sweep
// talk to. It combines import, due computation and firing over one storage
// backend.
type Service struct {
	store    storage.Storage
	importer *Importer
	executor *Executor
	logger   logging.Logger
}

// NewService wires the automation engine around the given storage and sender
func NewService(store storage.Storage, sender Sender, logger logging.Logger) *Service {
	return &Service{
		store:    store,
		importer: NewImporter(store, logger),
		executor: NewExecutor(store, sender, logger),
		logger:   logger.WithFields(logging.Component("automation")),
	}
}

// Attach imports the company's active actions onto the inspection
func (s *Service) Attach(ctx context.Context, inspectionID string) (*ImportResult, error) {
	return s.importer.Attach(ctx, inspectionID)
}

// Due returns the inspection's triggers whose fire time has arrived at now,
// evaluated in the owning company's local timezone
func (s *Service) Due(ctx context.Context, inspectionID string, now time.Time) ([]models.Trigger, error) {
	inspection, err := s.store.GetInspection(ctx, inspectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInspectionNotFound, inspectionID)
	}
	if err != nil {
		return nil, err
	}

	loc := s.location(ctx, inspection.CompanyID)

	var due []models.Trigger
	for _, trigger := range inspection.Triggers {
		if IsDue(&trigger, inspection, loc, now) {
			due = append(due, trigger)
		}
	}
	return due, nil
}

// Fire attempts to fire one trigger and returns its resulting status
func (s *Service) Fire(ctx context.Context, inspectionID, triggerID string) (models.TriggerStatus, error) {
	return s.executor.Fire(ctx, inspectionID, triggerID)
}

// ProcessEvent records the arrival of a business event on an inspection.
// It runs an import pass so actions created since the last import get their
// chance to attach, stamps the event time on the key's unfired triggers,
// and fires the ones whose gates pass right now. Triggers deferred by an
// hour or weekend gate keep their event stamp and are picked up by the
// periodic sweep.
func (s *Service) ProcessEvent(ctx context.Context, inspectionID string, key models.TriggerKey) error {
	if !key.IsValid() || key.IsDateRelative() {
		return fmt.Errorf("%s is not an event trigger key", key)
	}

	now := time.Now().UTC()

	if _, err := s.importer.attach(ctx, inspectionID, key, now); err != nil {
		return err
	}

	inspection, err := s.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	loc := s.location(ctx, inspection.CompanyID)

	for i := range inspection.Triggers {
		trigger := &inspection.Triggers[i]
		if trigger.TriggerKey != key || trigger.Status != models.StatusUnfired {
			continue
		}

		if trigger.EventAt == nil {
			if err := s.store.MarkTriggerEvent(ctx, inspection.ID, trigger.ID, now); err != nil {
				s.logger.Error("Failed to record event on trigger", err,
					logging.InspectionID(inspection.ID),
					logging.TriggerID(trigger.ID),
				)
				continue
			}
			at := now
			trigger.EventAt = &at
		}

		if !IsDue(trigger, inspection, loc, now) {
			s.logger.Debug("Trigger deferred by gates, sweep will fire it",
				logging.InspectionID(inspection.ID),
				logging.TriggerID(trigger.ID),
				logging.Field{Key: "trigger_key", Value: string(key)},
			)
			continue
		}

		if _, err := s.executor.Fire(ctx, inspection.ID, trigger.ID); err != nil {
			s.logger.Error("Failed to fire trigger for event", err,
				logging.InspectionID(inspection.ID),
				logging.TriggerID(trigger.ID),
			)
		}
	}
	return nil
}

// Sweep walks inspections that still carry unfired triggers and fires every
// one whose time has come. It returns how many triggers it fired.
func (s *Service) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	inspections, err := s.store.ListInspectionsWithUnfiredTriggers(ctx, limit)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, inspection := range inspections {
		loc := s.location(ctx, inspection.CompanyID)
		for i := range inspection.Triggers {
			trigger := &inspection.Triggers[i]
			if !IsDue(trigger, inspection, loc, now) {
				continue
			}
			status, err := s.executor.Fire(ctx, inspection.ID, trigger.ID)
			if err != nil {
				s.logger.Error("Sweep failed to fire trigger", err,
					logging.InspectionID(inspection.ID),
					logging.TriggerID(trigger.ID),
				)
				continue
			}
			if status == models.StatusSent || status == models.StatusFailed {
				fired++
			}
		}
	}
	return fired, nil
}

// location resolves the company's timezone, falling back to UTC when the
// company or its zone cannot be resolved
func (s *Service) location(ctx context.Context, companyID string) *time.Location {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil || company.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(company.Timezone)
	if err != nil {
		s.logger.Warn("Unknown company timezone, using UTC",
			logging.CompanyID(companyID),
			logging.Field{Key: "timezone", Value: company.Timezone},
		)
		return time.UTC
	}
	return loc
}
