// Package actions manages the company-scoped automation rule templates.
// The registry validates an action's shape and its foreign keys before it
// ever reaches storage, so the import path can trust what it reads back.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Registry is the CRUD surface for Action templates
type Registry struct {
	store  storage.Storage
	logger logging.Logger
}

// NewRegistry creates a registry backed by the given storage
func NewRegistry(store storage.Storage, logger logging.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.WithFields(logging.Component("actions")),
	}
}

// Create validates and persists a new action. The ID and timestamps are
// assigned here; callers only supply the template fields.
func (r *Registry) Create(ctx context.Context, action *models.Action) error {
	if err := r.validate(ctx, action); err != nil {
		return err
	}

	action.ID = uuid.NewString()
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now

	if err := r.store.CreateAction(ctx, action); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return apperrors.ConflictError("action already exists").WithContext("action_id", action.ID)
		}
		return err
	}

	r.logger.Info("Action created",
		logging.ActionID(action.ID),
		logging.CompanyID(action.CompanyID),
		logging.Field{Key: "trigger_key", Value: string(action.TriggerKey)},
	)
	return nil
}

// Get returns one action in the company's scope
func (r *Registry) Get(ctx context.Context, companyID, id string) (*models.Action, error) {
	action, err := r.store.GetAction(ctx, companyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFoundError("action").WithContext("action_id", id)
	}
	return action, err
}

// List returns every action in the company's scope, active or not
func (r *Registry) List(ctx context.Context, companyID string) ([]*models.Action, error) {
	return r.store.ListActions(ctx, companyID)
}

// Update validates and replaces an existing action. Already-attached
// triggers are snapshots and are not affected.
func (r *Registry) Update(ctx context.Context, action *models.Action) error {
	if action.ID == "" {
		return apperrors.ValidationError("action id is required")
	}
	if err := r.validate(ctx, action); err != nil {
		return err
	}

	existing, err := r.store.GetAction(ctx, action.CompanyID, action.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFoundError("action").WithContext("action_id", action.ID)
	}
	if err != nil {
		return err
	}

	action.CreatedAt = existing.CreatedAt
	action.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateAction(ctx, action); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFoundError("action").WithContext("action_id", action.ID)
		}
		return err
	}

	r.logger.Info("Action updated",
		logging.ActionID(action.ID),
		logging.CompanyID(action.CompanyID),
	)
	return nil
}

// Delete removes an action template. Triggers it already spawned stay on
// their inspections.
func (r *Registry) Delete(ctx context.Context, companyID, id string) error {
	err := r.store.DeleteAction(ctx, companyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFoundError("action").WithContext("action_id", id)
	}
	if err != nil {
		return err
	}

	r.logger.Info("Action deleted",
		logging.ActionID(id),
		logging.CompanyID(companyID),
	)
	return nil
}

// validate checks the action's shape, normalizes its condition logic and
// resolves every condition's references inside the owning company's scope
func (r *Registry) validate(ctx context.Context, action *models.Action) error {
	if action.CompanyID == "" {
		return apperrors.ValidationError("company id is required")
	}
	if action.Name == "" {
		return apperrors.ValidationError("action name is required")
	}
	if !action.TriggerKey.IsValid() {
		return apperrors.ValidationError(fmt.Sprintf("unknown trigger key %q", action.TriggerKey))
	}
	if action.CategoryID != "" {
		if _, err := r.store.GetCategory(ctx, action.CompanyID, action.CategoryID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.ValidationError(fmt.Sprintf("category %q does not exist", action.CategoryID))
			}
			return err
		}
	}

	delivery := &action.Delivery
	if delivery.SendDelay < 0 {
		return apperrors.ValidationError("send delay cannot be negative")
	}
	if delivery.SendDelay > 0 && !delivery.SendDelayUnit.IsValid() {
		return apperrors.ValidationError(fmt.Sprintf("unknown delay unit %q", delivery.SendDelayUnit))
	}
	if delivery.SendTiming != "" && delivery.SendTiming != models.TimingBefore && delivery.SendTiming != models.TimingAfter {
		return apperrors.ValidationError(fmt.Sprintf("unknown send timing %q", delivery.SendTiming))
	}
	if delivery.SendDuringCertainHoursOnly {
		if !models.ValidClock(delivery.StartTime) || !models.ValidClock(delivery.EndTime) {
			return apperrors.ValidationError("send window requires start and end times in HH:MM form")
		}
	}

	// Logic is meaningful only when two or more conditions can disagree
	if len(action.Conditions) >= 2 {
		if action.ConditionLogic == "" {
			action.ConditionLogic = models.LogicAnd
		} else if !action.ConditionLogic.IsValid() {
			return apperrors.ValidationError(fmt.Sprintf("unknown condition logic %q", action.ConditionLogic))
		}
	} else {
		action.ConditionLogic = ""
	}

	for i, condition := range action.Conditions {
		if err := r.validateCondition(ctx, action.CompanyID, condition); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return appErr.WithContext("condition_index", i)
			}
			return err
		}
	}
	return nil
}

// validateCondition checks one condition structurally and resolves its
// reference against the company's own services and categories
func (r *Registry) validateCondition(ctx context.Context, companyID string, condition models.Condition) error {
	switch condition.Type {
	case models.ConditionService:
		if condition.ServiceID == "" {
			return apperrors.ValidationError("service condition requires a service id")
		}
		_, err := r.resolveService(ctx, companyID, condition.ServiceID)
		return err

	case models.ConditionAddon:
		if condition.ServiceID == "" || condition.AddonName == "" {
			return apperrors.ValidationError("addon condition requires a service id and addon name")
		}
		service, err := r.resolveService(ctx, companyID, condition.ServiceID)
		if err != nil {
			return err
		}
		for _, addon := range service.Addons {
			if addon.Name == condition.AddonName {
				return nil
			}
		}
		return apperrors.ValidationError(fmt.Sprintf("service %q has no addon %q", condition.ServiceID, condition.AddonName))

	case models.ConditionServiceCategory:
		if !models.ServiceCategory(condition.ServiceCategory).IsValid() {
			return apperrors.ValidationError(fmt.Sprintf("unknown service category %q", condition.ServiceCategory))
		}
		return nil

	case models.ConditionCategory:
		if condition.CategoryID == "" {
			return apperrors.ValidationError("category condition requires a category id")
		}
		_, err := r.store.GetCategory(ctx, companyID, condition.CategoryID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.ValidationError(fmt.Sprintf("category %q does not exist", condition.CategoryID))
		}
		return err

	case models.ConditionAttribute:
		if condition.Field == "" {
			return apperrors.ValidationError("attribute condition requires a field")
		}
		if !condition.Operator.IsValid() {
			return apperrors.ValidationError(fmt.Sprintf("unknown operator %q", condition.Operator))
		}
		if condition.Operator != models.OperatorExists && condition.Value == "" {
			return apperrors.ValidationError(fmt.Sprintf("operator %q requires a value", condition.Operator))
		}
		return nil

	default:
		return apperrors.ValidationError(fmt.Sprintf("unknown condition type %q", condition.Type))
	}
}

func (r *Registry) resolveService(ctx context.Context, companyID, serviceID string) (*models.Service, error) {
	service, err := r.store.GetService(ctx, companyID, serviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.ValidationError(fmt.Sprintf("service %q does not exist", serviceID))
	}
	return service, err
}
