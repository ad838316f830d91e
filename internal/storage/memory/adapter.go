// Package memory provides an in-memory Storage implementation. It is used by
// unit tests and as a zero-dependency fallback; the trigger operations honor
// the same atomicity contract as the database adapters by serializing through
// a single mutex.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Adapter is a mutex-guarded in-memory Storage implementation
type Adapter struct {
	mu          sync.Mutex
	companies   map[string]*models.Company
	services    map[string]*models.Service
	categories  map[string]*models.Category
	actions     map[string]*models.Action
	inspections map[string]*models.Inspection
	closed      bool
}

// NewAdapter creates an empty in-memory store
func NewAdapter() *Adapter {
	return &Adapter{
		companies:   make(map[string]*models.Company),
		services:    make(map[string]*models.Service),
		categories:  make(map[string]*models.Category),
		actions:     make(map[string]*models.Action),
		inspections: make(map[string]*models.Inspection),
	}
}

var _ storage.Storage = (*Adapter)(nil)

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return storage.ErrNotFound
	}
	return nil
}

// clone round-trips a record through JSON so callers never alias stored state
func clone[T any](in *T) *T {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

func (a *Adapter) CreateCompany(ctx context.Context, company *models.Company) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.companies[company.ID]; ok {
		return storage.ErrDuplicate
	}
	a.companies[company.ID] = clone(company)
	return nil
}

func (a *Adapter) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	company, ok := a.companies[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(company), nil
}

func (a *Adapter) SaveService(ctx context.Context, service *models.Service) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.services[service.ID] = clone(service)
	return nil
}

func (a *Adapter) GetService(ctx context.Context, companyID, id string) (*models.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	service, ok := a.services[id]
	if !ok || service.CompanyID != companyID {
		return nil, storage.ErrNotFound
	}
	return clone(service), nil
}

func (a *Adapter) SaveCategory(ctx context.Context, category *models.Category) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.categories[category.ID] = clone(category)
	return nil
}

func (a *Adapter) GetCategory(ctx context.Context, companyID, id string) (*models.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	category, ok := a.categories[id]
	if !ok || category.CompanyID != companyID {
		return nil, storage.ErrNotFound
	}
	return clone(category), nil
}

func (a *Adapter) CreateAction(ctx context.Context, action *models.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.actions[action.ID]; ok {
		return storage.ErrDuplicate
	}
	a.actions[action.ID] = clone(action)
	return nil
}

func (a *Adapter) GetAction(ctx context.Context, companyID, id string) (*models.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	action, ok := a.actions[id]
	if !ok || action.CompanyID != companyID {
		return nil, storage.ErrNotFound
	}
	return clone(action), nil
}

func (a *Adapter) ListActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Action
	for _, action := range a.actions {
		if action.CompanyID == companyID {
			out = append(out, clone(action))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *Adapter) ListActiveActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	actions, err := a.ListActions(ctx, companyID)
	if err != nil {
		return nil, err
	}
	active := actions[:0]
	for _, action := range actions {
		if action.IsActive {
			active = append(active, action)
		}
	}
	return active, nil
}

func (a *Adapter) UpdateAction(ctx context.Context, action *models.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.actions[action.ID]
	if !ok || existing.CompanyID != action.CompanyID {
		return storage.ErrNotFound
	}
	a.actions[action.ID] = clone(action)
	return nil
}

func (a *Adapter) DeleteAction(ctx context.Context, companyID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.actions[id]
	if !ok || existing.CompanyID != companyID {
		return storage.ErrNotFound
	}
	delete(a.actions, id)
	return nil
}

func (a *Adapter) SaveInspection(ctx context.Context, inspection *models.Inspection) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := clone(inspection)
	if existing, ok := a.inspections[inspection.ID]; ok {
		// Triggers are engine-owned; an external snapshot push never
		// replaces them.
		stored.Triggers = existing.Triggers
		stored.CreatedAt = existing.CreatedAt
	} else if stored.Triggers == nil {
		stored.Triggers = []models.Trigger{}
	}
	a.inspections[inspection.ID] = stored
	return nil
}

func (a *Adapter) GetInspection(ctx context.Context, id string) (*models.Inspection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inspection, ok := a.inspections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(inspection), nil
}

func (a *Adapter) DeleteInspection(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inspections[id]; !ok {
		return storage.ErrNotFound
	}
	delete(a.inspections, id)
	return nil
}

func (a *Adapter) AppendTrigger(ctx context.Context, inspectionID string, trigger *models.Trigger) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inspection, ok := a.inspections[inspectionID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if inspection.HasActionTrigger(trigger.ActionID) {
		return false, nil
	}
	inspection.Triggers = append(inspection.Triggers, *clone(trigger))
	return true, nil
}

func (a *Adapter) ClaimTrigger(ctx context.Context, inspectionID, triggerID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inspection, ok := a.inspections[inspectionID]
	if !ok {
		return false, storage.ErrNotFound
	}
	trigger := inspection.TriggerByID(triggerID)
	if trigger == nil {
		return false, storage.ErrNotFound
	}
	if trigger.Status != models.StatusUnfired {
		return false, nil
	}
	trigger.Status = models.StatusProcessing
	return true, nil
}

func (a *Adapter) MarkTriggerEvent(ctx context.Context, inspectionID, triggerID string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inspection, ok := a.inspections[inspectionID]
	if !ok {
		return storage.ErrNotFound
	}
	trigger := inspection.TriggerByID(triggerID)
	if trigger == nil {
		return storage.ErrNotFound
	}
	if trigger.EventAt == nil {
		at := at
		trigger.EventAt = &at
	}
	return nil
}

func (a *Adapter) FinalizeTrigger(ctx context.Context, inspectionID, triggerID string, status models.TriggerStatus, sentAt *time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inspection, ok := a.inspections[inspectionID]
	if !ok {
		return storage.ErrNotFound
	}
	trigger := inspection.TriggerByID(triggerID)
	if trigger == nil {
		return storage.ErrNotFound
	}
	trigger.Status = status
	trigger.SentAt = sentAt
	return nil
}

func (a *Adapter) ListInspectionsWithUnfiredTriggers(ctx context.Context, limit int) ([]*models.Inspection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Inspection
	for _, inspection := range a.inspections {
		for idx := range inspection.Triggers {
			if inspection.Triggers[idx].Status == models.StatusUnfired {
				out = append(out, clone(inspection))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
