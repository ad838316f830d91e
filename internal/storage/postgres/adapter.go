// Package postgres implements storage.Storage on PostgreSQL via pgx.
//
// Triggers live in a JSONB array on the inspections row. The three trigger
// writers (append, claim, finalize) are each a single UPDATE statement that
// rewrites the array server-side from the row's current value, so concurrent
// writers serialize on the row lock and no read-modify-write window exists in
// application code.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Adapter is the PostgreSQL storage backend
type Adapter struct {
	pool   *pgxpool.Pool
	config *Config
}

var _ storage.Storage = (*Adapter)(nil)

// NewAdapter connects to PostgreSQL and runs schema migration
func NewAdapter(ctx context.Context, config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	pool, err := pgxpool.New(ctx, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{pool: pool, config: config}
	if err := adapter.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			api_secret_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(id),
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			addons JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(id),
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(id),
			name TEXT NOT NULL,
			category_id TEXT NOT NULL DEFAULT '',
			trigger_key TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			conditions JSONB NOT NULL DEFAULT '[]',
			condition_logic TEXT NOT NULL DEFAULT '',
			delivery JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_company ON actions(company_id)`,
		`CREATE TABLE IF NOT EXISTS inspections (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			date TIMESTAMPTZ,
			services JSONB NOT NULL DEFAULT '[]',
			contacts JSONB NOT NULL DEFAULT '[]',
			attributes JSONB NOT NULL DEFAULT '{}',
			triggers JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inspections_company ON inspections(company_id)`,
	}

	for _, query := range queries {
		if _, err := a.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) CreateCompany(ctx context.Context, company *models.Company) error {
	tag, err := a.pool.Exec(ctx,
		`INSERT INTO companies (id, name, timezone, api_secret_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		company.ID, company.Name, company.Timezone, company.APISecretHash, company.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (a *Adapter) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	err := a.pool.QueryRow(ctx,
		`SELECT id, name, timezone, api_secret_hash, created_at FROM companies WHERE id = $1`, id).
		Scan(&company.ID, &company.Name, &company.Timezone, &company.APISecretHash, &company.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (a *Adapter) SaveService(ctx context.Context, service *models.Service) error {
	addons, err := json.Marshal(service.Addons)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO services (id, company_id, name, category, addons)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, addons = EXCLUDED.addons`,
		service.ID, service.CompanyID, service.Name, string(service.Category), addons)
	return err
}

func (a *Adapter) GetService(ctx context.Context, companyID, id string) (*models.Service, error) {
	var service models.Service
	var addons []byte
	err := a.pool.QueryRow(ctx,
		`SELECT id, company_id, name, category, addons FROM services WHERE id = $1 AND company_id = $2`,
		id, companyID).
		Scan(&service.ID, &service.CompanyID, &service.Name, &service.Category, &addons)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addons, &service.Addons); err != nil {
		return nil, err
	}
	return &service, nil
}

func (a *Adapter) SaveCategory(ctx context.Context, category *models.Category) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO categories (id, company_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		category.ID, category.CompanyID, category.Name)
	return err
}

func (a *Adapter) GetCategory(ctx context.Context, companyID, id string) (*models.Category, error) {
	var category models.Category
	err := a.pool.QueryRow(ctx,
		`SELECT id, company_id, name FROM categories WHERE id = $1 AND company_id = $2`,
		id, companyID).
		Scan(&category.ID, &category.CompanyID, &category.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (a *Adapter) CreateAction(ctx context.Context, action *models.Action) error {
	conditions, delivery, err := marshalActionJSON(action)
	if err != nil {
		return err
	}
	tag, err := a.pool.Exec(ctx,
		`INSERT INTO actions (id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		action.ID, action.CompanyID, action.Name, action.CategoryID, string(action.TriggerKey),
		action.IsActive, conditions, string(action.ConditionLogic), delivery,
		action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (a *Adapter) GetAction(ctx context.Context, companyID, id string) (*models.Action, error) {
	row := a.pool.QueryRow(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE id = $1 AND company_id = $2`, id, companyID)
	action, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return action, err
}

func (a *Adapter) ListActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	return a.listActions(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE company_id = $1 ORDER BY created_at`, companyID)
}

func (a *Adapter) ListActiveActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	return a.listActions(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE company_id = $1 AND is_active ORDER BY created_at`, companyID)
}

func (a *Adapter) listActions(ctx context.Context, query, companyID string) ([]*models.Action, error) {
	rows, err := a.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (a *Adapter) UpdateAction(ctx context.Context, action *models.Action) error {
	conditions, delivery, err := marshalActionJSON(action)
	if err != nil {
		return err
	}
	tag, err := a.pool.Exec(ctx,
		`UPDATE actions SET name = $3, category_id = $4, trigger_key = $5, is_active = $6,
			conditions = $7, condition_logic = $8, delivery = $9, updated_at = $10
		 WHERE id = $1 AND company_id = $2`,
		action.ID, action.CompanyID, action.Name, action.CategoryID, string(action.TriggerKey),
		action.IsActive, conditions, string(action.ConditionLogic), delivery, action.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteAction(ctx context.Context, companyID, id string) error {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM actions WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) SaveInspection(ctx context.Context, inspection *models.Inspection) error {
	services, err := json.Marshal(inspection.Services)
	if err != nil {
		return err
	}
	contacts, err := json.Marshal(inspection.Contacts)
	if err != nil {
		return err
	}
	attributes, err := json.Marshal(inspection.Attributes)
	if err != nil {
		return err
	}

	// The trigger array is engine-owned: an upsert of the external snapshot
	// never replaces it.
	_, err = a.pool.Exec(ctx,
		`INSERT INTO inspections (id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			address = EXCLUDED.address,
			date = EXCLUDED.date,
			services = EXCLUDED.services,
			contacts = EXCLUDED.contacts,
			attributes = EXCLUDED.attributes,
			updated_at = now()`,
		inspection.ID, inspection.CompanyID, inspection.Address, inspection.Date,
		services, contacts, attributes)
	return err
}

func (a *Adapter) GetInspection(ctx context.Context, id string) (*models.Inspection, error) {
	row := a.pool.QueryRow(ctx,
		`SELECT id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at
		 FROM inspections WHERE id = $1`, id)
	inspection, err := scanInspection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return inspection, err
}

func (a *Adapter) DeleteInspection(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM inspections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) AppendTrigger(ctx context.Context, inspectionID string, trigger *models.Trigger) (bool, error) {
	raw, err := json.Marshal(trigger)
	if err != nil {
		return false, err
	}

	// Append is conditional on no trigger for the same action id being
	// present at execution time, which makes repeated imports idempotent
	// even under concurrent callers.
	tag, err := a.pool.Exec(ctx,
		`UPDATE inspections
		 SET triggers = triggers || jsonb_build_array($3::jsonb), updated_at = now()
		 WHERE id = $1
		   AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(triggers) t
			WHERE t->>'action_id' = $2
		   )`,
		inspectionID, trigger.ActionID, raw)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "duplicate" from "inspection missing"
	var exists bool
	if err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inspections WHERE id = $1)`, inspectionID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

func (a *Adapter) ClaimTrigger(ctx context.Context, inspectionID, triggerID string) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE inspections
		 SET triggers = (
			SELECT jsonb_agg(
				CASE WHEN t->>'id' = $2 AND COALESCE(t->>'status', '') = ''
				     THEN t || '{"status":"processing"}'::jsonb
				     ELSE t END)
			FROM jsonb_array_elements(triggers) t
		 ), updated_at = now()
		 WHERE id = $1
		   AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(triggers) t
			WHERE t->>'id' = $2 AND COALESCE(t->>'status', '') = ''
		   )`,
		inspectionID, triggerID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Lost the race, or the trigger/inspection is gone; tell the caller which
	var exists bool
	err = a.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM inspections, jsonb_array_elements(triggers) t
			WHERE inspections.id = $1 AND t->>'id' = $2
		 )`, inspectionID, triggerID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

func (a *Adapter) MarkTriggerEvent(ctx context.Context, inspectionID, triggerID string, at time.Time) error {
	patch, err := json.Marshal(map[string]string{"event_at": at.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}

	tag, err := a.pool.Exec(ctx,
		`UPDATE inspections
		 SET triggers = (
			SELECT jsonb_agg(
				CASE WHEN t->>'id' = $2 AND t->>'event_at' IS NULL THEN t || $3::jsonb ELSE t END)
			FROM jsonb_array_elements(triggers) t
		 ), updated_at = now()
		 WHERE id = $1
		   AND EXISTS (SELECT 1 FROM jsonb_array_elements(triggers) t WHERE t->>'id' = $2)`,
		inspectionID, triggerID, patch)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) FinalizeTrigger(ctx context.Context, inspectionID, triggerID string, status models.TriggerStatus, sentAt *time.Time) error {
	patch := map[string]interface{}{"status": string(status)}
	if sentAt != nil {
		patch["sent_at"] = sentAt.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	tag, err := a.pool.Exec(ctx,
		`UPDATE inspections
		 SET triggers = (
			SELECT jsonb_agg(CASE WHEN t->>'id' = $2 THEN t || $3::jsonb ELSE t END)
			FROM jsonb_array_elements(triggers) t
		 ), updated_at = now()
		 WHERE id = $1
		   AND EXISTS (SELECT 1 FROM jsonb_array_elements(triggers) t WHERE t->>'id' = $2)`,
		inspectionID, triggerID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) ListInspectionsWithUnfiredTriggers(ctx context.Context, limit int) ([]*models.Inspection, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx,
		`SELECT id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at
		 FROM inspections
		 WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(triggers) t
			WHERE COALESCE(t->>'status', '') = ''
		 )
		 ORDER BY id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inspections []*models.Inspection
	for rows.Next() {
		inspection, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		inspections = append(inspections, inspection)
	}
	return inspections, rows.Err()
}

func marshalActionJSON(action *models.Action) (conditions, delivery []byte, err error) {
	conds := action.Conditions
	if conds == nil {
		conds = []models.Condition{}
	}
	conditions, err = json.Marshal(conds)
	if err != nil {
		return nil, nil, err
	}
	delivery, err = json.Marshal(action.Delivery)
	if err != nil {
		return nil, nil, err
	}
	return conditions, delivery, nil
}

func scanAction(row pgx.Row) (*models.Action, error) {
	var action models.Action
	var conditions, delivery []byte
	var triggerKey, logic string
	err := row.Scan(&action.ID, &action.CompanyID, &action.Name, &action.CategoryID,
		&triggerKey, &action.IsActive, &conditions, &logic, &delivery,
		&action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}
	action.TriggerKey = models.TriggerKey(triggerKey)
	action.ConditionLogic = models.ConditionLogic(logic)
	if err := json.Unmarshal(conditions, &action.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(delivery, &action.Delivery); err != nil {
		return nil, err
	}
	return &action, nil
}

func scanInspection(row pgx.Row) (*models.Inspection, error) {
	var inspection models.Inspection
	var services, contacts, attributes, triggers []byte
	err := row.Scan(&inspection.ID, &inspection.CompanyID, &inspection.Address, &inspection.Date,
		&services, &contacts, &attributes, &triggers,
		&inspection.CreatedAt, &inspection.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &inspection.Services); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contacts, &inspection.Contacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attributes, &inspection.Attributes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(triggers, &inspection.Triggers); err != nil {
		return nil, err
	}
	if inspection.Triggers == nil {
		inspection.Triggers = []models.Trigger{}
	}
	return &inspection, nil
}
