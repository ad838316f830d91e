// Package sqlite implements storage.Storage on SQLite. It is the default
// backend for development and single-node deployments.
//
// SQLite has a single writer, so the trigger operations run the
// read-check-write sequence inside an immediate write transaction; that gives
// the same atomicity the PostgreSQL adapter gets from single-statement JSONB
// updates. The connection pool is capped at one open connection to avoid
// SQLITE_BUSY churn, matching how this backend is deployed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Adapter is the SQLite storage backend
type Adapter struct {
	db *sql.DB
}

var _ storage.Storage = (*Adapter)(nil)

// NewAdapter opens (creating if needed) the database file and migrates it
func NewAdapter(path string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{db: db}
	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return adapter, nil
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			api_secret_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			addons TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category_id TEXT NOT NULL DEFAULT '',
			trigger_key TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			conditions TEXT NOT NULL DEFAULT '[]',
			condition_logic TEXT NOT NULL DEFAULT '',
			delivery TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_company ON actions(company_id)`,
		`CREATE TABLE IF NOT EXISTS inspections (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			date TIMESTAMP,
			services TEXT NOT NULL DEFAULT '[]',
			contacts TEXT NOT NULL DEFAULT '[]',
			attributes TEXT NOT NULL DEFAULT '{}',
			triggers TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inspections_company ON inspections(company_id)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) CreateCompany(ctx context.Context, company *models.Company) error {
	result, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO companies (id, name, timezone, api_secret_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		company.ID, company.Name, company.Timezone, company.APISecretHash, company.CreatedAt)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (a *Adapter) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	err := a.db.QueryRowContext(ctx,
		`SELECT id, name, timezone, api_secret_hash, created_at FROM companies WHERE id = ?`, id).
		Scan(&company.ID, &company.Name, &company.Timezone, &company.APISecretHash, &company.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO services (id, company_id, name, category, addons) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, category = excluded.category, addons = excluded.addons`,
		service.ID, service.CompanyID, service.Name, string(service.Category), string(addons))
	return err
}

func (a *Adapter) GetService(ctx context.Context, companyID, id string) (*models.Service, error) {
	var service models.Service
	var addons string
	err := a.db.QueryRowContext(ctx,
		`SELECT id, company_id, name, category, addons FROM services WHERE id = ? AND company_id = ?`,
		id, companyID).
		Scan(&service.ID, &service.CompanyID, &service.Name, &service.Category, &addons)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(addons), &service.Addons); err != nil {
		return nil, err
	}
	return &service, nil
}

func (a *Adapter) SaveCategory(ctx context.Context, category *models.Category) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO categories (id, company_id, name) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		category.ID, category.CompanyID, category.Name)
	return err
}

func (a *Adapter) GetCategory(ctx context.Context, companyID, id string) (*models.Category, error) {
	var category models.Category
	err := a.db.QueryRowContext(ctx,
		`SELECT id, company_id, name FROM categories WHERE id = ? AND company_id = ?`, id, companyID).
		Scan(&category.ID, &category.CompanyID, &category.Name)
	if errors.Is(err, sql.ErrNoRows) {
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
	result, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO actions (id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.CompanyID, action.Name, action.CategoryID, string(action.TriggerKey),
		action.IsActive, conditions, string(action.ConditionLogic), delivery,
		action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (a *Adapter) GetAction(ctx context.Context, companyID, id string) (*models.Action, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE id = ? AND company_id = ?`, id, companyID)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return action, err
}

func (a *Adapter) ListActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	return a.listActions(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE company_id = ? ORDER BY created_at`, companyID)
}

func (a *Adapter) ListActiveActions(ctx context.Context, companyID string) ([]*models.Action, error) {
	return a.listActions(ctx,
		`SELECT id, company_id, name, category_id, trigger_key, is_active,
			conditions, condition_logic, delivery, created_at, updated_at
		 FROM actions WHERE company_id = ? AND is_active ORDER BY created_at`, companyID)
}

func (a *Adapter) listActions(ctx context.Context, query, companyID string) ([]*models.Action, error) {
	rows, err := a.db.QueryContext(ctx, query, companyID)
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
	result, err := a.db.ExecContext(ctx,
		`UPDATE actions SET name = ?, category_id = ?, trigger_key = ?, is_active = ?,
			conditions = ?, condition_logic = ?, delivery = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		action.Name, action.CategoryID, string(action.TriggerKey), action.IsActive,
		conditions, string(action.ConditionLogic), delivery, action.UpdatedAt,
		action.ID, action.CompanyID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteAction(ctx context.Context, companyID, id string) error {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM actions WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO inspections (id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			company_id = excluded.company_id,
			address = excluded.address,
			date = excluded.date,
			services = excluded.services,
			contacts = excluded.contacts,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at`,
		inspection.ID, inspection.CompanyID, inspection.Address, inspection.Date,
		string(services), string(contacts), string(attributes), now, now)
	return err
}

func (a *Adapter) GetInspection(ctx context.Context, id string) (*models.Inspection, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at
		 FROM inspections WHERE id = ?`, id)
	inspection, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return inspection, err
}

func (a *Adapter) DeleteInspection(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM inspections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// mutateTriggers runs fn against the freshest trigger array inside a write
// transaction and persists the result with a targeted column update.
func (a *Adapter) mutateTriggers(ctx context.Context, inspectionID string, fn func(triggers []models.Trigger) ([]models.Trigger, bool, error)) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT triggers FROM inspections WHERE id = ?`, inspectionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, err
	}

	var triggers []models.Trigger
	if err := json.Unmarshal([]byte(raw), &triggers); err != nil {
		return false, err
	}

	updated, changed, err := fn(triggers)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, tx.Commit()
	}

	encoded, err := json.Marshal(updated)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE inspections SET triggers = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().UTC(), inspectionID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (a *Adapter) AppendTrigger(ctx context.Context, inspectionID string, trigger *models.Trigger) (bool, error) {
	return a.mutateTriggers(ctx, inspectionID, func(triggers []models.Trigger) ([]models.Trigger, bool, error) {
		for idx := range triggers {
			if triggers[idx].ActionID == trigger.ActionID {
				return triggers, false, nil
			}
		}
		return append(triggers, *trigger), true, nil
	})
}

func (a *Adapter) ClaimTrigger(ctx context.Context, inspectionID, triggerID string) (bool, error) {
	return a.mutateTriggers(ctx, inspectionID, func(triggers []models.Trigger) ([]models.Trigger, bool, error) {
		for idx := range triggers {
			if triggers[idx].ID != triggerID {
				continue
			}
			if triggers[idx].Status != models.StatusUnfired {
				return triggers, false, nil
			}
			triggers[idx].Status = models.StatusProcessing
			return triggers, true, nil
		}
		return nil, false, storage.ErrNotFound
	})
}

func (a *Adapter) MarkTriggerEvent(ctx context.Context, inspectionID, triggerID string, at time.Time) error {
	_, err := a.mutateTriggers(ctx, inspectionID, func(triggers []models.Trigger) ([]models.Trigger, bool, error) {
		for idx := range triggers {
			if triggers[idx].ID != triggerID {
				continue
			}
			if triggers[idx].EventAt != nil {
				return triggers, false, nil
			}
			at := at
			triggers[idx].EventAt = &at
			return triggers, true, nil
		}
		return nil, false, storage.ErrNotFound
	})
	return err
}

func (a *Adapter) FinalizeTrigger(ctx context.Context, inspectionID, triggerID string, status models.TriggerStatus, sentAt *time.Time) error {
	_, err := a.mutateTriggers(ctx, inspectionID, func(triggers []models.Trigger) ([]models.Trigger, bool, error) {
		for idx := range triggers {
			if triggers[idx].ID != triggerID {
				continue
			}
			triggers[idx].Status = status
			triggers[idx].SentAt = sentAt
			return triggers, true, nil
		}
		return nil, false, storage.ErrNotFound
	})
	return err
}

func (a *Adapter) ListInspectionsWithUnfiredTriggers(ctx context.Context, limit int) ([]*models.Inspection, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, company_id, address, date, services, contacts, attributes, triggers, created_at, updated_at
		 FROM inspections
		 WHERE EXISTS (
			SELECT 1 FROM json_each(inspections.triggers)
			WHERE COALESCE(json_extract(json_each.value, '$.status'), '') = ''
		 )
		 ORDER BY id
		 LIMIT ?`, limit)
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

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func marshalActionJSON(action *models.Action) (conditions, delivery string, err error) {
	conds := action.Conditions
	if conds == nil {
		conds = []models.Condition{}
	}
	rawConds, err := json.Marshal(conds)
	if err != nil {
		return "", "", err
	}
	rawDelivery, err := json.Marshal(action.Delivery)
	if err != nil {
		return "", "", err
	}
	return string(rawConds), string(rawDelivery), nil
}

func scanAction(row scanner) (*models.Action, error) {
	var action models.Action
	var conditions, delivery, triggerKey, logic string
	err := row.Scan(&action.ID, &action.CompanyID, &action.Name, &action.CategoryID,
		&triggerKey, &action.IsActive, &conditions, &logic, &delivery,
		&action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}
	action.TriggerKey = models.TriggerKey(triggerKey)
	action.ConditionLogic = models.ConditionLogic(logic)
	if err := json.Unmarshal([]byte(conditions), &action.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(delivery), &action.Delivery); err != nil {
		return nil, err
	}
	return &action, nil
}

func scanInspection(row scanner) (*models.Inspection, error) {
	var inspection models.Inspection
	var services, contacts, attributes, triggers string
	var date sql.NullTime
	err := row.Scan(&inspection.ID, &inspection.CompanyID, &inspection.Address, &date,
		&services, &contacts, &attributes, &triggers,
		&inspection.CreatedAt, &inspection.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if date.Valid {
		inspection.Date = &date.Time
	}
	if err := json.Unmarshal([]byte(services), &inspection.Services); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contacts), &inspection.Contacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attributes), &inspection.Attributes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(triggers), &inspection.Triggers); err != nil {
		return nil, err
	}
	if inspection.Triggers == nil {
		inspection.Triggers = []models.Trigger{}
	}
	return &inspection, nil
}
