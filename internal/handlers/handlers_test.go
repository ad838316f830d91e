package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/actions"
	"automation-engine/internal/auth"
	"automation-engine/internal/automation"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/events"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
	"automation-engine/internal/storage/memory"
)

type recordingSender struct {
	sent []string
}

func (s *recordingSender) Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error {
	s.sent = append(s.sent, trigger.ID)
	return nil
}

type testHarness struct {
	handlers *Handlers
	store    storage.Storage
	bus      *events.MemoryBus
	sender   *recordingSender
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	store := memory.NewAdapter()
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	hash, err := auth.HashSecret("s3cret")
	require.NoError(t, err)
	require.NoError(t, store.CreateCompany(ctx, &models.Company{
		ID: "co-1", Name: "Acme", Timezone: "UTC", APISecretHash: hash,
	}))
	require.NoError(t, store.CreateCompany(ctx, &models.Company{
		ID: "co-2", Name: "Rival", Timezone: "UTC",
	}))
	require.NoError(t, store.SaveService(ctx, &models.Service{
		ID: "svc-res", CompanyID: "co-1", Name: "Residential", Category: models.CategoryResidential,
	}))

	logger := logging.NewDefaultLogger()
	sender := &recordingSender{}
	bus := events.NewMemoryBus(1, logger)
	t.Cleanup(func() { _ = bus.Close() })

	registry := actions.NewRegistry(store, logger)
	engine := automation.NewService(store, sender, logger)
	authService, err := auth.NewService(store, "handlers-test-signing-key", logger)
	require.NoError(t, err)

	return &testHarness{
		handlers: New(store, registry, engine, bus, authService, logger),
		store:    store,
		bus:      bus,
		sender:   sender,
	}
}

// request builds an authenticated request with mux path vars applied
func request(method, target string, body interface{}, vars map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r = r.WithContext(auth.WithCompanyID(r.Context(), "co-1"))
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}

func seedInspection(t *testing.T, h *testHarness, id string) {
	t.Helper()
	date := time.Now().Add(72 * time.Hour).UTC()
	require.NoError(t, h.store.SaveInspection(context.Background(), &models.Inspection{
		ID:        id,
		CompanyID: "co-1",
		Address:   "12 Main St",
		Date:      &date,
		Services: []models.InspectionService{
			{ServiceID: "svc-res", Name: "Residential", Category: models.CategoryResidential},
		},
	}))
}

func seedAction(t *testing.T, h *testHarness, key models.TriggerKey) *models.Action {
	t.Helper()
	action := &models.Action{
		CompanyID:  "co-1",
		Name:       "Notify",
		TriggerKey: key,
		IsActive:   true,
	}
	require.NoError(t, h.handlers.registry.Create(context.Background(), action))
	return action
}

func TestCreateAndListActions(t *testing.T) {
	h := newHarness(t)

	body := &models.Action{
		Name:       "Confirmation email",
		TriggerKey: models.KeyInspectionScheduled,
		IsActive:   true,
		Conditions: []models.Condition{{Type: models.ConditionService, ServiceID: "svc-res"}},
	}
	w := httptest.NewRecorder()
	h.handlers.CreateAction(w, request(http.MethodPost, "/actions", body, nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "co-1", created.CompanyID)

	w = httptest.NewRecorder()
	h.handlers.ListActions(w, request(http.MethodGet, "/actions", nil, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listed []*models.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestCreateActionValidationError(t *testing.T) {
	h := newHarness(t)

	body := &models.Action{Name: "Broken", TriggerKey: "ON_FIRE"}
	w := httptest.NewRecorder()
	h.handlers.CreateAction(w, request(http.MethodPost, "/actions", body, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestGetActionScopedToCompany(t *testing.T) {
	h := newHarness(t)
	action := seedAction(t, h, models.KeyInspectionScheduled)

	w := httptest.NewRecorder()
	r := request(http.MethodGet, "/actions/"+action.ID, nil, map[string]string{"id": action.ID})
	r = r.WithContext(auth.WithCompanyID(r.Context(), "co-2"))
	h.handlers.GetAction(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAction(t *testing.T) {
	h := newHarness(t)
	action := seedAction(t, h, models.KeyInspectionScheduled)

	w := httptest.NewRecorder()
	h.handlers.DeleteAction(w, request(http.MethodDelete, "/actions/"+action.ID, nil, map[string]string{"id": action.ID}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.handlers.GetAction(w, request(http.MethodGet, "/actions/"+action.ID, nil, map[string]string{"id": action.ID}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveInspection(t *testing.T) {
	h := newHarness(t)

	body := &models.Inspection{Address: "12 Main St"}
	w := httptest.NewRecorder()
	h.handlers.SaveInspection(w, request(http.MethodPut, "/inspections/insp-1", body, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Inspection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, "insp-1", stored.ID)
	assert.Equal(t, "co-1", stored.CompanyID)
}

func TestSaveInspectionRejectsCrossTenantOverwrite(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveInspection(context.Background(), &models.Inspection{
		ID: "insp-theirs", CompanyID: "co-2",
	}))

	body := &models.Inspection{Address: "12 Main St"}
	w := httptest.NewRecorder()
	h.handlers.SaveInspection(w, request(http.MethodPut, "/inspections/insp-theirs", body, map[string]string{"id": "insp-theirs"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveInspectionPreservesTriggers(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")
	seedAction(t, h, models.KeyBeforeInspection)

	w := httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/insp-1/import-actions", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	body := &models.Inspection{Address: "14 Main St"}
	w = httptest.NewRecorder()
	h.handlers.SaveInspection(w, request(http.MethodPut, "/inspections/insp-1", body, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Inspection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, "14 Main St", stored.Address)
	assert.Len(t, stored.Triggers, 1)
}

func TestImportActions(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")
	seedAction(t, h, models.KeyAfterInspection)

	w := httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/insp-1/import-actions", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp importResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ImportedCount)

	// Re-import finds nothing new and explains why
	w = httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/insp-1/import-actions", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var failure errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, "no new actions", failure.Error)
}

func TestImportActionsNoActiveActions(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")

	w := httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/insp-1/import-actions", nil, map[string]string{"id": "insp-1"}))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var failure errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, "no active actions", failure.Error)
}

func TestImportActionsUnknownInspection(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/nope/import-actions", nil, map[string]string{"id": "nope"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTriggers(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")
	seedAction(t, h, models.KeyBeforeInspection)

	w := httptest.NewRecorder()
	h.handlers.ListTriggers(w, request(http.MethodGet, "/inspections/insp-1/triggers", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = httptest.NewRecorder()
	h.handlers.ImportActions(w, request(http.MethodPost, "/inspections/insp-1/import-actions", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.handlers.ListTriggers(w, request(http.MethodGet, "/inspections/insp-1/triggers", nil, map[string]string{"id": "insp-1"}))
	require.Equal(t, http.StatusOK, w.Code)

	var triggers []models.Trigger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &triggers))
	require.Len(t, triggers, 1)
	assert.Equal(t, models.KeyBeforeInspection, triggers[0].TriggerKey)
}

func TestPostEventQueues(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")

	w := httptest.NewRecorder()
	h.handlers.PostEvent(w, request(http.MethodPost, "/inspections/insp-1/events/PAYMENT_COMPLETED", nil,
		map[string]string{"id": "insp-1", "key": "PAYMENT_COMPLETED"}))

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["event_id"])
}

func TestPostEventRejectsBadKeys(t *testing.T) {
	h := newHarness(t)
	seedInspection(t, h, "insp-1")

	for _, key := range []string{"NOT_A_KEY", "BEFORE_INSPECTION"} {
		w := httptest.NewRecorder()
		h.handlers.PostEvent(w, request(http.MethodPost, "/inspections/insp-1/events/"+key, nil,
			map[string]string{"id": "insp-1", "key": key}))
		assert.Equal(t, http.StatusBadRequest, w.Code, key)
	}
}

func TestIssueTokenEndpoint(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/token",
		bytes.NewBufferString(`{"company_id":"co-1","api_secret":"s3cret"}`))
	h.handlers.IssueToken(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestIssueTokenBadCredentials(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/token",
		bytes.NewBufferString(`{"company_id":"co-1","api_secret":"wrong"}`))
	h.handlers.IssueToken(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	h.handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var status healthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
}
