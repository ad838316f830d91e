package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"automation-engine/internal/automation"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/events"
	"automation-engine/internal/models"
	"automation-engine/internal/storage"
)

// Inspection intake and trigger handlers

// getScopedInspection loads an inspection and hides it when it belongs to a
// different company
func (h *Handlers) getScopedInspection(r *http.Request, id string) (*models.Inspection, error) {
	company, ok := companyID(r)
	if !ok {
		return nil, storage.ErrNotFound
	}
	inspection, err := h.storage.GetInspection(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if inspection.CompanyID != company {
		return nil, storage.ErrNotFound
	}
	return inspection, nil
}

// SaveInspection creates or updates an inspection snapshot
// @Summary Save inspection
// @Description Upserts the inspection's snapshot fields. The embedded triggers array is engine-owned and never touched by this endpoint.
// @Tags inspections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Inspection ID"
// @Param inspection body models.Inspection true "Inspection snapshot"
// @Success 200 {object} models.Inspection "Stored inspection"
// @Failure 400 {object} errorBody "Invalid body"
// @Router /inspections/{id} [put]
func (h *Handlers) SaveInspection(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var inspection models.Inspection
	if err := json.NewDecoder(r.Body).Decode(&inspection); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	inspection.ID = mux.Vars(r)["id"]
	inspection.CompanyID = company

	// An id owned by another company must not be overwritten
	existing, err := h.storage.GetInspection(r.Context(), inspection.ID)
	if err == nil && existing.CompanyID != company {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, err)
		return
	}

	if err := h.storage.SaveInspection(r.Context(), &inspection); err != nil {
		writeError(w, err)
		return
	}

	stored, err := h.storage.GetInspection(r.Context(), inspection.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// DeleteInspection removes an inspection and its embedded triggers
// @Summary Delete inspection
// @Description Removes the inspection. Its triggers travel with it and are removed too.
// @Tags inspections
// @Security BearerAuth
// @Param id path string true "Inspection ID"
// @Success 204 "Deleted"
// @Failure 404 {object} errorBody "Inspection not found"
// @Router /inspections/{id} [delete]
func (h *Handlers) DeleteInspection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.getScopedInspection(r, id); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
		return
	}
	if err := h.storage.DeleteInspection(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importResponse is the body returned by a successful import
type importResponse struct {
	ImportedCount int `json:"importedCount"`
}

// ImportActions imports the company's matching actions into an inspection
// @Summary Import actions
// @Description Attaches a trigger for every active matching action not already attached. Re-imports are idempotent.
// @Tags inspections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Inspection ID"
// @Success 200 {object} importResponse "Count of newly attached triggers"
// @Failure 400 {object} errorBody "Nothing to import, with the reason"
// @Failure 404 {object} errorBody "Inspection not found"
// @Router /inspections/{id}/import-actions [post]
func (h *Handlers) ImportActions(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.getScopedInspection(r, mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
		return
	}

	result, err := h.engine.Attach(r.Context(), inspection.ID)
	if err != nil {
		if errors.Is(err, automation.ErrInspectionNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
			return
		}
		writeError(w, err)
		return
	}

	if result.Imported == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: result.Reason()})
		return
	}
	writeJSON(w, http.StatusOK, importResponse{ImportedCount: result.Imported})
}

// ListTriggers returns the inspection's attached triggers
// @Summary List triggers
// @Description Returns the triggers embedded on the inspection with their statuses
// @Tags inspections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Inspection ID"
// @Success 200 {array} models.Trigger "Attached triggers"
// @Failure 404 {object} errorBody "Inspection not found"
// @Router /inspections/{id}/triggers [get]
func (h *Handlers) ListTriggers(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.getScopedInspection(r, mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
		return
	}

	triggers := inspection.Triggers
	if triggers == nil {
		triggers = []models.Trigger{}
	}
	writeJSON(w, http.StatusOK, triggers)
}

// PostEvent records a business event against an inspection
// @Summary Post event
// @Description Queues an inspection business event. Matching unfired triggers fire immediately unless a send gate defers them.
// @Tags inspections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Inspection ID"
// @Param key path string true "Trigger key, e.g. PAYMENT_COMPLETED"
// @Success 202 {object} map[string]string "Event accepted"
// @Failure 400 {object} errorBody "Unknown or date-relative key"
// @Failure 404 {object} errorBody "Inspection not found"
// @Router /inspections/{id}/events/{key} [post]
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := models.TriggerKey(vars["key"])
	if !key.IsValid() || key.IsDateRelative() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown event key"})
		return
	}

	inspection, err := h.getScopedInspection(r, vars["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "inspection not found"})
		return
	}

	envelope := &events.Envelope{
		ID:           uuid.NewString(),
		InspectionID: inspection.ID,
		Key:          key,
		OccurredAt:   time.Now().UTC(),
	}
	if err := h.bus.Publish(r.Context(), envelope); err != nil {
		h.logger.Error("Failed to publish event", err,
			logging.InspectionID(inspection.ID),
			logging.Field{Key: "trigger_key", Value: string(key)},
		)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event bus unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "event_id": envelope.ID})
}
