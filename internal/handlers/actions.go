package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"automation-engine/internal/models"
)

// Action template management handlers

// ListActions returns every action template in the company's scope
// @Summary List actions
// @Description Returns all action templates for the authenticated company
// @Tags actions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Action "List of actions"
// @Failure 401 {object} errorBody "Unauthorized"
// @Router /actions [get]
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.registry.List(r.Context(), company)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.Action{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetAction returns one action template
// @Summary Get action
// @Description Returns a single action template by id
// @Tags actions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Action ID"
// @Success 200 {object} models.Action "Action template"
// @Failure 404 {object} errorBody "Action not found"
// @Router /actions/{id} [get]
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	action, err := h.registry.Get(r.Context(), company, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// CreateAction creates a new action template
// @Summary Create action
// @Description Validates and persists a new action template
// @Tags actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param action body models.Action true "Action template"
// @Success 201 {object} models.Action "Created action"
// @Failure 400 {object} errorBody "Validation failure"
// @Router /actions [post]
func (h *Handlers) CreateAction(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var action models.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	action.CompanyID = company

	if err := h.registry.Create(r.Context(), &action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

// UpdateAction replaces an existing action template
// @Summary Update action
// @Description Validates and replaces an action template. Already-imported triggers keep their snapshot.
// @Tags actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Action ID"
// @Param action body models.Action true "Action template"
// @Success 200 {object} models.Action "Updated action"
// @Failure 400 {object} errorBody "Validation failure"
// @Failure 404 {object} errorBody "Action not found"
// @Router /actions/{id} [put]
func (h *Handlers) UpdateAction(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var action models.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	action.ID = mux.Vars(r)["id"]
	action.CompanyID = company

	if err := h.registry.Update(r.Context(), &action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// DeleteAction removes an action template
// @Summary Delete action
// @Description Removes an action template. Triggers it already spawned stay attached to their inspections.
// @Tags actions
// @Security BearerAuth
// @Param id path string true "Action ID"
// @Success 204 "Deleted"
// @Failure 404 {object} errorBody "Action not found"
// @Router /actions/{id} [delete]
func (h *Handlers) DeleteAction(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.registry.Delete(r.Context(), company, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
