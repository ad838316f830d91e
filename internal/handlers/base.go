// Package handlers implements the HTTP API: action template management,
// inspection intake, event ingestion and trigger inspection.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"automation-engine/internal/actions"
	"automation-engine/internal/auth"
	"automation-engine/internal/automation"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/events"
	"automation-engine/internal/storage"

	apperrors "automation-engine/internal/common/errors"
)

// Handlers bundles the API dependencies
type Handlers struct {
	storage  storage.Storage
	registry *actions.Registry
	engine   *automation.Service
	bus      events.Bus
	auth     *auth.Service
	logger   logging.Logger
}

// New creates the handler set
func New(store storage.Storage, registry *actions.Registry, engine *automation.Service, bus events.Bus, authService *auth.Service, logger logging.Logger) *Handlers {
	return &Handlers{
		storage:  store,
		registry: registry,
		engine:   engine,
		bus:      bus,
		auth:     authService,
		logger:   logger.WithFields(logging.Component("handlers")),
	}
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps an application error onto an HTTP status
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrTypeValidation:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: appErr.Message})
			return
		case apperrors.ErrTypeNotFound:
			writeJSON(w, http.StatusNotFound, errorBody{Error: appErr.Message})
			return
		case apperrors.ErrTypeAuth:
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: appErr.Message})
			return
		case apperrors.ErrTypeConflict:
			writeJSON(w, http.StatusConflict, errorBody{Error: appErr.Message})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// companyID pulls the authenticated company from the request context
func companyID(r *http.Request) (string, bool) {
	return auth.CompanyID(r.Context())
}
