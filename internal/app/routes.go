package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"automation-engine/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func (app *App) SetupRoutes(router *mux.Router) {
	router.Use(middleware.LoggingMiddleware)

	h := app.Handlers

	// Token issuance and health need no bearer token
	router.HandleFunc("/auth/token", h.IssueToken).Methods("POST")
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Everything else is company-scoped
	api := router.NewRoute().Subrouter()
	api.Use(app.Auth.Middleware)

	api.HandleFunc("/actions", h.ListActions).Methods("GET")
	api.HandleFunc("/actions", h.CreateAction).Methods("POST")
	api.HandleFunc("/actions/{id}", h.GetAction).Methods("GET")
	api.HandleFunc("/actions/{id}", h.UpdateAction).Methods("PUT")
	api.HandleFunc("/actions/{id}", h.DeleteAction).Methods("DELETE")

	api.HandleFunc("/inspections/{id}", h.SaveInspection).Methods("PUT")
	api.HandleFunc("/inspections/{id}", h.DeleteInspection).Methods("DELETE")
	api.HandleFunc("/inspections/{id}/triggers", h.ListTriggers).Methods("GET")
	api.HandleFunc("/inspections/{id}/import-actions", h.ImportActions).Methods("POST")
	api.HandleFunc("/inspections/{id}/events/{key}", h.PostEvent).Methods("POST")
}

// Router builds the configured HTTP handler
func (app *App) Router() http.Handler {
	router := mux.NewRouter()
	app.SetupRoutes(router)
	return router
}
