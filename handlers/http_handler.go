// Package handlers provides the HTTP request handlers of the RxWriter API.
// Handlers translate JSON requests into session operations and answer with session snapshots.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/giygas/rxwriter/interfaces"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/session"
	"github.com/go-chi/chi/v5"
)

// HTTPHandlerImpl carries the dependencies shared by every handler
type HTTPHandlerImpl struct {
	sessions  *session.Store
	searcher  session.Searcher
	validator interfaces.InputValidator
	health    interfaces.HealthChecker
	startTime time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(sessions *session.Store, searcher session.Searcher, validator interfaces.InputValidator, health interfaces.HealthChecker) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		sessions:  sessions,
		searcher:  searcher,
		validator: validator,
		health:    health,
		startTime: time.Now(),
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

// decodeJSON reads one JSON object from the request body into dst.
// On failure the error response has already been written.
func (h *HTTPHandlerImpl) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			h.RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			h.RespondWithError(w, http.StatusBadRequest, "Request body is empty")
		default:
			logging.Warn("Invalid JSON body", "path", r.URL.Path, "error", err)
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
		}
		return false
	}
	return true
}

// loadSession resolves the {id} URL parameter.
// On failure the error response has already been written.
func (h *HTTPHandlerImpl) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.RespondWithError(w, http.StatusNotFound, "Session not found or expired")
			return nil, false
		}
		logging.Error("Session lookup failed", "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Session lookup failed")
		return nil, false
	}
	return sess, true
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// Get memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, data, httpStatus := h.health.HealthCheck()

	response := HealthResponse{
		Status:        status,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}

// NavigationItem is one entry of the sidebar
type NavigationItem struct {
	Label       string `json:"label"`
	Path        string `json:"path"`
	Implemented bool   `json:"implemented"`
}

var navigation = []NavigationItem{
	{Label: "Home", Path: "/", Implemented: true},
	{Label: "Prescriptions", Path: "/prescriptions", Implemented: false},
	{Label: "Profile", Path: "/profile", Implemented: false},
	{Label: "Settings", Path: "/settings", Implemented: false},
}

// Navigation lists the sidebar entries. Only Home has a page behind it.
func (h *HTTPHandlerImpl) Navigation(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, map[string]any{"items": navigation})
}

// NotImplemented answers the sidebar pages that do not exist yet
func (h *HTTPHandlerImpl) NotImplemented(w http.ResponseWriter, r *http.Request) {
	h.RespondWithError(w, http.StatusNotImplemented, fmt.Sprintf("%s is not available yet", r.URL.Path))
}
