package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/lookup"
	"github.com/giygas/rxwriter/prescription"
	"github.com/giygas/rxwriter/preview"
	"github.com/giygas/rxwriter/session"
	"github.com/giygas/rxwriter/validation"
)

type fieldUpdateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type searchRequest struct {
	Mode  string `json:"mode"`
	Query string `json:"query"`
}

type selectionRequest struct {
	DrugCode json.Number `json:"drugCode"`
}

type customModeRequest struct {
	Enabled bool `json:"enabled"`
}

type customEntryRequest struct {
	Name string `json:"name"`
	Dose string `json:"dose"`
}

// CreateSession starts a new empty prescription form
func (h *HTTPHandlerImpl) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrStoreFull) {
			h.RespondWithError(w, http.StatusServiceUnavailable, "Too many active sessions, try again later")
			return
		}
		logging.Error("Failed to create session", "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.RespondWithJSON(w, http.StatusCreated, sess.Snapshot())
}

// GetSession returns the current state of a session
func (h *HTTPHandlerImpl) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// DeleteSession discards a session and everything typed into it
func (h *HTTPHandlerImpl) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		logging.Error("Failed to delete session", "session_id", sess.ID, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePrescription stores one field of the in-progress prescription
func (h *HTTPHandlerImpl) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req fieldUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	field, err := prescription.ParsePrescriptionField(req.Field)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateFieldValue(req.Value); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.UpdatePrescription(field, req.Value); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// UpdatePharmacist stores one pharmacist field
func (h *HTTPHandlerImpl) UpdatePharmacist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req fieldUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	field, err := prescription.ParsePharmacistField(req.Field)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateFieldValue(req.Value); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.UpdatePharmacist(field, req.Value); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// Search runs a medication lookup for the session. Directory failures and unsafe queries
// still answer 200 with no results; a search overtaken by a newer one answers 409.
func (h *HTTPHandlerImpl) Search(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	mode, err := lookup.ParseMode(req.Mode)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := req.Query
	if err := h.validator.ValidateQuery(query); err != nil {
		logging.Warn("Unusual user input", "query", req.Query, "error", err)
		if !errors.Is(err, validation.ErrUnsafeQuery) {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Unsafe queries never reach the directory; the search is cleared instead
		query = ""
	}

	if err := sess.Search(r.Context(), h.searcher, mode, query); err != nil {
		if errors.Is(err, session.ErrSuperseded) {
			h.RespondWithError(w, http.StatusConflict, "A newer search replaced this one")
			return
		}
		logging.Error("Search failed", "session_id", sess.ID, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// SetFilters narrows the search results by strength and dosage form
func (h *HTTPHandlerImpl) SetFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req lookup.Filters
	if !h.decodeJSON(w, r, &req) {
		return
	}
	for _, value := range []string{req.Strength, req.DosageForm} {
		if err := h.validator.ValidateFieldValue(value); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess.SetFilters(req)
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// SelectMedication adopts a visible search result into the prescription form
func (h *HTTPHandlerImpl) SelectMedication(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req selectionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	code, err := h.validator.ValidateDrugCode(req.DrugCode.String())
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := sess.SelectMedication(code); !ok {
		h.RespondWithError(w, http.StatusNotFound, "Medication is not among the visible results")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// SetCustomMode toggles between directory search and custom entry
func (h *HTTPHandlerImpl) SetCustomMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req customModeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	sess.SetCustomMode(req.Enabled)
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// UpdateCustomEntry stores the custom medication name and dose as typed
func (h *HTTPHandlerImpl) UpdateCustomEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var req customEntryRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	for _, value := range []string{req.Name, req.Dose} {
		if err := h.validator.ValidateFieldValue(value); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess.UpdateCustomEntry(req.Name, req.Dose)
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// SubmitCustomEntry adopts the custom entry into the form. applied is false when
// custom mode is off or the name is empty.
func (h *HTTPHandlerImpl) SubmitCustomEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	_, applied := sess.SubmitCustomEntry()
	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"applied": applied,
		"session": sess.Snapshot(),
	})
}

// AddPrescription moves the in-progress prescription into the collection.
// added is false when the medication name is empty.
func (h *HTTPHandlerImpl) AddPrescription(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	added := sess.AddPrescription()
	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"added":   added,
		"session": sess.Snapshot(),
	})
}

// ResetLookup clears the search, its filters and the selection
func (h *HTTPHandlerImpl) ResetLookup(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	sess.ResetLookup()
	h.RespondWithJSON(w, http.StatusOK, sess.Snapshot())
}

// Preview renders the added prescriptions, as JSON or as plain text with ?format=text
func (h *HTTPHandlerImpl) Preview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	view := preview.Render(sess.Prescriptions())

	switch r.URL.Query().Get("format") {
	case "", "json":
		h.RespondWithJSON(w, http.StatusOK, view)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(view.Text()))
	default:
		h.RespondWithError(w, http.StatusBadRequest, "format must be json or text")
	}
}
