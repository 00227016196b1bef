// Package session holds the state of one prescription form: the in-progress prescription,
// pharmacist details, the added prescriptions, the medication search and the custom entry.
// Sessions live in memory only and are lost on restart.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/lookup"
	"github.com/giygas/rxwriter/metrics"
	"github.com/giygas/rxwriter/prescription"
)

var (
	// ErrSuperseded is returned when a newer search finished or started before this one completed
	ErrSuperseded = errors.New("search superseded by a newer one")
)

// Searcher runs medication searches; *lookup.Engine implements it
type Searcher interface {
	Search(ctx context.Context, mode lookup.Mode, query string) (lookup.Result, error)
}

// Session is safe for concurrent use
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastAccess   time.Time
	form         prescription.PrescriptionData
	pharmacist   prescription.PharmacistData
	collection   prescription.Collection
	search       *lookup.State
	customMode   bool
	custom       prescription.CustomEntry
	cancelSearch context.CancelFunc
}

// Snapshot is a point-in-time copy of a session, used for rendering and JSON
type Snapshot struct {
	ID            string                          `json:"id"`
	Prescription  prescription.PrescriptionData   `json:"prescription"`
	Pharmacist    prescription.PharmacistData     `json:"pharmacist"`
	Prescriptions []prescription.PrescriptionData `json:"prescriptions"`
	Lookup        lookup.StateView                `json:"lookup"`
	CustomMode    bool                            `json:"customMode"`
	CustomEntry   prescription.CustomEntry        `json:"customEntry"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		lastAccess: now,
		search:     lookup.NewState(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// UpdatePrescription sets one field of the in-progress prescription
func (s *Session) UpdatePrescription(field prescription.PrescriptionField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Set(field, value)
}

// UpdatePharmacist sets one pharmacist field; pharmacist details are shared by all prescriptions
func (s *Session) UpdatePharmacist(field prescription.PharmacistField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pharmacist.Set(field, value)
}

// StartSearch records a new search, cancels the previous in-flight one and returns
// the context and token the caller must run the search with. It reports false,
// recording nothing, while custom mode is on.
func (s *Session) StartSearch(ctx context.Context, mode lookup.Mode, query string) (context.Context, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.customMode {
		return ctx, 0, false
	}
	if s.cancelSearch != nil {
		s.cancelSearch()
	}
	searchCtx, cancel := context.WithCancel(ctx)
	s.cancelSearch = cancel

	return searchCtx, s.search.Begin(mode, query), true
}

// FinishSearch applies a search outcome if token is still the latest search
func (s *Session) FinishSearch(token uint64, result lookup.Result, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.search.Complete(token, result, err) {
		return ErrSuperseded
	}
	if s.cancelSearch != nil {
		s.cancelSearch()
		s.cancelSearch = nil
	}
	return nil
}

// Search runs a search through searcher and applies it. Directory failures are
// absorbed into an empty result; only ErrSuperseded is returned.
// Searches are ignored while custom mode is on.
func (s *Session) Search(ctx context.Context, searcher Searcher, mode lookup.Mode, query string) error {
	searchCtx, token, ok := s.StartSearch(ctx, mode, query)
	if !ok {
		logging.Debug("Search ignored in custom mode", "session_id", s.ID)
		return nil
	}

	result, err := searcher.Search(searchCtx, mode, query)
	if err != nil && searchCtx.Err() == nil {
		logging.Warn("Medication search failed", "session_id", s.ID, "mode", mode, "query", query, "error", err)
	}

	return s.FinishSearch(token, result, err)
}

// SetFilters replaces the strength and dosage form filters
func (s *Session) SetFilters(f lookup.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search.SetFilters(f)
}

// SelectMedication adopts the visible search result with drugCode into the form
func (s *Session) SelectMedication(drugCode int) (prescription.MedicationOption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	option, ok := s.search.Select(drugCode)
	if ok {
		s.form.Adopt(option)
	}
	return option, ok
}

// SetCustomMode switches between directory search and custom entry.
// Turning it on clears the search; turning it off clears the custom fields.
func (s *Session) SetCustomMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customMode = on
	if on {
		if s.cancelSearch != nil {
			s.cancelSearch()
			s.cancelSearch = nil
		}
		s.search.Clear()
		return
	}
	s.custom = prescription.CustomEntry{}
}

// UpdateCustomEntry stores the custom name and dose as typed
func (s *Session) UpdateCustomEntry(name, dose string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = prescription.CustomEntry{Name: name, Dose: dose}
}

// SubmitCustomEntry adopts the custom entry into the form when custom mode is on and a name is set
func (s *Session) SubmitCustomEntry() (prescription.MedicationOption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.customMode {
		return prescription.MedicationOption{}, false
	}
	option, ok := s.custom.Option()
	if !ok {
		return prescription.MedicationOption{}, false
	}
	s.form.Adopt(option)
	s.search.SelectOption(option)
	return option, true
}

// AddPrescription appends the in-progress prescription and starts a new one.
// Nothing happens when the medication name is empty.
func (s *Session) AddPrescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.collection.Add(s.form) {
		return false
	}
	s.form = prescription.PrescriptionData{}
	metrics.PrescriptionsAdded.Inc()
	return true
}

// ResetLookup clears the search, its filters, the selection and the custom name and dose.
// Custom mode itself stays as it is.
func (s *Session) ResetLookup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelSearch != nil {
		s.cancelSearch()
		s.cancelSearch = nil
	}
	s.search.Reset()
	s.custom = prescription.CustomEntry{}
}

// Prescriptions returns the added prescriptions and the pharmacist details
func (s *Session) Prescriptions() ([]prescription.PrescriptionData, prescription.PharmacistData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Items(), s.pharmacist
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:            s.ID,
		Prescription:  s.form,
		Pharmacist:    s.pharmacist,
		Prescriptions: s.collection.Items(),
		Lookup:        s.search.View(),
		CustomMode:    s.customMode,
		CustomEntry:   s.custom,
	}
}

// close cancels any in-flight search
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSearch != nil {
		s.cancelSearch()
		s.cancelSearch = nil
	}
}
