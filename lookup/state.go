package lookup

import (
	"unicode/utf8"

	"github.com/giygas/rxwriter/metrics"
	"github.com/giygas/rxwriter/prescription"
)

const (
	// MessageNoResults is shown when a search returned nothing
	MessageNoResults = "No medications found"
	// MessageNoFilterMatches is shown when results exist but none pass the filters
	MessageNoFilterMatches = "No medications match your filters"
)

// State is the search, filter and selection state of one form.
// It is not safe for concurrent use; the owning session serialises access.
type State struct {
	mode        Mode
	query       string
	results     []prescription.MedicationOption
	visible     []prescription.MedicationOption
	dosageForms []string
	filters     Filters
	selected    *prescription.MedicationOption
	loading     bool
	generation  uint64
}

// StateView is a copy of State for rendering
type StateView struct {
	Mode        Mode                            `json:"mode"`
	Query       string                          `json:"query"`
	Results     []prescription.MedicationOption `json:"results"`
	Visible     []prescription.MedicationOption `json:"visible"`
	DosageForms []string                        `json:"dosageForms"`
	Filters     Filters                         `json:"filters"`
	Selected    *prescription.MedicationOption  `json:"selected,omitempty"`
	Loading     bool                            `json:"loading"`
	Message     string                          `json:"message,omitempty"`
}

func NewState() *State {
	return &State{mode: ModeBrand}
}

// Begin records a new search and returns its generation token.
// Queries too short to search clear the results immediately.
func (s *State) Begin(mode Mode, query string) uint64 {
	s.generation++
	s.mode = mode
	s.query = query

	if utf8.RuneCountInString(query) < MinQueryLength {
		s.loading = false
		s.results = nil
		s.visible = nil
		return s.generation
	}

	s.loading = true
	return s.generation
}

// Complete applies the outcome of the search identified by token.
// It returns false, leaving the state untouched, when a newer search has begun since.
func (s *State) Complete(token uint64, result Result, err error) bool {
	if token != s.generation {
		metrics.LookupStaleResults.Inc()
		return false
	}

	s.loading = false
	if err != nil {
		s.results = nil
		s.visible = nil
		s.dosageForms = nil
		return true
	}

	s.results = result.Options
	s.dosageForms = result.DosageForms
	s.visible = ApplyFilters(s.results, s.filters)
	return true
}

func (s *State) SetStrengthFilter(strength string) {
	s.filters.Strength = strength
	s.visible = ApplyFilters(s.results, s.filters)
}

func (s *State) SetDosageFormFilter(form string) {
	s.filters.DosageForm = form
	s.visible = ApplyFilters(s.results, s.filters)
}

// SetFilters replaces both filters at once
func (s *State) SetFilters(f Filters) {
	s.filters = f
	s.visible = ApplyFilters(s.results, s.filters)
}

// Select marks the visible option with drugCode as selected
func (s *State) Select(drugCode int) (prescription.MedicationOption, bool) {
	for _, o := range s.visible {
		if o.DrugCode == drugCode {
			selected := o
			s.selected = &selected
			return selected, true
		}
	}
	return prescription.MedicationOption{}, false
}

// SelectOption marks an option that did not come from a search, such as a custom entry
func (s *State) SelectOption(o prescription.MedicationOption) {
	s.selected = &o
}

// Clear drops the query, results and selection and invalidates any pending search.
// Filters and mode are kept.
func (s *State) Clear() {
	s.generation++
	s.query = ""
	s.results = nil
	s.visible = nil
	s.selected = nil
	s.loading = false
}

// Reset clears everything, filters and dosage form choices included
func (s *State) Reset() {
	s.Clear()
	s.filters = Filters{}
	s.dosageForms = nil
}

// Message is the empty-state text to show, if any
func (s *State) Message() string {
	if s.loading || len(s.visible) > 0 || utf8.RuneCountInString(s.query) < MinQueryLength {
		return ""
	}
	if len(s.results) > 0 {
		return MessageNoFilterMatches
	}
	return MessageNoResults
}

func (s *State) View() StateView {
	view := StateView{
		Mode:        s.mode,
		Query:       s.query,
		Results:     append([]prescription.MedicationOption{}, s.results...),
		Visible:     append([]prescription.MedicationOption{}, s.visible...),
		DosageForms: append([]string{}, s.dosageForms...),
		Filters:     s.filters,
		Loading:     s.loading,
		Message:     s.Message(),
	}
	if s.selected != nil {
		selected := *s.selected
		view.Selected = &selected
	}
	return view
}
