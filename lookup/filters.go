package lookup

import (
	"strings"

	"github.com/giygas/rxwriter/prescription"
	"golang.org/x/text/cases"
)

// Filters narrow a result set without altering it
type Filters struct {
	Strength   string `json:"strength"`   // case-insensitive substring of the option strength
	DosageForm string `json:"dosageForm"` // exact dosage form, empty for all forms
}

// IsZero reports whether no filter is active
func (f Filters) IsZero() bool {
	return f.Strength == "" && f.DosageForm == ""
}

// ApplyFilters returns the options of all that pass f. all is never modified.
func ApplyFilters(all []prescription.MedicationOption, f Filters) []prescription.MedicationOption {
	visible := make([]prescription.MedicationOption, 0, len(all))

	fold := cases.Fold()
	strength := fold.String(f.Strength)

	for _, o := range all {
		if strength != "" && !strings.Contains(fold.String(o.Strength), strength) {
			continue
		}
		if f.DosageForm != "" && o.DosageForm != f.DosageForm {
			continue
		}
		visible = append(visible, o)
	}
	return visible
}
