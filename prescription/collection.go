package prescription

// Collection is the ordered, append-only list of completed prescriptions
type Collection struct {
	items []PrescriptionData
}

// Add appends data when it names a medication and reports whether it did.
// An entry without a medication name is skipped silently.
func (c *Collection) Add(data PrescriptionData) bool {
	if data.MedicationName == "" {
		return false
	}
	c.items = append(c.items, data)
	return true
}

// Items returns a copy of the prescriptions in insertion order
func (c *Collection) Items() []PrescriptionData {
	out := make([]PrescriptionData, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of collected prescriptions
func (c *Collection) Len() int {
	return len(c.items)
}

// CustomEntry holds the two free-text fields of the custom drug entry mode
type CustomEntry struct {
	Name string `json:"name"`
	Dose string `json:"dose"`
}

// Option builds the medication option for the entry. It returns false when no name was typed.
func (e CustomEntry) Option() (MedicationOption, bool) {
	if e.Name == "" {
		return MedicationOption{}, false
	}
	return MedicationOption{
		BrandName:   e.Name,
		Strength:    e.Dose,
		DrugCode:    CustomDrugCode,
		CompanyName: CustomEntryCompany,
	}, true
}
