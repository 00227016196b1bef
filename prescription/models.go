// Package prescription holds the RxWriter data model: medication options
// produced by a lookup or a custom entry, the in-progress prescription form,
// the pharmacist identification and the accumulated prescription collection.
package prescription

import (
	"errors"
	"fmt"
)

const (
	// CustomDrugCode is the sentinel drug code of entries that do not come from the directory
	CustomDrugCode = 0
	// CustomEntryCompany is the company name given to custom entries
	CustomEntryCompany = "Custom Entry"
)

// ErrUnknownField is returned when a wire field name is outside the closed field set
var ErrUnknownField = errors.New("unknown field")

// MedicationOption is the normalized result of a directory lookup or a custom entry
type MedicationOption struct {
	BrandName        string `json:"brandName"`
	Strength         string `json:"strength"`
	DosageForm       string `json:"dosageForm"`
	DrugCode         int    `json:"drugCode"`
	CompanyName      string `json:"companyName"`
	DIN              string `json:"din"`
	ActiveIngredient string `json:"activeIngredient"`
}

// IsCustom reports whether the option was typed in rather than found in the directory
func (m MedicationOption) IsCustom() bool {
	return m.DrugCode == CustomDrugCode && m.CompanyName == CustomEntryCompany
}

// PrescriptionData is one prescription, in progress or already collected
type PrescriptionData struct {
	MedicationName string `json:"medicationName,omitempty"`
	Dose           string `json:"dose,omitempty"`
	Sig            string `json:"sig,omitempty"`
	Mitte          string `json:"mitte,omitempty"`
	Refills        string `json:"refills,omitempty"`
	DosageForm     string `json:"dosageForm,omitempty"`
}

// PharmacistData identifies the pharmacist for the whole session
type PharmacistData struct {
	PharmacistName string `json:"pharmacistName,omitempty"`
	LicenseNumber  string `json:"licenseNumber,omitempty"`
}

// PrescriptionField enumerates the editable prescription inputs
type PrescriptionField int

const (
	FieldMedicationName PrescriptionField = iota + 1
	FieldDose
	FieldSig
	FieldMitte
	FieldRefills
)

var prescriptionFieldNames = map[PrescriptionField]string{
	FieldMedicationName: "medicationName",
	FieldDose:           "dose",
	FieldSig:            "sig",
	FieldMitte:          "mitte",
	FieldRefills:        "refills",
}

func (f PrescriptionField) String() string {
	if name, ok := prescriptionFieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PrescriptionField(%d)", int(f))
}

// ParsePrescriptionField maps a wire name such as "sig" to its field
func ParsePrescriptionField(name string) (PrescriptionField, error) {
	for field, n := range prescriptionFieldNames {
		if n == name {
			return field, nil
		}
	}
	return 0, fmt.Errorf("%w: prescription field %q", ErrUnknownField, name)
}

// PharmacistField enumerates the pharmacist inputs
type PharmacistField int

const (
	FieldPharmacistName PharmacistField = iota + 1
	FieldLicenseNumber
)

func (f PharmacistField) String() string {
	switch f {
	case FieldPharmacistName:
		return "pharmacistName"
	case FieldLicenseNumber:
		return "licenseNumber"
	}
	return fmt.Sprintf("PharmacistField(%d)", int(f))
}

// ParsePharmacistField maps a wire name to its pharmacist field
func ParsePharmacistField(name string) (PharmacistField, error) {
	switch name {
	case "pharmacistName":
		return FieldPharmacistName, nil
	case "licenseNumber":
		return FieldLicenseNumber, nil
	}
	return 0, fmt.Errorf("%w: pharmacist field %q", ErrUnknownField, name)
}

// Set updates a single prescription field
func (p *PrescriptionData) Set(field PrescriptionField, value string) error {
	switch field {
	case FieldMedicationName:
		p.MedicationName = value
	case FieldDose:
		p.Dose = value
	case FieldSig:
		p.Sig = value
	case FieldMitte:
		p.Mitte = value
	case FieldRefills:
		p.Refills = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// Adopt copies a selected medication into the form. Sig, mitte and refills are kept.
func (p *PrescriptionData) Adopt(option MedicationOption) {
	p.MedicationName = option.BrandName
	p.Dose = option.Strength
	p.DosageForm = option.DosageForm
}

// IsEmpty reports whether no field has been filled in
func (p PrescriptionData) IsEmpty() bool {
	return p == PrescriptionData{}
}

// Set updates a single pharmacist field
func (p *PharmacistData) Set(field PharmacistField, value string) error {
	switch field {
	case FieldPharmacistName:
		p.PharmacistName = value
	case FieldLicenseNumber:
		p.LicenseNumber = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}
