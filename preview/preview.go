// Package preview renders the added prescriptions and the pharmacist details into a read-only view.
package preview

import (
	"fmt"
	"strings"

	"github.com/giygas/rxwriter/prescription"
)

// Placeholder is shown until a prescription has been added
const Placeholder = "Your prescription preview will appear here after you add one."

// Line is one labeled value, "Dose: 500mg"
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section is one rendered prescription
type Section struct {
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

type View struct {
	Empty       bool      `json:"empty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Sections    []Section `json:"sections"`
	Pharmacist  []Line    `json:"pharmacist"`
}

// Render builds the view of items, in order, followed by the pharmacist lines.
// Empty fields are left out. Render has no side effects.
func Render(items []prescription.PrescriptionData, pharmacist prescription.PharmacistData) View {
	if len(items) == 0 {
		return View{
			Empty:       true,
			Placeholder: Placeholder,
			Sections:    []Section{},
			Pharmacist:  []Line{},
		}
	}

	view := View{
		Sections:   make([]Section, 0, len(items)),
		Pharmacist: []Line{},
	}

	for i, item := range items {
		section := Section{Title: fmt.Sprintf("Prescription %d", i+1), Lines: []Line{}}
		section.Lines = appendLine(section.Lines, "Medication", item.MedicationName)
		section.Lines = appendLine(section.Lines, "Dose", item.Dose)
		section.Lines = appendLine(section.Lines, "Sig", item.Sig)
		section.Lines = appendLine(section.Lines, "Mitte", item.Mitte)
		section.Lines = appendLine(section.Lines, "Refills", item.Refills)
		view.Sections = append(view.Sections, section)
	}

	view.Pharmacist = appendLine(view.Pharmacist, "Pharmacist", pharmacist.PharmacistName)
	view.Pharmacist = appendLine(view.Pharmacist, "License #", pharmacist.LicenseNumber)

	return view
}

func appendLine(lines []Line, label, value string) []Line {
	if value == "" {
		return lines
	}
	return append(lines, Line{Label: label, Value: value})
}

func (l Line) String() string {
	return l.Label + ": " + l.Value
}

// Text is the plain-text form of the view
func (v View) Text() string {
	if v.Empty {
		return v.Placeholder + "\n"
	}

	var b strings.Builder
	for _, section := range v.Sections {
		b.WriteString(section.Title)
		b.WriteString("\n")
		for _, line := range section.Lines {
			b.WriteString(line.String())
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	for _, line := range v.Pharmacist {
		b.WriteString(line.String())
		b.WriteString("\n")
	}
	return b.String()
}
