// Package entities holds the flat records returned by the Drug Product Database API
package entities

// Product is a drug product directory record
type Product struct {
	DrugCode    int    `json:"drug_code"`
	BrandName   string `json:"brand_name"`
	CompanyName string `json:"company_name"`
	DIN         string `json:"drug_identification_number,omitempty"`
}

// ActiveIngredient is one active ingredient of a drug product
type ActiveIngredient struct {
	DrugCode       int    `json:"drug_code"`
	IngredientName string `json:"ingredient_name"`
	Strength       string `json:"strength"`
	StrengthUnit   string `json:"strength_unit"`
	DosageUnit     string `json:"dosage_unit"`
	DosageValue    string `json:"dosage_value"`
}

// DosageForm is a pharmaceutical form of a drug product
type DosageForm struct {
	DrugCode int    `json:"drug_code"`
	FormCode int    `json:"pharmaceutical_form_code"`
	FormName string `json:"pharmaceutical_form_name"`
}
