package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/giygas/rxwriter/dpd/entities"
)

// fakeDirectory implements interfaces.DrugDirectory for testing
type fakeDirectory struct {
	products    []entities.Product
	byName      map[string][]entities.ActiveIngredient
	ingredients map[int][]entities.ActiveIngredient
	forms       map[int][]entities.DosageForm

	productsErr error
	byNameErr   error
	detailErr   map[int]error

	calls atomic.Int64

	mu        sync.Mutex
	detailed  []int
	inFlight  int
	maxFlight int
}

func (f *fakeDirectory) Products(ctx context.Context) ([]entities.Product, error) {
	f.calls.Add(1)
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return f.products, nil
}

func (f *fakeDirectory) IngredientsByName(ctx context.Context, name string) ([]entities.ActiveIngredient, error) {
	f.calls.Add(1)
	if f.byNameErr != nil {
		return nil, f.byNameErr
	}
	return f.byName[strings.ToUpper(name)], nil
}

func (f *fakeDirectory) IngredientsByCode(ctx context.Context, drugCode int) ([]entities.ActiveIngredient, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.detailed = append(f.detailed, drugCode)
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err := f.detailErr[drugCode]; err != nil {
		return nil, err
	}
	return f.ingredients[drugCode], nil
}

func (f *fakeDirectory) Forms(ctx context.Context, drugCode int) ([]entities.DosageForm, error) {
	f.calls.Add(1)
	return f.forms[drugCode], nil
}

func ingredient(code int, name, strength, unit string) entities.ActiveIngredient {
	return entities.ActiveIngredient{DrugCode: code, IngredientName: name, Strength: strength, StrengthUnit: unit}
}

func form(code int, name string) entities.DosageForm {
	return entities.DosageForm{DrugCode: code, FormName: name}
}

// tylenolDirectory is a small directory whose Tylenol products are listed out of alphabetical order
func tylenolDirectory() *fakeDirectory {
	return &fakeDirectory{
		products: []entities.Product{
			{DrugCode: 30, BrandName: "TYLENOL EXTRA STRENGTH", CompanyName: "JOHNSON & JOHNSON", DIN: "00559407"},
			{DrugCode: 10, BrandName: "ADVIL", CompanyName: "PFIZER", DIN: "02242704"},
			{DrugCode: 20, BrandName: "Tylenol Arthritis", CompanyName: "JOHNSON & JOHNSON", DIN: "02238885"},
			{DrugCode: 40, BrandName: "CHILDREN'S TYLENOL", CompanyName: "JOHNSON & JOHNSON", DIN: "02046024"},
		},
		byName: map[string][]entities.ActiveIngredient{
			"ACETAMINOPHEN": {
				ingredient(40, "ACETAMINOPHEN", "160", "MG"),
				ingredient(30, "ACETAMINOPHEN", "500", "MG"),
				ingredient(40, "ACETAMINOPHEN", "80", "MG"),
				ingredient(99, "ACETAMINOPHEN", "325", "MG"),
			},
		},
		ingredients: map[int][]entities.ActiveIngredient{
			10: {ingredient(10, "IBUPROFEN", "200", "MG")},
			20: {ingredient(20, "ACETAMINOPHEN", "650", "MG")},
			30: {ingredient(30, "ACETAMINOPHEN", "500", "MG"), ingredient(30, "CAFFEINE", "30", "MG")},
			40: {ingredient(40, "ACETAMINOPHEN", "160", "MG")},
		},
		forms: map[int][]entities.DosageForm{
			10: {form(10, "TABLET")},
			20: {form(20, "TABLET (EXTENDED-RELEASE)")},
			30: {form(30, "TABLET"), form(30, "CAPLET")},
			40: {form(40, "SUSPENSION")},
		},
	}
}

func brandNames(result Result) []string {
	names := make([]string, len(result.Options))
	for i, o := range result.Options {
		names[i] = o.BrandName
	}
	return names
}

func TestShortQueryIssuesNoRequest(t *testing.T) {
	dir := tylenolDirectory()
	engine := NewEngine(dir, Config{})

	for _, query := range []string{"", "T", "é"} {
		for _, mode := range []Mode{ModeBrand, ModeDIN, ModeIngredient} {
			result, err := engine.Search(context.Background(), mode, query)
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", query, err)
			}
			if len(result.Options) != 0 {
				t.Errorf("Expected empty result for %q, got %d options", query, len(result.Options))
			}
		}
	}

	if calls := dir.calls.Load(); calls != 0 {
		t.Errorf("Expected no directory calls, got %d", calls)
	}
}

func TestBrandSearchTylenol(t *testing.T) {
	engine := NewEngine(tylenolDirectory(), Config{})

	result, err := engine.Search(context.Background(), ModeBrand, "Tylenol")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"TYLENOL EXTRA STRENGTH", "Tylenol Arthritis", "CHILDREN'S TYLENOL"}
	got := brandNames(result)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected directory order %v, got %v", want, got)
	}

	for _, o := range result.Options {
		if !strings.Contains(strings.ToLower(o.BrandName), "tylenol") {
			t.Errorf("Option %q does not contain the query", o.BrandName)
		}
	}

	first := result.Options[0]
	if first.Strength != "500MG" {
		t.Errorf("Expected first ingredient strength 500MG, got %s", first.Strength)
	}
	if first.DosageForm != "TABLET" {
		t.Errorf("Expected first form TABLET, got %s", first.DosageForm)
	}
	if first.ActiveIngredient != "ACETAMINOPHEN" || first.DIN != "00559407" || first.CompanyName != "JOHNSON & JOHNSON" {
		t.Errorf("Unexpected option fields: %+v", first)
	}

	wantForms := []string{"SUSPENSION", "TABLET", "TABLET (EXTENDED-RELEASE)"}
	if fmt.Sprint(result.DosageForms) != fmt.Sprint(wantForms) {
		t.Errorf("Expected dosage forms %v, got %v", wantForms, result.DosageForms)
	}
}

func TestDINSearch(t *testing.T) {
	engine := NewEngine(tylenolDirectory(), Config{})

	result, err := engine.Search(context.Background(), ModeDIN, "0223")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Options) != 1 || result.Options[0].DrugCode != 20 {
		t.Fatalf("Expected drug code 20 only, got %+v", result.Options)
	}
	for _, o := range result.Options {
		if !strings.Contains(o.DIN, "0223") {
			t.Errorf("Option DIN %q does not contain the query", o.DIN)
		}
	}
}

func TestIngredientSearch(t *testing.T) {
	dir := tylenolDirectory()
	engine := NewEngine(dir, Config{})

	result, err := engine.Search(context.Background(), ModeIngredient, "acetaminophen")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 40 appears twice in the ingredient records, 99 has no product
	var codes []int
	for _, o := range result.Options {
		codes = append(codes, o.DrugCode)
	}
	if fmt.Sprint(codes) != "[40 30]" {
		t.Errorf("Expected codes [40 30], got %v", codes)
	}
}

func TestIngredientSearchWithoutMatchesSkipsDirectory(t *testing.T) {
	dir := tylenolDirectory()
	dir.productsErr = errors.New("must not be called")
	engine := NewEngine(dir, Config{})

	result, err := engine.Search(context.Background(), ModeIngredient, "unobtainium")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Options) != 0 {
		t.Errorf("Expected empty result, got %+v", result.Options)
	}
}

func TestNoMatchesIsEmptyResult(t *testing.T) {
	dir := tylenolDirectory()
	engine := NewEngine(dir, Config{})

	result, err := engine.Search(context.Background(), ModeBrand, "zzz")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Options) != 0 || len(result.DosageForms) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
	if len(dir.detailed) != 0 {
		t.Errorf("Expected no detail lookups, got %v", dir.detailed)
	}
}

func TestResultCap(t *testing.T) {
	dir := &fakeDirectory{
		ingredients: map[int][]entities.ActiveIngredient{},
		forms:       map[int][]entities.DosageForm{},
	}
	for code := 1; code <= 150; code++ {
		dir.products = append(dir.products, entities.Product{DrugCode: code, BrandName: fmt.Sprintf("GENERIC %d", code)})
		dir.ingredients[code] = []entities.ActiveIngredient{ingredient(code, "X", "1", "MG")}
	}

	t.Run("default cap", func(t *testing.T) {
		result, err := NewEngine(dir, Config{}).Search(context.Background(), ModeBrand, "generic")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(result.Options) != DefaultMaxResults {
			t.Errorf("Expected %d options, got %d", DefaultMaxResults, len(result.Options))
		}
		if result.Options[0].DrugCode != 1 || result.Options[99].DrugCode != 100 {
			t.Errorf("Expected the first 100 codes in order")
		}
	})

	t.Run("configured cap and bounded fan-out", func(t *testing.T) {
		dir.maxFlight = 0
		result, err := NewEngine(dir, Config{MaxResults: 10, Concurrency: 2}).Search(context.Background(), ModeBrand, "generic")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(result.Options) != 10 {
			t.Errorf("Expected 10 options, got %d", len(result.Options))
		}
		if dir.maxFlight > 2 {
			t.Errorf("Expected at most 2 concurrent detail lookups, got %d", dir.maxFlight)
		}
	})
}

func TestDetailFailureDropsOneCode(t *testing.T) {
	dir := tylenolDirectory()
	dir.detailErr = map[int]error{20: errors.New("connection reset")}
	engine := NewEngine(dir, Config{})

	result, err := engine.Search(context.Background(), ModeBrand, "tylenol")
	if err != nil {
		t.Fatalf("A detail failure must not fail the search: %v", err)
	}

	want := []string{"TYLENOL EXTRA STRENGTH", "CHILDREN'S TYLENOL"}
	if fmt.Sprint(brandNames(result)) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, brandNames(result))
	}
}

func TestCodeWithoutIngredientsIsDropped(t *testing.T) {
	dir := tylenolDirectory()
	delete(dir.ingredients, 40)
	engine := NewEngine(dir, Config{})

	result, err := engine.Search(context.Background(), ModeBrand, "tylenol")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, o := range result.Options {
		if o.DrugCode == 40 {
			t.Error("Expected drug code 40 to be dropped")
		}
	}
	if len(result.Options) != 2 {
		t.Errorf("Expected 2 options, got %d", len(result.Options))
	}
}

func TestEmptyStrengthAndMissingForm(t *testing.T) {
	dir := &fakeDirectory{
		products:    []entities.Product{{DrugCode: 5, BrandName: "HERBAL TEA"}},
		ingredients: map[int][]entities.ActiveIngredient{5: {ingredient(5, "CHAMOMILE", "", "MG")}},
	}

	result, err := NewEngine(dir, Config{}).Search(context.Background(), ModeBrand, "tea")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Options) != 1 {
		t.Fatalf("Expected 1 option, got %d", len(result.Options))
	}
	if result.Options[0].Strength != "" || result.Options[0].DosageForm != "" {
		t.Errorf("Expected empty strength and form, got %+v", result.Options[0])
	}
	if len(result.DosageForms) != 0 {
		t.Errorf("Expected no dosage form choices, got %v", result.DosageForms)
	}
}

func TestTopLevelFailure(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		setup func(*fakeDirectory)
	}{
		{"brand directory", ModeBrand, func(d *fakeDirectory) { d.productsErr = errors.New("timeout") }},
		{"din directory", ModeDIN, func(d *fakeDirectory) { d.productsErr = errors.New("timeout") }},
		{"ingredient lookup", ModeIngredient, func(d *fakeDirectory) { d.byNameErr = errors.New("timeout") }},
		{"ingredient directory", ModeIngredient, func(d *fakeDirectory) { d.productsErr = errors.New("timeout") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tylenolDirectory()
			tt.setup(dir)

			result, err := NewEngine(dir, Config{}).Search(context.Background(), tt.mode, "acetaminophen")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if len(result.Options) != 0 {
				t.Errorf("Expected no options on failure, got %d", len(result.Options))
			}
		})
	}
}

func TestCanceledSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := tylenolDirectory()
	_, err := NewEngine(dir, Config{}).Search(ctx, ModeBrand, "tylenol")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestUnknownMode(t *testing.T) {
	_, err := NewEngine(tylenolDirectory(), Config{}).Search(context.Background(), Mode("atc"), "N02")
	if !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeBrand, false},
		{"brand", ModeBrand, false},
		{"DIN", ModeDIN, false},
		{" ingredient ", ModeIngredient, false},
		{"atc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Errorf("Expected ErrUnknownMode, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
		})
	}
}
