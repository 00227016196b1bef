// Package lookup resolves a search query against the drug product database into
// medication options, and keeps the per-session search, filter and selection state.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/rxwriter/dpd/entities"
	"github.com/giygas/rxwriter/interfaces"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/metrics"
	"github.com/giygas/rxwriter/prescription"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

const (
	// MinQueryLength is the shortest query, in characters, that reaches the directory
	MinQueryLength = 2

	DefaultMaxResults = 100
)

// Config tunes the engine
type Config struct {
	MaxResults  int // codes enriched per search, DefaultMaxResults when <= 0
	Concurrency int // parallel detail lookups, 0 means one goroutine per code
}

// Result is the outcome of one search
type Result struct {
	Options     []prescription.MedicationOption `json:"options"`
	DosageForms []string                        `json:"dosageForms"`
}

// Engine runs medication searches against a DrugDirectory
type Engine struct {
	dir         interfaces.DrugDirectory
	maxResults  int
	concurrency int
}

func NewEngine(dir interfaces.DrugDirectory, cfg Config) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	return &Engine{
		dir:         dir,
		maxResults:  cfg.MaxResults,
		concurrency: cfg.Concurrency,
	}
}

// Search returns the medication options matching query, in directory order.
// Queries shorter than MinQueryLength return an empty result without any request.
// An error means the directory itself could not be queried; failures on a single
// drug code only drop that code.
func (e *Engine) Search(ctx context.Context, mode Mode, query string) (Result, error) {
	if utf8.RuneCountInString(query) < MinQueryLength {
		return Result{}, nil
	}

	start := time.Now()
	result, err := e.search(ctx, mode, query)
	metrics.LookupSearchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	case len(result.Options) == 0:
		outcome = "empty"
	}
	metrics.LookupSearchesTotal.WithLabelValues(string(mode), outcome).Inc()
	if err == nil {
		metrics.LookupResults.Observe(float64(len(result.Options)))
	}

	return result, err
}

func (e *Engine) search(ctx context.Context, mode Mode, query string) (Result, error) {
	codes, products, err := e.resolve(ctx, mode, query)
	if err != nil {
		return Result{}, err
	}
	if len(codes) == 0 {
		return Result{}, nil
	}

	if len(codes) > e.maxResults {
		codes = codes[:e.maxResults]
	}

	options, err := e.enrich(ctx, codes, products)
	if err != nil {
		return Result{}, err
	}

	return Result{Options: options, DosageForms: DosageForms(options)}, nil
}

// resolve returns the unique matching drug codes in collection order and the products known for them
func (e *Engine) resolve(ctx context.Context, mode Mode, query string) ([]int, map[int]entities.Product, error) {
	var codes []int
	seen := make(map[int]bool)
	add := func(code int) {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	switch mode {
	case ModeBrand, ModeDIN:
		all, err := e.dir.Products(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch drug products: %w", err)
		}

		products := make(map[int]entities.Product)
		var match func(entities.Product) bool
		if mode == ModeBrand {
			fold := cases.Fold()
			needle := fold.String(query)
			match = func(p entities.Product) bool {
				return strings.Contains(fold.String(p.BrandName), needle)
			}
		} else {
			match = func(p entities.Product) bool {
				return p.DIN != "" && strings.Contains(p.DIN, query)
			}
		}

		for _, p := range all {
			if !match(p) {
				continue
			}
			if _, ok := products[p.DrugCode]; !ok {
				products[p.DrugCode] = p
			}
			add(p.DrugCode)
		}
		return codes, products, nil

	case ModeIngredient:
		ingredients, err := e.dir.IngredientsByName(ctx, query)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch active ingredients: %w", err)
		}
		for _, ing := range ingredients {
			add(ing.DrugCode)
		}
		if len(codes) == 0 {
			return nil, nil, nil
		}

		all, err := e.dir.Products(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch drug products: %w", err)
		}
		products := make(map[int]entities.Product, len(codes))
		for _, p := range all {
			if !seen[p.DrugCode] {
				continue
			}
			if _, ok := products[p.DrugCode]; !ok {
				products[p.DrugCode] = p
			}
		}
		return codes, products, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// enrich fetches ingredients and forms for every code concurrently and keeps input order
func (e *Engine) enrich(ctx context.Context, codes []int, products map[int]entities.Product) ([]prescription.MedicationOption, error) {
	slots := make([]*prescription.MedicationOption, len(codes))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	for i, code := range codes {
		product, ok := products[code]
		if !ok {
			continue
		}
		g.Go(func() error {
			option, err := e.detail(ctx, product)
			if err != nil {
				if ctx.Err() == nil {
					metrics.LookupCandidatesDropped.Inc()
					logging.Warn("Dropping drug code after detail lookup failure", "drug_code", code, "error", err)
				}
				return nil
			}
			slots[i] = option
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := make([]prescription.MedicationOption, 0, len(slots))
	for _, option := range slots {
		if option != nil {
			options = append(options, *option)
		}
	}
	return options, nil
}

// detail builds the option of one product from its first ingredient and first form.
// A product without ingredient data yields nil without error.
func (e *Engine) detail(ctx context.Context, product entities.Product) (*prescription.MedicationOption, error) {
	var (
		ingredients []entities.ActiveIngredient
		forms       []entities.DosageForm
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ingredients, err = e.dir.IngredientsByCode(gctx, product.DrugCode)
		return err
	})
	g.Go(func() error {
		var err error
		forms, err = e.dir.Forms(gctx, product.DrugCode)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(ingredients) == 0 {
		return nil, nil
	}

	ingredient := ingredients[0]
	option := &prescription.MedicationOption{
		BrandName:        product.BrandName,
		Strength:         formatStrength(ingredient),
		DrugCode:         product.DrugCode,
		CompanyName:      product.CompanyName,
		DIN:              product.DIN,
		ActiveIngredient: ingredient.IngredientName,
	}
	if len(forms) > 0 {
		option.DosageForm = forms[0].FormName
	}
	return option, nil
}

// formatStrength joins strength and unit, "500" + "MG" -> "500MG"
func formatStrength(ing entities.ActiveIngredient) string {
	if ing.Strength == "" {
		return ""
	}
	return ing.Strength + ing.StrengthUnit
}

// DosageForms returns the distinct non-empty dosage forms of options, sorted
func DosageForms(options []prescription.MedicationOption) []string {
	seen := make(map[string]bool)
	forms := []string{}
	for _, o := range options {
		if o.DosageForm == "" || seen[o.DosageForm] {
			continue
		}
		seen[o.DosageForm] = true
		forms = append(forms, o.DosageForm)
	}
	sort.Strings(forms)
	return forms
}
