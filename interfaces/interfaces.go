// Package interfaces defines core abstractions for the RxWriter service
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"time"

	"github.com/giygas/rxwriter/dpd/entities"
)

// DrugDirectory defines the contract for the external drug product database.
// Every call may block on the network and must honour ctx cancellation.
type DrugDirectory interface {
	// Products returns the full product directory
	Products(ctx context.Context) ([]entities.Product, error)

	// IngredientsByName returns active ingredient records matching an ingredient name
	IngredientsByName(ctx context.Context, name string) ([]entities.ActiveIngredient, error)

	// IngredientsByCode returns the active ingredients of one product
	IngredientsByCode(ctx context.Context, drugCode int) ([]entities.ActiveIngredient, error)

	// Forms returns the dosage forms of one product
	Forms(ctx context.Context, drugCode int) ([]entities.DosageForm, error)
}

// DirectoryStatus summarises recent calls to the drug directory
type DirectoryStatus struct {
	LastSuccess time.Time
	LastFailure time.Time
	LastError   string
}

// Failing reports whether the most recent completed call failed
func (s DirectoryStatus) Failing() bool {
	return !s.LastFailure.IsZero() && s.LastFailure.After(s.LastSuccess)
}

// DirectoryMonitor is implemented by directories that track their call outcomes
type DirectoryMonitor interface {
	Status() DirectoryStatus
}

// SessionSweeper defines the session store operations used by the scheduler and health checks
type SessionSweeper interface {
	Len() int
	Capacity() int
	// Sweep removes sessions idle at now and returns how many were removed
	Sweep(now time.Time) int
}

// BucketPruner is implemented by rate limiters that can drop idle client buckets
type BucketPruner interface {
	// Prune removes buckets of clients that are back to full capacity and returns how many were removed
	Prune() int
}

// Scheduler defines the contract for background job scheduling.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status and the HTTP status to answer with
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// InputValidator defines the contract for user input validation.
type InputValidator interface {
	// ValidateQuery checks a lookup search query
	ValidateQuery(query string) error

	// ValidateFieldValue checks a free-text form field value
	ValidateFieldValue(value string) error

	// ValidateDrugCode parses and checks a DPD drug code
	ValidateDrugCode(input string) (int, error)
}
