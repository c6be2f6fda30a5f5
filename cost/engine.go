package cost

import (
	"go.uber.org/zap"
)

// =============================================================================
// OBSERVER - Telemetry for anomalies that must not abort a calculation
// =============================================================================

// Exclusion reasons reported to Observer.ExcludedLine.
const (
	ExcludedMissingHardware  = "missing_hardware"
	ExcludedMissingSoftware  = "missing_software"
	ExcludedInvalidQuantity  = "invalid_quantity"
	ExcludedInvalidLicense   = "invalid_license_model"
	ExcludedDanglingCoverage = "dangling_coverage"
	ExcludedInvalidScope     = "invalid_scope"
)

// Observer receives anomalies that degrade to zero or excluded lines.
// A degenerate allocation is distinct from a genuinely free item.
type Observer interface {
	DegenerateAllocation(softwareID SoftwareID)
	ExcludedLine(reason string)
}

type nopObserver struct{}

func (nopObserver) DegenerateAllocation(SoftwareID) {}
func (nopObserver) ExcludedLine(string)             {}

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes position costs and rollups from a ReadStore.
// It holds no mutable state; every method is safe for concurrent use.
type Engine struct {
	org          OrgStore
	catalog      CatalogStore
	requirements RequirementStore
	coverage     CoverageStore

	logger   *zap.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for degenerate allocations and exclusions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine creates an engine reading from store.
func NewEngine(store ReadStore, opts ...Option) *Engine {
	e := &Engine{
		org:          store,
		catalog:      store,
		requirements: store,
		coverage:     store,
		logger:       zap.NewNop(),
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pass carries per-call memoization for one top-level calculation.
// Coverage is resolved once per software item per pass.
type pass struct {
	headcount map[SoftwareID]int
}

func newPass() *pass {
	return &pass{headcount: make(map[SoftwareID]int)}
}
