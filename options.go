package clusterkit

import (
	"time"

	"github.com/clusterkit/clusterkit/resource"
)

// Initialization selects the centroid initialization strategy.
type Initialization int

const (
	// InitKMeansParallel is k-means|| (scalable k-means++): several
	// parallel oversampling rounds reduced to K weighted centroids.
	// The default.
	InitKMeansParallel Initialization = iota
	// InitKMeansPlusPlus is classic sequential k-means++.
	InitKMeansPlusPlus
	// InitRandom picks K rows uniformly at random.
	InitRandom
)

func (i Initialization) String() string {
	switch i {
	case InitKMeansParallel:
		return "KMeansParallel"
	case InitKMeansPlusPlus:
		return "KMeansPlusPlus"
	case InitRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

const (
	// DefaultTolerance is the convergence tolerance on the mean score.
	DefaultTolerance = 1e-7
	// DefaultMaxIterations caps the number of refinement passes.
	DefaultMaxIterations = 1000
	// DefaultMemoryBudgetMB bounds the acceleration structures.
	DefaultMemoryBudgetMB = 4096
	// DefaultLongRunThreshold is the projected k-means++ duration above
	// which a warning suggesting k-means|| is logged.
	DefaultLongRunThreshold = 5 * time.Minute
)

type options struct {
	initialization   Initialization
	maxIterations    int
	tolerance        float64
	memoryBudgetMB   int64
	concurrency      int
	seed             int64
	strictScore      bool
	longRunThreshold time.Duration
	logger           *Logger
	controller       *resource.Controller
}

// Option configures Train.
type Option func(*options)

// WithInitialization selects the initialization strategy.
func WithInitialization(init Initialization) Option {
	return func(o *options) {
		o.initialization = init
	}
}

// WithMaxIterations caps the number of refinement iterations. Training
// that hits the cap returns a valid model with Converged set to false.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithTolerance sets the convergence tolerance: training stops once the
// mean score changes by less than this between iterations.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

// WithMemoryBudgetMB bounds the memory spent on acceleration structures
// (cached assignments, distance bounds, candidate distance caches).
// Zero disables acceleration entirely; training still works, just
// without triangle-inequality pruning.
func WithMemoryBudgetMB(mb int64) Option {
	return func(o *options) {
		o.memoryBudgetMB = mb
	}
}

// WithConcurrency sets the worker count for data passes. The default is
// half the logical processors. Results are reproducible only for a
// fixed concurrency, because partition boundaries and per-worker random
// draws depend on it.
func WithConcurrency(workers int) Option {
	return func(o *options) {
		o.concurrency = workers
	}
}

// WithSeed sets the base random seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithStrictScore includes triangle-inequality-filtered points in the
// convergence score denominator, scoring each against its assigned
// centroid. Historically filtered points were excluded, which skews the
// mean when most points stop moving; this flag trades a little work per
// filtered point for an exact denominator.
func WithStrictScore(strict bool) Option {
	return func(o *options) {
		o.strictScore = strict
	}
}

// WithLongRunThreshold sets the projected k-means++ duration above
// which a warning is logged suggesting the parallel initializer.
// Advisory only; zero disables the warning.
func WithLongRunThreshold(d time.Duration) Option {
	return func(o *options) {
		o.longRunThreshold = d
	}
}

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithResourceController accounts the acceleration structures against a
// shared resource controller. When the controller cannot grant the full
// budget the trainer shrinks its acceleration arrays to what fits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}
