package clusterkit

import (
	"errors"
	"fmt"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/internal/kmeans"
	"github.com/clusterkit/clusterkit/internal/sampling"
)

var (
	// ErrInvalidK is returned when the cluster count is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidIterations is returned when the iteration cap is not positive.
	ErrInvalidIterations = errors.New("max iterations must be positive")

	// ErrInvalidTolerance is returned when the convergence tolerance is not positive.
	ErrInvalidTolerance = errors.New("convergence tolerance must be positive")

	// ErrInvalidMemoryBudget is returned when the acceleration memory budget is negative.
	ErrInvalidMemoryBudget = errors.New("memory budget must not be negative")

	// ErrInvalidConcurrency is returned when the worker count is not positive.
	ErrInvalidConcurrency = errors.New("concurrency must be positive")

	// ErrInvalidDimension is returned when the data source reports a
	// non-positive feature dimensionality.
	ErrInvalidDimension = errors.New("dimension must be positive")

	// ErrNotEnoughDistinctInstances is returned when the data holds fewer
	// distinct points than the requested cluster count. No partial model
	// is returned.
	ErrNotEnoughDistinctInstances = errors.New("not enough distinct instances")

	// ErrNonFiniteCentroid is returned when training diverged into NaN or
	// infinite centroid coordinates. Never recoverable.
	ErrNonFiniteCentroid = errors.New("non-finite centroid coordinates generated")
)

// ErrDimensionMismatch indicates a row whose dimensionality differs from
// the trainer's configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes internal errors to the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sampling.ErrInsufficientRows) {
		return fmt.Errorf("%w: %w", ErrNotEnoughDistinctInstances, err)
	}
	if errors.Is(err, kmeans.ErrNonFinite) {
		return fmt.Errorf("%w: %w", ErrNonFiniteCentroid, err)
	}
	var dm *dataset.DimensionMismatchError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
