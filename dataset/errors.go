package dataset

import "fmt"

// DimensionMismatchError indicates a row whose dimensionality differs
// from the dataset's configured dimension. This is a fatal data error:
// training aborts without a partial model.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
