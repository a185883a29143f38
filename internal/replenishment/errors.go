package replenishment

import (
	"errors"
	"fmt"
)

// ErrMissingValue marks a null or blank field value.
var ErrMissingValue = errors.New("missing value")

// DataQualityError is returned when a required field of an input record cannot
// be coerced. It fails the computation of the whole branch.
type DataQualityError struct {
	Branch  string
	Set     string // general, orders or invoices
	Field   string
	GroupID string
	Value   any
	Err     error
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("branch %s: %s.%s for group %q: cannot coerce %v: %v",
		e.Branch, e.Set, e.Field, e.GroupID, e.Value, e.Err)
}

func (e *DataQualityError) Unwrap() error {
	return e.Err
}

// WindowError is returned when the invoice history does not fit the
// configured trailing window.
type WindowError struct {
	Branch string
	Want   int
	Got    int
	First  Period
	Last   Period
}

func (e *WindowError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("branch %s: no invoice history to derive a %d month window from", e.Branch, e.Want)
	}
	return fmt.Sprintf("branch %s: invoice history spans %d months (%s..%s), want %d",
		e.Branch, e.Got, e.First, e.Last, e.Want)
}
