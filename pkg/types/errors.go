package types

import "fmt"

// ValidationError reports malformed input (unknown kind or type, confidence
// out of range). Validation failures are rejected before persistence and
// surfaced to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}
