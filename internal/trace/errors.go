package trace

import "fmt"

// MalformedTraceError reports raw execution data that violates a structural
// invariant of the trace model, such as a failed execution without a
// failure event or a failure referencing a node outside the path.
type MalformedTraceError struct {
	message string
}

// NewMalformedTraceError creates a new malformed trace error.
func NewMalformedTraceError(format string, args ...interface{}) *MalformedTraceError {
	return &MalformedTraceError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message.
func (e *MalformedTraceError) Error() string {
	return e.message
}

// IsMalformedTraceError checks if an error is a malformed trace error.
func IsMalformedTraceError(err error) bool {
	_, ok := err.(*MalformedTraceError)
	return ok
}
