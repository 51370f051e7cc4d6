package tracker

import "errors"

// Expected, recoverable-by-caller conditions. Anything else coming out of
// the repository is treated as an opaque infrastructure fault and surfaced
// generically.
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAssigneeNotFound = errors.New("assignee not found")
	ErrVersionConflict  = errors.New("task was modified concurrently")
)

// ForbiddenError is a policy denial. Reason is the oracle's explanation and
// is safe to surface to the caller.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// ValidationError marks a schema or input violation, e.g. an empty title or
// a non-positive time delta.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
