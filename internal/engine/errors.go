package engine

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when no principal could be resolved
// for a request.
var ErrNotAuthenticated = errors.New("not authenticated")

// ValidationError rejects a malformed or rule-violating write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// MoveConflictError signals that the target date of a move already
// holds a live materialized occurrence.
type MoveConflictError struct {
	SeriesID string
	Date     string
}

func (e MoveConflictError) Error() string {
	return fmt.Sprintf("occurrence already exists at %s for series %s", e.Date, e.SeriesID)
}
