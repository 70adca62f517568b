package models

import "sync"

// ErrorKind classifies recoverable load failures.
type ErrorKind string

const (
	ErrNullIncidentID     ErrorKind = "null_incident_id"
	ErrNoResponseIDColumn ErrorKind = "no_response_id_column"
	ErrNullResponseID     ErrorKind = "null_response_id"
	ErrNullValue          ErrorKind = "null_value"
	ErrBadValue           ErrorKind = "bad_value"
	ErrMergeConflict      ErrorKind = "merge_conflict"
	ErrLoaderException    ErrorKind = "loader_exception"
)

// LoadError records a single reconciliation or derivation failure. Errors are
// diagnostics for the caller, not control flow: the pipeline keeps going.
type LoadError struct {
	Kind    ErrorKind
	Source  string
	Mapping string
	Record  map[string]string
	Detail  string
}

// ErrorLog is an append-only collector of load errors. Appends are safe for
// concurrent use so the geo enrichment workers can share one log.
type ErrorLog struct {
	mu     sync.Mutex
	errors []LoadError
}

// NewErrorLog creates an empty log.
func NewErrorLog() *ErrorLog { return &ErrorLog{} }

// Append records an error in arrival order.
func (l *ErrorLog) Append(e LoadError) {
	l.mu.Lock()
	l.errors = append(l.errors, e)
	l.mu.Unlock()
}

// All returns a copy of the recorded errors in arrival order.
func (l *ErrorLog) All() []LoadError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LoadError, len(l.errors))
	copy(out, l.errors)
	return out
}

// Len returns the number of recorded errors.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// CountByKind tallies errors per kind for summary reporting.
func (l *ErrorLog) CountByKind() map[ErrorKind]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[ErrorKind]int, len(l.errors))
	for _, e := range l.errors {
		counts[e.Kind]++
	}
	return counts
}
