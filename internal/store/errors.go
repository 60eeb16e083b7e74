package store

import "errors"

// Error taxonomy of the store. Callers discriminate with errors.Is; every
// returned error wraps exactly one of these (or is an I/O error wrapped
// with the offending path).
var (
	// ErrValidation reports malformed input. Never retried, surfaced
	// verbatim.
	ErrValidation = errors.New("invalid snippet")

	// ErrDuplicateTrigger reports a create (or trigger rename) that would
	// collide with an existing snippet.
	ErrDuplicateTrigger = errors.New("trigger already exists")

	// ErrNotFound reports a trigger that does not resolve.
	ErrNotFound = errors.New("snippet not found")

	// ErrConflict reports an optimistic-concurrency collision that
	// persisted after one retry. The caller may retry manually.
	ErrConflict = errors.New("conflicting concurrent modification")

	// ErrDuplicateVariable reports a global variable name collision.
	ErrDuplicateVariable = errors.New("variable already exists")

	// ErrVariableNotFound reports a global variable that does not exist.
	ErrVariableNotFound = errors.New("variable not found")

	// errStale is an internal sentinel: the target file changed on disk
	// between taking the cache snapshot and writing. The operation is
	// retried once before surfacing ErrConflict.
	errStale = errors.New("stale snapshot")
)
