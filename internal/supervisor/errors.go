package supervisor

import "errors"

var (
	// ErrNotFound is returned for session ids with no live session.
	ErrNotFound = errors.New("session not found")
	// ErrClosed is returned by operations on a closed supervisor.
	ErrClosed = errors.New("supervisor closed")
	// ErrInvalidID is returned by CreateSession for an empty id.
	ErrInvalidID = errors.New("session id is required")
	// ErrConsistency marks a lifecycle callback for a session whose
	// descriptor is missing from the registry.
	ErrConsistency = errors.New("registry out of sync with live sessions")
)
