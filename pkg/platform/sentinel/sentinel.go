package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, sources, and the
// verification client return these (optionally wrapped) so callers can branch
// on the fact without string matching.
//
// - ErrNotFound: record or persisted session does not exist
// - ErrExpired: persisted session is stale beyond its confirmation window
// - ErrInvalidState: session in the wrong state for the requested operation
// - ErrUnavailable: external authority or backing store temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
