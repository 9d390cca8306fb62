package store

import "errors"

// Error kinds surfaced by the store layer. Callers match with errors.Is; the
// wrapped message carries the source tag for the error log.
var (
	// ErrIntegrity means the open-time checks failed. Fatal to the handle.
	ErrIntegrity = errors.New("store integrity check failed")

	// ErrSchemaBehind means the database schema is newer than this binary
	// understands. Non-fatal; the caller should log and continue read-only-ish.
	ErrSchemaBehind = errors.New("database schema is newer than this binary")

	// ErrNotFound means a lookup returned empty where a row was required.
	ErrNotFound = errors.New("not found")

	// ErrUnreachable means the remote primary could not be reached.
	ErrUnreachable = errors.New("remote primary unreachable")

	// ErrUnavailable means the operation is not supported in the current mode,
	// e.g. raw engine access through the remote adapter.
	ErrUnavailable = errors.New("operation unavailable in this mode")
)
