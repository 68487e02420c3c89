package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Document, blob, account and session
// stores return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: document, blob or account does not exist
//   - ErrConflict: a unique field (id, email, user_id, registration_id) is taken
//   - ErrExpired: session or token is past its lifetime
//   - ErrInvalidState: the entity is in the wrong state for the operation
//   - ErrUnavailable: backend temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
