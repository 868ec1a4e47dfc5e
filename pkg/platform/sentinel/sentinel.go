package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so the HTTP layer can translate them into
// status codes.
//
// - ErrNotFound: entity does not exist in store
// - ErrConflict: resource is already held (e.g. a bound test session)
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: service or resource temporarily unavailable
// - ErrUnsupported: backend cannot perform the operation at all
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrUnsupported  = errors.ErrUnsupported
)
