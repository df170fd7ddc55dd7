package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so services can decide what they mean for a record:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write lost to a concurrent writer
// - ErrUnavailable: dependency temporarily unavailable
// - ErrInvalidState: entity in wrong state for requested operation
//
// Field-level validation failures use domain.ValidationError instead.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
