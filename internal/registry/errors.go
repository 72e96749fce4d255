package registry

import "errors"

// Misuse by a collaborating extension is surfaced synchronously as one of
// these sentinels, wrapped with the offending module id. Corrupt data, by
// contrast, is never an error at this boundary: it degrades to a fresh
// default record inside the module.
var (
	// ErrNotRegistered is returned for operations referencing a module id
	// with no registered module.
	ErrNotRegistered = errors.New("module not registered")

	// ErrAlreadyRegistered is returned when registering a module id that
	// already has a module. The existing module is left untouched.
	ErrAlreadyRegistered = errors.New("module already registered")

	// ErrTypeMismatch is returned when the requested record type does not
	// match the type the module was registered with.
	ErrTypeMismatch = errors.New("record type mismatch")

	// ErrNotAuthoritative is returned when a mutating operation is invoked
	// on a replica-role registry.
	ErrNotAuthoritative = errors.New("operation requires the authority role")
)
