// Package registry provides the central "glue" for the entity data store.
//
// The Registry is the process-wide table of registered record modules,
// keyed by module id. It gate-keeps all read and write access: operations
// against unregistered or type-mismatched modules are refused with a clear
// error, and mutating operations are refused outside the authority role.
//
// A registry is constructed once per session (authority or replica) and
// passed by reference to every component that needs it; there is no global
// instance, which keeps multi-session testing possible.
package registry
