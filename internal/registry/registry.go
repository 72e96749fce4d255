package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/module"
	"github.com/vk/entitystorego/internal/record"
)

// Role identifies the process role a registry serves.
type Role int

const (
	// RoleAuthority is the single role permitted to mutate records and
	// trigger persistence and outbound sync.
	RoleAuthority Role = iota
	// RoleReplica holds a read-mostly cached copy, updated only via
	// inbound sync.
	RoleReplica
)

// String returns the role's configuration spelling.
func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Pusher is the outbound-sync hook the registry invokes after every
// authoritative mutation. The sync broker implements it; a nil pusher
// (e.g. in unit tests) simply disables pushes.
type Pusher interface {
	Push(ctx context.Context, entity record.EntityID, moduleID string)
}

// Extension is implemented by compiled-in record modules so the app can
// register them all uniformly at startup.
type Extension interface {
	Register(ctx context.Context, r *Registry) error
}

// Registry is the table of registered modules for one session.
type Registry struct {
	role Role

	mu      sync.RWMutex
	modules map[string]*module.Module

	obsMu     sync.RWMutex
	changeFns []ChangeObserver
	syncFns   []SyncObserver

	pusherMu sync.RWMutex
	pusher   Pusher
}

// New creates an empty registry bound to the given role. The role is fixed
// for the registry's lifetime; authority-only entry points check it once
// rather than re-querying ambient process state.
func New(role Role) *Registry {
	return &Registry{
		role:    role,
		modules: make(map[string]*module.Module),
	}
}

// Role returns the role the registry was constructed with.
func (r *Registry) Role() Role {
	return r.role
}

// Authoritative reports whether this registry may mutate records.
func (r *Registry) Authoritative() bool {
	return r.role == RoleAuthority
}

// SetPusher installs the outbound-sync hook. It is called once during
// session wiring, after the broker exists.
func (r *Registry) SetPusher(p Pusher) {
	r.pusherMu.Lock()
	defer r.pusherMu.Unlock()
	r.pusher = p
}

// Register creates an empty module bound to the given record constructor
// and stores it under id. Module ids are caller-chosen and must be unique
// across all collaborating extensions; the registry does not namespace
// them. Registering an id twice is refused with ErrAlreadyRegistered and
// leaves the existing module and its data untouched.
func (r *Registry) Register(ctx context.Context, id string, ctor record.Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[id]; exists {
		return fmt.Errorf("module %q: %w", id, ErrAlreadyRegistered)
	}
	mod := module.New(id, ctor)
	r.modules[id] = mod
	ctxlog.FromContext(ctx).Debug("Registered data module.", "module", id, "recordType", mod.RecordType().String())
	return nil
}

// Unregister removes the module and all its data. It is idempotent;
// re-registering and reloading from persistence is the only way back.
func (r *Registry) Unregister(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[id]; !exists {
		return
	}
	delete(r.modules, id)
	ctxlog.FromContext(ctx).Debug("Unregistered data module.", "module", id)
}

// IsRegistered reports whether a module exists under id.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[id]
	return ok
}

// ModuleIDs returns a snapshot of the registered module ids.
func (r *Registry) ModuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	return ids
}

// lookup fetches a module without holding the table lock longer than the
// map read itself.
func (r *Registry) lookup(id string) (*module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[id]
	return mod, ok
}

// ClearAll drops every record from every module. Used on session teardown,
// after a final save has captured the state. Modules stay registered.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, mod := range r.modules {
		mod.Clear()
	}
	ctxlog.FromContext(ctx).Debug("Cleared all module data.", "modules", len(r.modules))
}
