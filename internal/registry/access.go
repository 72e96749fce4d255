package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/entitystorego/internal/record"
)

// Get returns the entity's record for the module, creating a
// default-initialized one if none exists. It fails only when the module id
// is unknown; use the package-level generic Get for a type-gated variant.
func (r *Registry) Get(ctx context.Context, entity record.EntityID, moduleID string) (record.Record, error) {
	mod, ok := r.lookup(moduleID)
	if !ok {
		return nil, fmt.Errorf("module %q: %w", moduleID, ErrNotRegistered)
	}
	return mod.GetOrCreate(entity), nil
}

// Get is the typed access path. It refuses with ErrTypeMismatch when T is
// not the record type the module was registered with, so a caller can
// never silently read another extension's module as the wrong shape.
func Get[T record.Record](ctx context.Context, r *Registry, entity record.EntityID, moduleID string) (T, error) {
	var zero T
	mod, ok := r.lookup(moduleID)
	if !ok {
		return zero, fmt.Errorf("module %q: %w", moduleID, ErrNotRegistered)
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	if mod.RecordType() != want {
		return zero, fmt.Errorf("module %q holds %s, requested %s: %w", moduleID, mod.RecordType(), want, ErrTypeMismatch)
	}
	return mod.GetOrCreate(entity).(T), nil
}

// Set stores the record for the entity, overwriting any previous value.
// Authority-only. On success it notifies DataChanged observers and then
// hands the change to the sync pusher; the record value itself must match
// the module's registered type.
func (r *Registry) Set(ctx context.Context, entity record.EntityID, moduleID string, rec record.Record) error {
	if !r.Authoritative() {
		return fmt.Errorf("set %q: %w", moduleID, ErrNotAuthoritative)
	}
	mod, ok := r.lookup(moduleID)
	if !ok {
		return fmt.Errorf("module %q: %w", moduleID, ErrNotRegistered)
	}
	if got := reflect.TypeOf(rec); got != mod.RecordType() {
		return fmt.Errorf("module %q holds %s, got %s: %w", moduleID, mod.RecordType(), got, ErrTypeMismatch)
	}

	mod.Set(entity, rec)
	r.notifyChanged(ctx, entity, moduleID)
	r.push(ctx, entity, moduleID)
	return nil
}

// MarkDirty signals that the entity's record was mutated in place. It
// performs the same DataChanged notification and sync push as Set without
// touching the stored value. Authority-only.
func (r *Registry) MarkDirty(ctx context.Context, entity record.EntityID, moduleID string) error {
	if !r.Authoritative() {
		return fmt.Errorf("mark dirty %q: %w", moduleID, ErrNotAuthoritative)
	}
	if _, ok := r.lookup(moduleID); !ok {
		return fmt.Errorf("module %q: %w", moduleID, ErrNotRegistered)
	}

	r.notifyChanged(ctx, entity, moduleID)
	r.push(ctx, entity, moduleID)
	return nil
}

// Has reports whether the entity currently holds a record in the module.
// An unknown module id reads as false.
func (r *Registry) Has(entity record.EntityID, moduleID string) bool {
	mod, ok := r.lookup(moduleID)
	if !ok {
		return false
	}
	return mod.Has(entity)
}

// EntityIDs returns a snapshot of the entity ids holding a record in the
// named module. Unknown module ids read as empty.
func (r *Registry) EntityIDs(moduleID string) []record.EntityID {
	mod, ok := r.lookup(moduleID)
	if !ok {
		return nil
	}
	return mod.EntityIDs()
}

// SerializeModule renders the entity's record in the named module as text.
// Unknown module ids and serialization failures read as absent (ok=false);
// the sync broker and persistence engine both rely on this being silent
// for legacy data.
func (r *Registry) SerializeModule(ctx context.Context, entity record.EntityID, moduleID string) (string, bool) {
	mod, ok := r.lookup(moduleID)
	if !ok {
		return "", false
	}
	return mod.Serialize(ctx, entity)
}

// DeserializeModule applies serialized text to the entity's record in the
// named module, routing through the module's validate-or-reinitialize
// path. Data for unknown module ids is dropped silently.
func (r *Registry) DeserializeModule(ctx context.Context, entity record.EntityID, moduleID string, data string) {
	mod, ok := r.lookup(moduleID)
	if !ok {
		return
	}
	mod.Deserialize(ctx, entity, data)
}

// push hands a change to the installed sync pusher, if any. No registry
// lock is held here; the pusher serializes the record itself.
func (r *Registry) push(ctx context.Context, entity record.EntityID, moduleID string) {
	r.pusherMu.RLock()
	p := r.pusher
	r.pusherMu.RUnlock()

	if p != nil {
		p.Push(ctx, entity, moduleID)
	}
}
