// Package module implements the type-erased container binding one record
// type to a string identifier. A Module owns the mapping from entity id to
// record instance for exactly one registered record shape; the registry
// operates over heterogeneous modules through the identity-erased
// operations defined here.
//
// All operations on a single module are serialized by one mutex per module
// instance. Contention is low (one authority writer, occasional sync
// reads), so module-granularity locking is deliberate; different modules
// never block each other.
package module

import (
	"context"
	"reflect"
	"sync"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
)

// Module is a named, mutex-guarded store of one record per entity.
type Module struct {
	id         string
	newRecord  record.Constructor
	recordType reflect.Type

	mu      sync.Mutex
	records map[record.EntityID]record.Record
}

// New creates an empty module bound to the record shape produced by the
// given constructor. The bound type is captured once, at creation, and is
// immutable for the module's lifetime.
func New(id string, newRecord record.Constructor) *Module {
	return &Module{
		id:         id,
		newRecord:  newRecord,
		recordType: reflect.TypeOf(newRecord()),
		records:    make(map[record.EntityID]record.Record),
	}
}

// ID returns the module's identifier.
func (m *Module) ID() string {
	return m.id
}

// RecordType returns the concrete Go type this module stores. The registry
// uses it to reject type-mismatched access.
func (m *Module) RecordType() reflect.Type {
	return m.recordType
}

// newDefault constructs and default-initializes a fresh record.
func (m *Module) newDefault() record.Record {
	rec := m.newRecord()
	rec.Initialize()
	return rec
}

// GetOrCreate returns the entity's record, creating and storing a
// default-initialized one if none exists. Absence of prior data is not an
// error; this never fails.
func (m *Module) GetOrCreate(entity record.EntityID) record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[entity]; ok {
		return rec
	}
	rec := m.newDefault()
	m.records[entity] = rec
	return rec
}

// Set unconditionally overwrites the entity's record.
func (m *Module) Set(entity record.EntityID, rec record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entity] = rec
}

// Serialize renders the entity's record as text. It reports ok=false when
// the entity has no record or the record fails to serialize; serialization
// failures are logged, never propagated.
func (m *Module) Serialize(ctx context.Context, entity record.EntityID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[entity]
	if !ok {
		return "", false
	}
	data, err := rec.Serialize()
	if err != nil {
		ctxlog.FromContext(ctx).Error("Record serialization failed", "module", m.id, "entity", entity, "error", err)
		return "", false
	}
	return data, true
}

// Deserialize replaces the entity's record with one populated from the
// given text. The incoming data is applied to a fresh default record and
// then validated; if either step fails, the entity keeps a freshly
// initialized default instead (fail-safe, not fail-stop). Corrupt data for
// one entity degrades that entity to default state rather than blocking
// anything else.
func (m *Module) Deserialize(ctx context.Context, entity record.EntityID, data string) {
	rec := m.newDefault()
	if err := rec.Deserialize(data); err != nil {
		ctxlog.FromContext(ctx).Warn("Record deserialization failed, resetting to defaults", "module", m.id, "entity", entity, "error", err)
		rec = m.newDefault()
	} else if !rec.Validate() {
		ctxlog.FromContext(ctx).Warn("Deserialized record failed validation, resetting to defaults", "module", m.id, "entity", entity)
		rec = m.newDefault()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entity] = rec
}

// Has reports whether the entity currently has a record.
func (m *Module) Has(entity record.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[entity]
	return ok
}

// Remove deletes the entity's record, if any.
func (m *Module) Remove(entity record.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, entity)
}

// EntityIDs returns a snapshot of the entity ids holding a record. The
// slice is owned by the caller; it is not a live view.
func (m *Module) EntityIDs() []record.EntityID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]record.EntityID, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops every record in the module.
func (m *Module) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[record.EntityID]record.Record)
}

// Len returns the number of entities holding a record.
func (m *Module) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
