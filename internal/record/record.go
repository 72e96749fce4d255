// Package record defines the contract every stored value must implement to
// participate in the entity data store. A record is the per-entity,
// per-module unit of state: modules register a Constructor for their record
// shape, and the store drives the full lifecycle (default initialization,
// serialization for sync and persistence, validation after deserialization)
// through this interface alone.
package record

// EntityID is the stable numeric identifier of the subject a record belongs
// to. It is rendered as a decimal string in the persisted document.
type EntityID int64

// Record is the capability set of a stored value. Implementations are
// value-like: one instance per (module id, entity id), never shared across
// entities.
type Record interface {
	// Initialize resets the record to its default state. It is called on a
	// freshly constructed record before first use, and again whenever
	// deserialization or validation fails and the record must degrade to a
	// known-good default.
	Initialize()

	// Serialize renders the record as text. The built-in modules and the
	// persistence document use JSON, and the persistence engine requires
	// valid JSON to embed the value without double-encoding.
	Serialize() (string, error)

	// Deserialize populates the record from previously serialized text.
	Deserialize(data string) error

	// Validate reports whether the record's current state is acceptable.
	// It is consulted after every Deserialize; a false return discards the
	// populated state in favor of a fresh default.
	Validate() bool
}

// Constructor produces a new zero-value record for a module. The store
// calls Initialize on the result before handing it out.
type Constructor func() Record
