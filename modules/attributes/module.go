// Package attributes provides the built-in "attributes" data module: a bag
// of named numeric stats per entity (movement speed, mining speed and the
// like). It demonstrates a second record shape alongside the levels module.
package attributes

import (
	"context"
	"encoding/json"
	"math"

	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
)

// ModuleID is the registry key for this module.
const ModuleID = "attributes"

// Record holds an entity's named numeric attributes.
type Record struct {
	Values map[string]float64 `json:"values"`
}

// Initialize resets the record to an empty attribute set.
func (r *Record) Initialize() {
	r.Values = make(map[string]float64)
}

// Serialize renders the record as JSON.
func (r *Record) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize populates the record from JSON.
func (r *Record) Deserialize(data string) error {
	return json.Unmarshal([]byte(data), r)
}

// Validate rejects a nil map and non-finite values, either of which would
// poison later arithmetic or serialization.
func (r *Record) Validate() bool {
	if r.Values == nil {
		return false
	}
	for _, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Get returns the named attribute, or fallback when it is unset.
func (r *Record) Get(name string, fallback float64) float64 {
	if v, ok := r.Values[name]; ok {
		return v
	}
	return fallback
}

// Set stores the named attribute.
func (r *Record) Set(name string, value float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[name] = value
}

// Module implements the registry.Extension interface for this package.
type Module struct{}

// Register registers the attributes record constructor with the store.
func (m *Module) Register(ctx context.Context, r *registry.Registry) error {
	return r.Register(ctx, ModuleID, func() record.Record { return &Record{} })
}
