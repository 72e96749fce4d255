// Package levels provides the built-in "levels" data module: one level and
// experience-point pair per entity. The numeric progression formulas live
// with the game rules that consume this module; the record only stores and
// validates the values.
package levels

import (
	"context"
	"encoding/json"

	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
)

// ModuleID is the registry key for this module.
const ModuleID = "levels"

// Record holds an entity's level progression state.
type Record struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// Initialize resets to the starting progression: level 1, no experience.
func (r *Record) Initialize() {
	r.Level = 1
	r.XP = 0
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

// Validate accepts any state with a positive level and non-negative
// experience.
func (r *Record) Validate() bool {
	return r.Level >= 1 && r.XP >= 0
}

// Module implements the registry.Extension interface for this package.
type Module struct{}

// Register registers the levels record constructor with the store.
func (m *Module) Register(ctx context.Context, r *registry.Registry) error {
	return r.Register(ctx, ModuleID, func() record.Record { return &Record{} })
}
