// Package persist writes the whole store to one versioned JSON document
// and loads it back. Every save first copies the previous file to a .bak
// sibling (best-effort) and then writes via a temp file and rename, so a
// failed save never damages the prior on-disk state. The engine itself
// never reads the backup; it exists for manual recovery.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
)

// DocumentVersion is stamped into every saved document. Loading a document
// with a greater version logs a warning and proceeds best-effort.
const DocumentVersion = 1

// document is the persisted file schema. Record payloads are embedded as
// raw JSON values, never as JSON-encoded strings.
type document struct {
	Version int                                   `json:"version"`
	SavedAt int64                                 `json:"savedAt"`
	Modules map[string]map[string]json.RawMessage `json:"modules"`
}

// Engine persists one registry to one session-scoped file.
type Engine struct {
	reg  *registry.Registry
	path string
}

// NewEngine creates an engine writing to path. The directory is created on
// first save.
func NewEngine(reg *registry.Registry, path string) *Engine {
	return &Engine{reg: reg, path: path}
}

// Path returns the document location.
func (e *Engine) Path() string {
	return e.path
}

// Save serializes every module's every record into one document and writes
// it. Authority-only; a replica save is a silent no-op. Records that fail
// to serialize, or that serialize to something other than valid JSON, are
// skipped with a warning; a write failure aborts the save and leaves the
// previous file untouched.
func (e *Engine) Save(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if !e.reg.Authoritative() {
		logger.Debug("Skipping save on non-authoritative registry")
		return nil
	}

	doc := document{
		Version: DocumentVersion,
		SavedAt: time.Now().Unix(),
		Modules: make(map[string]map[string]json.RawMessage),
	}

	records := 0
	for _, moduleID := range e.reg.ModuleIDs() {
		section := make(map[string]json.RawMessage)
		for _, entity := range e.reg.EntityIDs(moduleID) {
			data, ok := e.reg.SerializeModule(ctx, entity, moduleID)
			if !ok {
				continue
			}
			if !json.Valid([]byte(data)) {
				logger.Warn("Record did not serialize to valid JSON, skipping", "module", moduleID, "entity", entity)
				continue
			}
			section[strconv.FormatInt(int64(entity), 10)] = json.RawMessage(data)
			records++
		}
		if len(section) > 0 {
			doc.Modules[moduleID] = section
		}
	}

	if err := e.write(ctx, &doc); err != nil {
		logger.Error("Failed to write data document", "path", e.path, "error", err)
		return err
	}

	logger.Info("💾 Data saved", "path", e.path, "modules", len(doc.Modules), "records", records)
	return nil
}

// write backs up the previous file, then writes the new document via a
// temp file and an atomic rename.
func (e *Engine) write(ctx context.Context, doc *document) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if _, err := os.Stat(e.path); err == nil {
		// Backup is best-effort; a failed backup must not block the save.
		if err := copyFile(e.path, e.path+".bak"); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to back up previous data file", "path", e.path, "error", err)
		}
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data document: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write temp data file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

// Load reads the document back into the registry. Authority-only. A
// missing file is a silent first run; malformed JSON is treated as no
// data; sections for modules no longer registered are dropped with a
// warning; a newer document version is loaded best-effort. Each record
// routes through the registry's validate-or-reinitialize path, so corrupt
// data for one entity never blocks the rest of the load.
func (e *Engine) Load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if !e.reg.Authoritative() {
		logger.Debug("Skipping load on non-authoritative registry")
		return nil
	}

	raw, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No data file found, starting fresh", "path", e.path)
		return nil
	}
	if err != nil {
		logger.Error("Failed to read data file", "path", e.path, "error", err)
		return err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn("Data file is malformed, treating as no data", "path", e.path, "error", err)
		return nil
	}

	if doc.Version > DocumentVersion {
		logger.Warn("Data file was written by a newer version, loading best-effort",
			"fileVersion", doc.Version, "supportedVersion", DocumentVersion)
	}

	records := 0
	for moduleID, section := range doc.Modules {
		if !e.reg.IsRegistered(moduleID) {
			logger.Warn("Dropping data for unregistered module", "module", moduleID, "records", len(section))
			continue
		}
		for entityStr, payload := range section {
			entity, err := strconv.ParseInt(entityStr, 10, 64)
			if err != nil {
				logger.Warn("Skipping record with invalid entity id", "module", moduleID, "entity", entityStr)
				continue
			}
			e.reg.DeserializeModule(ctx, record.EntityID(entity), moduleID, string(payload))
			records++
		}
	}

	logger.Info("Data loaded", "path", e.path, "modules", len(doc.Modules), "records", records, "savedAt", time.Unix(doc.SavedAt, 0))
	return nil
}

// Clear drops all in-memory registry state. The on-disk file is left
// alone; it survives for the next load.
func (e *Engine) Clear(ctx context.Context) {
	e.reg.ClearAll(ctx)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
