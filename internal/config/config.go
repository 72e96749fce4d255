// Package config loads the HCL session configuration. One file describes
// one session: which role the process plays, where the authority listens
// (or where a replica finds it), where data is persisted and how often.
//
// Attribute expressions are evaluated with an `env` variable exposing the
// process environment, so files can say `listen_addr = env.ESG_LISTEN`.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/entitystorego/internal/ctxlog"
)

// Role is the process role a session runs as.
type Role string

const (
	RoleAuthority Role = "authority"
	RoleReplica   Role = "replica"
)

// Config is the validated session configuration.
type Config struct {
	Role         Role
	ListenAddr   string
	AuthorityURL string
	EntityID     int64
	DataDir      string
	SaveInterval time.Duration
	LogLevel     string
	LogFormat    string
}

// DataFile returns the session's persisted document path.
func (c *Config) DataFile() string {
	return filepath.Join(c.DataDir, "entitydata.json")
}

// fileSchema mirrors the HCL file layout for gohcl decoding.
type fileSchema struct {
	Session *sessionSchema `hcl:"session,block"`
}

type sessionSchema struct {
	Role         string `hcl:"role"`
	ListenAddr   string `hcl:"listen_addr,optional"`
	AuthorityURL string `hcl:"authority_url,optional"`
	EntityID     int64  `hcl:"entity_id,optional"`
	DataDir      string `hcl:"data_dir,optional"`
	SaveInterval string `hcl:"save_interval,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	LogFormat    string `hcl:"log_format,optional"`
}

// Load parses and validates the session configuration at path.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading session configuration...", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, diags)
	}
	if schema.Session == nil {
		return nil, fmt.Errorf("config file %s has no session block", path)
	}

	cfg, err := schema.Session.toConfig()
	if err != nil {
		return nil, err
	}

	logger.Debug("Session configuration loaded.", "role", cfg.Role, "dataDir", cfg.DataDir)
	return cfg, nil
}

// evalContext exposes the process environment to attribute expressions.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

func (s *sessionSchema) toConfig() (*Config, error) {
	cfg := &Config{
		Role:         Role(strings.ToLower(s.Role)),
		ListenAddr:   s.ListenAddr,
		AuthorityURL: s.AuthorityURL,
		EntityID:     s.EntityID,
		DataDir:      s.DataDir,
		LogLevel:     strings.ToLower(s.LogLevel),
		LogFormat:    strings.ToLower(s.LogFormat),
	}

	// Defaults.
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8177"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	interval := s.SaveInterval
	if interval == "" {
		interval = "5m"
	}

	switch cfg.Role {
	case RoleAuthority, RoleReplica:
	default:
		return nil, fmt.Errorf("invalid role %q: must be 'authority' or 'replica'", s.Role)
	}

	if cfg.Role == RoleReplica {
		if cfg.AuthorityURL == "" {
			return nil, fmt.Errorf("replica session requires authority_url")
		}
		if cfg.EntityID <= 0 {
			return nil, fmt.Errorf("replica session requires a positive entity_id")
		}
	}

	var err error
	cfg.SaveInterval, err = time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid save_interval %q: %w", interval, err)
	}
	if cfg.SaveInterval <= 0 {
		return nil, fmt.Errorf("save_interval must be positive, got %q", interval)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log_level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log_format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	return cfg, nil
}
