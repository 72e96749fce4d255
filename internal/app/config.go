package app

import "errors"

// Config holds the entrypoint-level configuration for an App instance.
// The session itself (role, addresses, data location) is described by the
// HCL file at ConfigPath; LogLevel and LogFormat override the file when
// set, so operators can raise verbosity without editing it.
type Config struct {
	ConfigPath string

	LogFormat string
	LogLevel  string
}

// NewConfig validates entrypoint configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
