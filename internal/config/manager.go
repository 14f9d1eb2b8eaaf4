package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	logx "sessionkeeper/pkg/logx"
)

// ConfigManager reads the configuration file once per run.
// The parsed Config is never mutated after Load returns.
type ConfigManager struct {
	path string
	log  logx.Logger
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

func (m *ConfigManager) Path() string { return m.path }

// Parse reads and strictly decodes the file without validating it.
// Read and decode failures are reported as *ConfigError.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, &ConfigError{Field: "path", Err: err}
	}
	cfg, err := ParseBytes(m.path, b)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseBytes decodes data as JSON (comments allowed) or YAML, chosen by the
// extension of path.
func ParseBytes(path string, data []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, &ConfigError{Field: format, Err: err}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigError{Field: format, Err: err}
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, &ConfigError{Field: format, Err: fmt.Errorf("trailing data")}
		}
		return nil, &ConfigError{Field: format, Err: err}
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(jb, &keys); err != nil {
		return nil, &ConfigError{Field: format, Err: err}
	}
	_, cfg.hasStartTime = keys["start_time"]
	_, cfg.hasSchedule = keys["schedule"]
	return &cfg, nil
}

// Load parses, applies defaults and validates.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !m.log.IsZero() {
		m.log.Debug("config loaded", logx.String("path", m.path), logx.String("mode", string(cfg.Mode())))
	}
	return cfg, nil
}
