package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the expected manifest name inside a plugin
// directory.
const ManifestFileName = "plugin.yaml"

// Manifest describes one plugin activation.
type Manifest struct {
	// Name identifies the plugin. Must be unique across loaded plugins.
	Name string `yaml:"name" json:"name"`
	// Version is informational, surfaced on the management API.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	// Description is a short human-readable summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Factory names the registered factory to instantiate. Defaults to
	// Name when empty.
	Factory string `yaml:"factory,omitempty" json:"factory,omitempty"`
	// Filter is an optional expression narrowing which messages reach
	// the plugin's HandleMessage hook. It is evaluated against
	// {type, namespace, data} and must yield a boolean.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
	// Settings is free-form plugin configuration, seeded into the
	// settings store under "plugins.<name>." at load time.
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// FactoryName resolves the factory to instantiate.
func (m *Manifest) FactoryName() string {
	if m.Factory != "" {
		return m.Factory
	}
	return m.Name
}

const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z][a-z0-9_-]*$",
      "maxLength": 64
    },
    "version": {"type": "string"},
    "description": {"type": "string"},
    "factory": {"type": "string"},
    "filter": {"type": "string"},
    "settings": {"type": "object"}
  },
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func manifestJSONSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("manifest.json")
	})
	return compiledSchema, schemaErr
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: manifest is empty", ErrInvalidManifest)
	}

	schema, err := manifestJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}
	if err := schema.Validate(normalizeForSchema(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Version == "" {
		m.Version = "0.1.0"
	}
	return &m, nil
}

// LoadManifest reads and validates a manifest file. SourcePath on the
// returned record is the caller's concern.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// normalizeForSchema converts YAML-decoded values into the shapes the
// JSON schema validator expects (string-keyed maps, JSON numbers).
func normalizeForSchema(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
