package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile reads a bus/broker configuration file, picking the decoder from
// the file extension. YAML (.yaml, .yml) and JSON (.json) are supported.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("config: unsupported extension %q", ext)
	}
}

// FromYAML decodes a YAML document, the usual format for queue topology
// files, into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON decodes a JSON document into a Config. Numbers arrive as
// float64; the accessors convert them on read.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("config: parse json: %w", err)
	}
	return New(m), nil
}
