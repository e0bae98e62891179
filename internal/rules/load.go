package rules

import (
	"bytes"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Load reads a YAML rule file and overlays it on the built-in defaults.
// Fields absent from the file keep their default values; a list that is
// present replaces the default list.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML rule data on the built-in defaults.
func Parse(data []byte) (*RuleSet, error) {
	rs := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return rs, nil
	}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if _, err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return rs, nil
}

// LoadOrDefault loads path when it is non-empty, otherwise returns the defaults.
func LoadOrDefault(path string) (*RuleSet, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Marshal renders the rule set as YAML, suitable as a starting point for a
// project rule file.
func Marshal(rs *RuleSet) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return buf.Bytes(), nil
}
