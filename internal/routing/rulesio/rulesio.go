// Package rulesio loads routing rule sets from YAML or JSON documents.
package rulesio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"leadflow_backend/internal/routing/domain"
)

// ruleFile is the on-disk document shape. Rules live under a top-level key so
// tenant files can grow metadata later without breaking.
type ruleFile struct {
	Rules []domain.Rule `json:"rules" yaml:"rules"`
}

// Decode parses a rule set from r. Format is "yaml" or "json".
func Decode(r io.Reader, format string) ([]domain.Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc ruleFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml rules: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json rules: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
	return doc.Rules, nil
}

// LoadFile reads a rule set from disk, picking the format from the extension.
func LoadFile(path string) ([]domain.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "yaml"
	}
	return Decode(f, format)
}
