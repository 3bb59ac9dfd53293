package export

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/apilens/apilens/internal/domain"
)

// Format selects an output encoding for exported schemas.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Encode renders the schema in the requested format. An empty format means
// JSON.
func Encode(schema *domain.UniversalSchema, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return EncodeJSON(schema)
	case FormatYAML:
		return EncodeYAML(schema)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// EncodeJSON renders the schema as indented JSON.
func EncodeJSON(schema *domain.UniversalSchema) ([]byte, error) {
	if schema == nil {
		return nil, fmt.Errorf("no schema to encode")
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema as JSON: %w", err)
	}
	return data, nil
}

// EncodeYAML renders the schema as YAML. The document goes through a JSON
// round-trip first so the YAML keys match the canonical JSON field names
// instead of Go struct names.
func EncodeYAML(schema *domain.UniversalSchema) ([]byte, error) {
	if schema == nil {
		return nil, fmt.Errorf("no schema to encode")
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema as JSON: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to rebuild schema document: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema as YAML: %w", err)
	}
	return out, nil
}
