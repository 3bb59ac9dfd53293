package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

var (
	openAPIVersionPattern = regexp.MustCompile(`^3\.\d+(\.\d+)?$`)
	swaggerVersionPattern = regexp.MustCompile(`^2\.0$`)
)

// parseSpecBody decodes a specification body, trying JSON first and YAML
// second.
func parseSpecBody(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("body is neither valid JSON nor valid YAML: %w", err)
	}
	return doc, nil
}

// isAPISpecification applies the loose acceptance heuristic that keeps
// unrelated JSON/YAML endpoints from being treated as specs: the document
// must expose "openapi", "swagger", or both "info" and "paths".
func isAPISpecification(doc map[string]any) bool {
	if _, ok := doc["openapi"]; ok {
		return true
	}
	if _, ok := doc["swagger"]; ok {
		return true
	}
	_, hasInfo := doc["info"]
	_, hasPaths := doc["paths"]
	return hasInfo && hasPaths
}

// missingSpecFields returns every absent required field (info.title,
// info.version, paths) so a validation failure reports them all at once.
func missingSpecFields(doc map[string]any) []string {
	var missing []string

	info, _ := doc["info"].(map[string]any)
	if title, _ := info["title"].(string); title == "" {
		missing = append(missing, "info.title")
	}
	if version, _ := info["version"].(string); version == "" {
		missing = append(missing, "info.version")
	}
	if _, ok := doc["paths"]; !ok {
		missing = append(missing, "paths")
	}
	return missing
}

// versionWarning reports a non-fatal warning when the declared spec version
// is absent or outside the supported patterns. Conversion proceeds
// best-effort either way.
func versionWarning(doc map[string]any) string {
	if v, ok := doc["openapi"].(string); ok {
		if !openAPIVersionPattern.MatchString(v) {
			return fmt.Sprintf("unsupported OpenAPI version %q, converting best-effort", v)
		}
		return ""
	}
	if v, ok := doc["swagger"].(string); ok {
		if !swaggerVersionPattern.MatchString(v) {
			return fmt.Sprintf("unsupported Swagger version %q, converting best-effort", v)
		}
		return ""
	}
	return "document declares no openapi or swagger version, converting best-effort"
}

// buildDocument normalizes the parsed document into an OpenAPI 3.x model.
// Swagger 2.0 documents are upgraded through the openapi2 converter so a
// single conversion path serves both dialects.
func buildDocument(ctx context.Context, doc map[string]any) (*openapi3.T, error) {
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode specification: %w", err)
	}

	if v, _ := doc["swagger"].(string); strings.HasPrefix(v, "2") {
		var legacy openapi2.T
		if err := json.Unmarshal(canonical, &legacy); err != nil {
			return nil, fmt.Errorf("failed to decode Swagger 2.0 document: %w", err)
		}
		upgraded, err := openapi2conv.ToV3(&legacy)
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade Swagger 2.0 document: %w", err)
		}
		return upgraded, nil
	}

	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: true}
	typed, err := loader.LoadFromData(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	return typed, nil
}
