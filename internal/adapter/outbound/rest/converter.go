package rest

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/apilens/apilens/internal/domain"
)

// methodOrder fixes which HTTP verbs produce operations and in what order,
// so converted output is deterministic.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
	http.MethodOptions,
}

// converter turns a normalized OpenAPI 3.x document into a UniversalSchema.
type converter struct {
	logger *slog.Logger
}

func newConverter(logger *slog.Logger) *converter {
	return &converter{logger: logger.With("component", "rest_converter")}
}

// Convert builds the canonical schema for a document discovered at source.
func (cv *converter) Convert(doc *openapi3.T, source string, discoveredAt time.Time) *domain.UniversalSchema {
	schema := &domain.UniversalSchema{
		ID:           domain.NewSchemaID(source, discoveredAt),
		Protocol:     domain.ProtocolREST,
		Operations:   []domain.Operation{},
		Types:        map[string]domain.SchemaField{},
		DiscoveredAt: discoveredAt,
		Source:       source,
	}
	if doc.Info != nil {
		schema.Name = doc.Info.Title
		schema.Version = doc.Info.Version
		schema.Description = doc.Info.Description
	}
	schema.BaseURL = cv.resolveBaseURL(source, doc.Servers)

	if doc.Paths != nil {
		paths := doc.Paths.Map()
		pathKeys := make([]string, 0, len(paths))
		for path := range paths {
			pathKeys = append(pathKeys, path)
		}
		sort.Strings(pathKeys)

		for _, path := range pathKeys {
			pathItem := paths[path]
			if pathItem == nil {
				continue
			}
			operations := pathItem.Operations()
			for _, method := range methodOrder {
				op := operations[method]
				if op == nil {
					continue
				}
				schema.Operations = append(schema.Operations, cv.convertOperation(path, method, pathItem, op))
			}
		}
	}

	if doc.Components != nil {
		for name, ref := range doc.Components.Schemas {
			schema.Types[name] = cv.convertSchemaRef(ref, name)
		}
	}

	schema.Authentication = cv.convertAuthentication(doc.Components)
	return schema
}

func (cv *converter) convertOperation(path, method string, pathItem *openapi3.PathItem, op *openapi3.Operation) domain.Operation {
	id := op.OperationID
	if id == "" {
		id = sanitizeName(strings.ToLower(method) + "_" + path)
	}

	description := op.Description
	if description == "" {
		description = op.Summary
	}

	operation := domain.Operation{
		ID:          id,
		Name:        id,
		Type:        domain.OperationEndpoint,
		Method:      method,
		Path:        path,
		Description: description,
		Parameters:  cv.convertParameters(pathItem.Parameters, op),
		Responses:   cv.convertResponses(op.Responses),
		Tags:        op.Tags,
		Deprecated:  op.Deprecated,
	}
	return operation
}

// convertParameters unions path-level and operation-level parameters
// (operation-level redefinitions win) and synthesizes a body parameter from
// the request body's first declared content type. Swagger 2.0 body
// parameters arrive on this same path after the dialect upgrade.
func (cv *converter) convertParameters(pathParams openapi3.Parameters, op *openapi3.Operation) []domain.Parameter {
	type paramKey struct{ name, in string }
	params := make([]domain.Parameter, 0)
	index := make(map[paramKey]int)

	appendParam := func(ref *openapi3.ParameterRef) {
		if ref == nil || ref.Value == nil {
			return
		}
		p := ref.Value
		converted := domain.Parameter{
			Name:        p.Name,
			Location:    parameterLocation(p.In),
			Schema:      cv.convertSchemaRef(p.Schema, p.Name),
			Required:    p.Required,
			Description: p.Description,
			Example:     p.Example,
		}
		key := paramKey{p.Name, p.In}
		if i, ok := index[key]; ok {
			params[i] = converted
			return
		}
		index[key] = len(params)
		params = append(params, converted)
	}

	for _, ref := range pathParams {
		appendParam(ref)
	}
	for _, ref := range op.Parameters {
		appendParam(ref)
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil && len(op.RequestBody.Value.Content) > 0 {
		mediaType, _ := firstContentType(op.RequestBody.Value.Content)
		if mediaType != nil && mediaType.Schema != nil {
			params = append(params, domain.Parameter{
				Name:        "body",
				Location:    domain.LocationBody,
				Schema:      cv.convertSchemaRef(mediaType.Schema, "body"),
				Required:    op.RequestBody.Value.Required,
				Description: op.RequestBody.Value.Description,
				Example:     mediaType.Example,
			})
		}
	}
	return params
}

func (cv *converter) convertResponses(responses *openapi3.Responses) []domain.Response {
	converted := make([]domain.Response, 0)
	if responses == nil {
		return converted
	}

	byCode := responses.Map()
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		ref := byCode[code]
		if ref == nil || ref.Value == nil {
			continue
		}
		value := ref.Value

		response := domain.Response{StatusCode: code}
		if value.Description != nil {
			response.Description = *value.Description
		}
		if len(value.Content) > 0 {
			mediaType, _ := firstContentType(value.Content)
			if mediaType != nil && mediaType.Schema != nil {
				field := cv.convertSchemaRef(mediaType.Schema, "response")
				response.Schema = &field
			}
		}
		if len(value.Headers) > 0 {
			headers := make(map[string]domain.SchemaField, len(value.Headers))
			for name, headerRef := range value.Headers {
				if headerRef == nil || headerRef.Value == nil {
					continue
				}
				headers[name] = cv.convertSchemaRef(headerRef.Value.Schema, name)
			}
			response.Headers = headers
		}
		converted = append(converted, response)
	}
	return converted
}

// convertSchemaRef recursively maps an OpenAPI schema node to a canonical
// field. A $ref becomes a reference stub carrying the referenced type name;
// it is never inlined, which keeps circular definitions bounded.
func (cv *converter) convertSchemaRef(ref *openapi3.SchemaRef, name string) domain.SchemaField {
	if ref == nil {
		return domain.SchemaField{Name: name, Type: domain.TypeUnknown}
	}
	if ref.Ref != "" {
		return domain.SchemaField{Name: name, Type: domain.TypeObject, Ref: refTypeName(ref.Ref)}
	}
	value := ref.Value
	if value == nil {
		return domain.SchemaField{Name: name, Type: domain.TypeUnknown}
	}

	field := domain.SchemaField{
		Name:        name,
		Type:        cv.dataTypeOf(value.Type, name),
		Description: value.Description,
	}
	if value.Default != nil {
		field.DefaultValue = value.Default
	}

	switch field.Type {
	case domain.TypeObject:
		if len(value.Properties) > 0 {
			field.Properties = make(map[string]domain.SchemaField, len(value.Properties))
			for propName, propRef := range value.Properties {
				prop := cv.convertSchemaRef(propRef, propName)
				prop.Required = containsString(value.Required, propName)
				field.Properties[propName] = prop
			}
		}
	case domain.TypeArray:
		items := domain.SchemaField{Name: "item", Type: domain.TypeUnknown}
		if value.Items != nil {
			items = cv.convertSchemaRef(value.Items, "item")
		} else {
			cv.logger.Warn("Array schema without items definition", slog.String("field", name))
		}
		field.Items = &items
	}

	field.Constraints = convertConstraints(value)
	if value.Example != nil {
		field.Metadata = map[string]any{"example": value.Example}
	}
	return field
}

func (cv *converter) dataTypeOf(types *openapi3.Types, fieldName string) domain.DataType {
	if types == nil || len(*types) == 0 {
		return domain.TypeUnknown
	}
	if len(*types) > 1 {
		cv.logger.Warn("Multiple schema types declared, using the first",
			slog.Any("types", *types), slog.String("field", fieldName))
	}
	switch (*types)[0] {
	case "string":
		return domain.TypeString
	case "number":
		return domain.TypeNumber
	case "integer":
		return domain.TypeInteger
	case "boolean":
		return domain.TypeBoolean
	case "array":
		return domain.TypeArray
	case "object":
		return domain.TypeObject
	case "null":
		return domain.TypeNull
	default:
		return domain.TypeUnknown
	}
}

func convertConstraints(value *openapi3.Schema) *domain.FieldConstraints {
	c := &domain.FieldConstraints{}
	populated := false

	if len(value.Enum) > 0 {
		c.Enum = value.Enum
		populated = true
	}
	if value.Format != "" {
		c.Format = value.Format
		populated = true
	}
	if value.Min != nil {
		c.Minimum = value.Min
		populated = true
	}
	if value.Max != nil {
		c.Maximum = value.Max
		populated = true
	}
	if value.MinLength > 0 {
		minLength := value.MinLength
		c.MinLength = &minLength
		populated = true
	}
	if value.MaxLength != nil {
		c.MaxLength = value.MaxLength
		populated = true
	}
	if value.Pattern != "" {
		c.Pattern = value.Pattern
		populated = true
	}

	if !populated {
		return nil
	}
	return c
}

// convertAuthentication maps the first declared security scheme to the
// canonical authentication info; no scheme at all means AuthNone.
func (cv *converter) convertAuthentication(components *openapi3.Components) *domain.AuthenticationInfo {
	if components == nil || len(components.SecuritySchemes) == 0 {
		return &domain.AuthenticationInfo{Type: domain.AuthNone}
	}

	names := make([]string, 0, len(components.SecuritySchemes))
	for name := range components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)

	ref := components.SecuritySchemes[names[0]]
	if ref == nil || ref.Value == nil {
		return &domain.AuthenticationInfo{Type: domain.AuthNone}
	}
	scheme := ref.Value

	info := &domain.AuthenticationInfo{Description: scheme.Description}
	switch scheme.Type {
	case "apiKey":
		info.Type = domain.AuthAPIKey
		info.Metadata = map[string]any{"name": scheme.Name, "in": scheme.In}
	case "http":
		if strings.EqualFold(scheme.Scheme, "bearer") {
			info.Type = domain.AuthBearer
			if scheme.BearerFormat != "" {
				info.Metadata = map[string]any{"bearerFormat": scheme.BearerFormat}
			}
		} else {
			info.Type = domain.AuthBasic
		}
	case "oauth2":
		info.Type = domain.AuthOAuth2
		info.Scopes = flattenOAuthScopes(scheme.Flows)
	case "openIdConnect":
		info.Type = domain.AuthOAuth2
		if scheme.OpenIdConnectUrl != "" {
			info.Metadata = map[string]any{"openIdConnectUrl": scheme.OpenIdConnectUrl}
		}
	default:
		info.Type = domain.AuthCustom
	}
	return info
}

// flattenOAuthScopes collects scope names across every declared flow.
func flattenOAuthScopes(flows *openapi3.OAuthFlows) []string {
	if flows == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, flow := range []*openapi3.OAuthFlow{flows.Implicit, flows.Password, flows.ClientCredentials, flows.AuthorizationCode} {
		if flow == nil {
			continue
		}
		for scope := range flow.Scopes {
			seen[scope] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// resolveBaseURL picks the first suitable HTTP(S) server URL, resolving
// relative entries against the schema's source URL.
func (cv *converter) resolveBaseURL(source string, servers openapi3.Servers) string {
	base, err := url.Parse(source)
	if err != nil {
		base = nil
	}

	for _, server := range servers {
		if server == nil || server.URL == "" {
			continue
		}
		parsed, err := url.Parse(server.URL)
		if err != nil {
			cv.logger.Warn("Could not parse server URL, skipping", slog.String("url", server.URL), slog.Any("error", err))
			continue
		}
		resolved := parsed
		if !parsed.IsAbs() {
			if base == nil {
				continue
			}
			resolved = base.ResolveReference(parsed)
		}
		if (resolved.Scheme == "http" || resolved.Scheme == "https") && resolved.Host != "" {
			out := resolved.Scheme + "://" + resolved.Host + strings.TrimSuffix(resolved.Path, "/")
			return out
		}
	}
	return ""
}

func parameterLocation(in string) domain.ParameterLocation {
	switch in {
	case openapi3.ParameterInPath:
		return domain.LocationPath
	case openapi3.ParameterInHeader:
		return domain.LocationHeader
	case openapi3.ParameterInCookie:
		return domain.LocationCookie
	default:
		return domain.LocationQuery
	}
}

// firstContentType prefers application/json and otherwise picks the
// lexicographically first declared content type, so output is stable.
func firstContentType(content openapi3.Content) (*openapi3.MediaType, string) {
	if mt := content.Get("application/json"); mt != nil {
		return mt, "application/json"
	}
	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil, ""
	}
	return content[keys[0]], keys[0]
}

func refTypeName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// sanitizeName lowercases and squashes a free-form string into an
// identifier-safe token.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	replacer := strings.NewReplacer(" ", "_", "-", "_", "/", "_", ".", "_", "{", "", "}", "")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
