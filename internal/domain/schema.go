package domain

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Protocol identifies the API style a schema was discovered from.
type Protocol string

const (
	ProtocolREST      Protocol = "rest"
	ProtocolGraphQL   Protocol = "graphql"
	ProtocolWebSocket Protocol = "websocket"
)

// IsValid reports whether p is one of the supported protocols.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolREST, ProtocolGraphQL, ProtocolWebSocket:
		return true
	}
	return false
}

// DataType is the canonical value-shape vocabulary shared by all converters.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeInteger DataType = "integer"
	TypeBoolean DataType = "boolean"
	TypeArray   DataType = "array"
	TypeObject  DataType = "object"
	TypeNull    DataType = "null"
	TypeUnknown DataType = "unknown"
)

// OperationType classifies what kind of invokable unit an Operation is.
type OperationType string

const (
	OperationQuery        OperationType = "query"
	OperationMutation     OperationType = "mutation"
	OperationSubscription OperationType = "subscription"
	OperationEndpoint     OperationType = "endpoint"
	OperationMessage      OperationType = "message"
)

// ParameterLocation says where a parameter travels in a request.
type ParameterLocation string

const (
	LocationQuery  ParameterLocation = "query"
	LocationPath   ParameterLocation = "path"
	LocationHeader ParameterLocation = "header"
	LocationBody   ParameterLocation = "body"
	LocationCookie ParameterLocation = "cookie"
)

// AuthType classifies the authentication mechanism declared by a schema.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "apikey"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
	AuthCustom AuthType = "custom"
)

// StatusSuccess is the protocol-neutral response status token used where no
// HTTP status code applies (GraphQL fields, WebSocket events).
const StatusSuccess = "success"

// UniversalSchema is the canonical, protocol-neutral representation of one
// API's operations and reusable types. It is produced by a converter at the
// end of a successful introspection, persisted by a storage backend, and
// mutated only by full replacement.
type UniversalSchema struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Protocol    Protocol `json:"protocol"`
	BaseURL     string   `json:"baseUrl,omitempty"`
	Description string   `json:"description,omitempty"`

	Operations []Operation            `json:"operations"`
	Types      map[string]SchemaField `json:"types"`

	Authentication *AuthenticationInfo `json:"authentication,omitempty"`
	Metadata       map[string]any      `json:"metadata,omitempty"`

	DiscoveredAt time.Time `json:"discoveredAt"`
	// Source is the origin URL the schema was discovered from. Re-discovery
	// of the same source produces a new ID; nothing dedupes by source
	// automatically.
	Source string `json:"source"`
}

// NewSchemaID derives the stable identifier for a schema discovered at the
// given source and instant. The value is opaque to callers.
func NewSchemaID(source string, discoveredAt time.Time) string {
	sum := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%x-%d", sum[:6], discoveredAt.UnixMilli())
}

// Operation is one invokable unit: a REST endpoint, a GraphQL query,
// mutation or subscription field, or a WebSocket event. Operations are owned
// by their parent schema and never shared.
type Operation struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        OperationType `json:"type"`
	Method      string        `json:"method,omitempty"`
	Path        string        `json:"path,omitempty"`
	Description string        `json:"description,omitempty"`
	Parameters  []Parameter   `json:"parameters"`
	Responses   []Response    `json:"responses"`
	Tags        []string      `json:"tags,omitempty"`
	Deprecated  bool          `json:"deprecated,omitempty"`
	// Metadata is the protocol-specific escape hatch (WebSocket message
	// direction, GraphQL deprecation reasons, raw content types). Only the
	// producing converter assigns meaning to its keys.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SchemaField is a recursive structural description of a value's shape.
// At most one of Items and Properties is populated, per Type. A field with
// Ref set names a reusable entry in the parent schema's Types map and is
// resolved by lookup at consumption time, never inlined, so self-referential
// types stay bounded.
type SchemaField struct {
	Name         string                 `json:"name"`
	Type         DataType               `json:"type"`
	Required     bool                   `json:"required"`
	Description  string                 `json:"description,omitempty"`
	DefaultValue any                    `json:"defaultValue,omitempty"`
	Items        *SchemaField           `json:"items,omitempty"`
	Properties   map[string]SchemaField `json:"properties,omitempty"`
	Ref          string                 `json:"ref,omitempty"`
	Constraints  *FieldConstraints      `json:"constraints,omitempty"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
}

// FieldConstraints carries the value restrictions a source schema declared.
type FieldConstraints struct {
	Enum      []any    `json:"enum,omitempty"`
	Format    string   `json:"format,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	MinLength *uint64  `json:"minLength,omitempty"`
	MaxLength *uint64  `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Parameter is one input to an operation.
type Parameter struct {
	Name        string            `json:"name"`
	Location    ParameterLocation `json:"location"`
	Schema      SchemaField       `json:"schema"`
	Required    bool              `json:"required"`
	Description string            `json:"description,omitempty"`
	Example     any               `json:"example,omitempty"`
}

// Response describes one declared operation outcome. StatusCode holds an
// HTTP status code, or StatusSuccess for protocols without one.
type Response struct {
	StatusCode  string                 `json:"statusCode"`
	Description string                 `json:"description,omitempty"`
	Schema      *SchemaField           `json:"schema,omitempty"`
	Headers     map[string]SchemaField `json:"headers,omitempty"`
}

// AuthenticationInfo captures the authentication mechanism a schema
// declares. Scheme details that do not generalize (API key header name,
// token URLs) live in Metadata.
type AuthenticationInfo struct {
	Type        AuthType       `json:"type"`
	Description string         `json:"description,omitempty"`
	Scopes      []string       `json:"scopes,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ConnectionTestResult reports the outcome of a reachability probe.
// ResponseTime is in milliseconds.
type ConnectionTestResult struct {
	Success      bool           `json:"success"`
	ResponseTime int64          `json:"responseTime"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IntrospectionResult reports the outcome of a full discovery + conversion
// run. Recoverable failures (unreachable target, missing or invalid spec)
// arrive as Success=false with a human-readable Error; warnings accompany
// successful results and are never escalated.
type IntrospectionResult struct {
	Success  bool             `json:"success"`
	Schema   *UniversalSchema `json:"schema,omitempty"`
	Error    string           `json:"error,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}
