package usecase

import (
	"context"
	"time"

	"github.com/apilens/apilens/internal/domain"
)

// ConnectorConfig carries the target and tuning options for a single
// connection test or introspection. Connectors validate and default it at
// the start of each call.
type ConnectorConfig struct {
	// URL is the introspection target (API base URL, GraphQL endpoint, or
	// WebSocket URL).
	URL string
	// SpecURL optionally points straight at a specification document,
	// skipping discovery. REST only.
	SpecURL string
	// Headers are sent on every outbound request of the session.
	Headers map[string]string
	// Timeout bounds each network call. Zero means the connector default.
	Timeout         time.Duration
	FollowRedirects bool
	// Capture tunes WebSocket capture sessions; other connectors ignore it.
	Capture CaptureOptions
}

// CaptureOptions bounds a WebSocket capture session. The session ends at
// MaxDuration or after MaxMessages captured messages, whichever comes first.
type CaptureOptions struct {
	MaxDuration time.Duration
	MaxMessages int
	// SendTestMessages writes TestMessages to the peer at session start;
	// sent frames are recorded as outgoing traffic.
	SendTestMessages bool
	TestMessages     []string
	Subprotocols     []string
}

// Connector is implemented once per supported protocol. TestConnection and
// Introspect report recoverable failures (unreachable target, spec not
// found, invalid schema) as Success=false result values; the error return of
// Introspect is reserved for configuration misuse and internal faults.
type Connector interface {
	// Protocol reports which protocol this connector produces schemas for.
	Protocol() domain.Protocol

	// CanHandle reports whether the URL syntactically looks like a target
	// for this protocol. It must not perform network I/O.
	CanHandle(url string) bool

	// TestConnection verifies reachability and minimal protocol compliance
	// without running a full extraction.
	TestConnection(ctx context.Context, cfg ConnectorConfig) *domain.ConnectionTestResult

	// Introspect runs full discovery and conversion. It performs the
	// TestConnection check first and short-circuits on its failure.
	Introspect(ctx context.Context, cfg ConnectorConfig) (*domain.IntrospectionResult, error)

	// DefaultConfig returns the connector's default tuning options.
	DefaultConfig() ConnectorConfig
}

// SchemaStorage is the persistence contract shared by every backend.
// Operations return a storage-classified error on any failure; "not found"
// is not a failure and surfaces through return values instead.
type SchemaStorage interface {
	// Store upserts the schema by its ID and returns that ID.
	Store(ctx context.Context, schema *domain.UniversalSchema) (string, error)

	// Retrieve returns the schema with the given ID, or nil when absent.
	Retrieve(ctx context.Context, id string) (*domain.UniversalSchema, error)

	// Update replaces the schema stored under id. It reports false when the
	// ID is absent and never creates a new entry.
	Update(ctx context.Context, id string, schema *domain.UniversalSchema) (bool, error)

	// Delete reports true iff a schema was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Query filters, sorts newest-discovered-first, then paginates.
	Query(ctx context.Context, q domain.SchemaQuery) (*domain.QueryResult, error)

	// ListIDs returns all stored schema IDs in ascending order.
	ListIDs(ctx context.Context) ([]string, error)

	// Stats summarizes the backend's contents.
	Stats(ctx context.Context) (*domain.StorageStats, error)

	// Clear removes every stored schema.
	Clear(ctx context.Context) error

	// Close releases backend resources. The store is unusable afterwards.
	Close() error
}
