package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/apilens/apilens/internal/domain"
)

// detectionOrder is the order connectors are consulted during protocol
// auto-detection. REST accepts any http(s) URL, so it must come last.
var detectionOrder = []domain.Protocol{
	domain.ProtocolWebSocket,
	domain.ProtocolGraphQL,
	domain.ProtocolREST,
}

// Explorer orchestrates connector selection, introspection, persistence and
// query delegation. It is the single entry point the CLI and HTTP layers use.
type Explorer struct {
	connectors map[domain.Protocol]Connector
	storage    SchemaStorage
	autoSave   bool
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewExplorer creates an Explorer over the given connector registry and
// storage backend. With autoSave enabled, every successful introspection is
// persisted; this is the only persistence path, there is no per-call flag.
func NewExplorer(
	connectors map[domain.Protocol]Connector,
	storage SchemaStorage,
	autoSave bool,
	logger *slog.Logger,
) *Explorer {
	return &Explorer{
		connectors: connectors,
		storage:    storage,
		autoSave:   autoSave,
		logger:     logger.With("usecase", "Explorer"),
		tracer:     otel.Tracer("apilens/explorer"),
	}
}

// Introspect resolves a connector for cfg.URL, runs a full introspection
// and, when auto-save is on, persists the resulting schema. An empty
// protocol triggers auto-detection; an unsupported protocol string is a
// configuration error, not a failed result.
func (e *Explorer) Introspect(ctx context.Context, cfg ConnectorConfig, protocol domain.Protocol) (*domain.IntrospectionResult, error) {
	ctx, span := e.tracer.Start(ctx, "explorer.introspect", trace.WithAttributes(
		attribute.String("target.url", cfg.URL),
		attribute.String("target.protocol", string(protocol)),
	))
	defer span.End()

	log := e.logger.With(slog.String("url", cfg.URL))

	connector, err := e.resolveConnector(cfg.URL, protocol)
	if err != nil {
		log.Warn("Could not resolve connector for target", slog.Any("error", err))
		return nil, err
	}
	log = log.With(slog.String("protocol", string(connector.Protocol())))
	span.SetAttributes(attribute.String("resolved.protocol", string(connector.Protocol())))

	log.Info("Starting introspection")
	result, err := connector.Introspect(ctx, cfg)
	if err != nil {
		log.Error("Introspection failed with internal fault", slog.Any("error", err))
		return nil, err
	}
	if !result.Success {
		log.Warn("Introspection unsuccessful", slog.String("reason", result.Error))
		return result, nil
	}

	if result.Schema == nil {
		return nil, domain.NewConnectorError(
			fmt.Sprintf("connector for %q reported success without a schema", connector.Protocol()), nil)
	}

	if e.autoSave {
		id, err := e.storage.Store(ctx, result.Schema)
		if err != nil {
			log.Error("Failed to persist introspected schema", slog.Any("error", err))
			return nil, err
		}
		log.Info("Persisted introspected schema", slog.String("schema_id", id))
	}

	log.Info("Introspection completed",
		slog.Int("operations", len(result.Schema.Operations)),
		slog.Int("types", len(result.Schema.Types)),
		slog.Int("warnings", len(result.Warnings)))
	return result, nil
}

// TestConnection runs a reachability check through the resolved connector.
func (e *Explorer) TestConnection(ctx context.Context, cfg ConnectorConfig, protocol domain.Protocol) (*domain.ConnectionTestResult, error) {
	connector, err := e.resolveConnector(cfg.URL, protocol)
	if err != nil {
		return nil, err
	}
	return connector.TestConnection(ctx, cfg), nil
}

// ListSchemas returns every stored schema, newest first.
func (e *Explorer) ListSchemas(ctx context.Context) ([]*domain.UniversalSchema, error) {
	result, err := e.storage.Query(ctx, domain.SchemaQuery{})
	if err != nil {
		return nil, err
	}
	return result.Schemas, nil
}

// GetSchema returns the stored schema with the given ID, or nil when absent.
func (e *Explorer) GetSchema(ctx context.Context, id string) (*domain.UniversalSchema, error) {
	return e.storage.Retrieve(ctx, id)
}

// DeleteSchema removes a stored schema, reporting whether anything was
// deleted.
func (e *Explorer) DeleteSchema(ctx context.Context, id string) (bool, error) {
	return e.storage.Delete(ctx, id)
}

// QuerySchemas delegates a filtered, paginated query to storage.
func (e *Explorer) QuerySchemas(ctx context.Context, q domain.SchemaQuery) (*domain.QueryResult, error) {
	return e.storage.Query(ctx, q)
}

// StorageStats reports the storage backend's summary statistics.
func (e *Explorer) StorageStats(ctx context.Context) (*domain.StorageStats, error) {
	return e.storage.Stats(ctx)
}

// resolveConnector picks the connector for an explicit protocol, or
// auto-detects one from the URL when protocol is empty.
func (e *Explorer) resolveConnector(url string, protocol domain.Protocol) (Connector, error) {
	if protocol != "" {
		if !protocol.IsValid() {
			return nil, domain.NewConfigurationError(fmt.Sprintf("unsupported protocol %q", protocol), nil)
		}
		connector, ok := e.connectors[protocol]
		if !ok {
			return nil, domain.NewConfigurationError(fmt.Sprintf("no connector registered for protocol %q", protocol), nil)
		}
		return connector, nil
	}

	for _, p := range detectionOrder {
		connector, ok := e.connectors[p]
		if !ok {
			continue
		}
		if connector.CanHandle(url) {
			return connector, nil
		}
	}
	return nil, domain.NewConfigurationError(fmt.Sprintf("could not detect protocol for %q", url), nil)
}
