package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apilens/apilens/configs"
	"github.com/apilens/apilens/internal/adapter/inbound/httpapi"
	"github.com/apilens/apilens/internal/adapter/outbound/filestore"
	"github.com/apilens/apilens/internal/adapter/outbound/graphql"
	"github.com/apilens/apilens/internal/adapter/outbound/memstore"
	"github.com/apilens/apilens/internal/adapter/outbound/rest"
	"github.com/apilens/apilens/internal/adapter/outbound/websocket"
	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/export"
	"github.com/apilens/apilens/internal/usecase"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	// === Command Line Flags ===
	var (
		target         string
		targetProtocol string
		outputFormat   string
	)
	flag.StringVar(&target, "target", "", "Introspect a single URL, print its schema to stdout and exit")
	flag.StringVar(&targetProtocol, "protocol", "", "Protocol hint for -target: rest, graphql or websocket (default: auto-detect)")
	flag.StringVar(&outputFormat, "format", "json", "Output format for -target: json or yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === Configuration ===
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// === Logging ===
	// Logs go to stderr so that -target output on stdout stays clean.
	logLevel := cfg.ParsedLogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", logLevel.String()))

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := initOtelProvider(cfg)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry.", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Dependency Injection ===
	httpClient := &http.Client{
		Timeout: cfg.HTTPClientTimeout,
	}
	logger.Debug("HTTP Client configured.", slog.Duration("timeout", cfg.HTTPClientTimeout))

	storage, err := newStorage(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage backend.", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error("Failed to close storage backend.", slog.Any("error", err))
		}
	}()
	logger.Info("Storage backend initialized.", slog.String("backend", cfg.StorageBackend))

	connectors := map[domain.Protocol]usecase.Connector{
		domain.ProtocolREST:      rest.New(httpClient, logger),
		domain.ProtocolGraphQL:   graphql.New(httpClient, logger),
		domain.ProtocolWebSocket: websocket.New(logger),
	}
	explorer := usecase.NewExplorer(connectors, storage, cfg.AutoSave, logger)
	logger.Debug("Connectors initialized.", slog.Int("count", len(connectors)))

	// === One-Shot Mode ===
	if target != "" {
		if err := introspectAndPrint(ctx, explorer, target, targetProtocol, outputFormat); err != nil {
			logger.Error("Introspection failed.", slog.String("url", target), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// === Initial Introspection Sweep ===
	if len(cfg.Targets) > 0 {
		logger.Info("Introspecting configured targets...", slog.Int("count", len(cfg.Targets)))
		introspectConfiguredTargets(ctx, explorer, cfg.Targets, logger)
	}

	// === HTTP Server Setup ===
	mux := http.NewServeMux()
	handlers := httpapi.NewHandlers(explorer, logger)
	handlers.RegisterRoutes(mux)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}
	go func() {
		logger.Info("HTTP server starting.", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed to start.", slog.Any("error", err))
			stop() // Trigger shutdown context if the server fails.
		}
	}()

	// Wait for interrupt signal.
	<-ctx.Done()

	// === Server Shutdown ===
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed.", slog.Any("error", err))
	}

	logger.Info("Server shut down gracefully.")
}

// newStorage constructs the schema storage backend selected in the config.
func newStorage(cfg *configs.Config, logger *slog.Logger) (usecase.SchemaStorage, error) {
	switch cfg.StorageBackend {
	case "memory":
		return memstore.New(memstore.Options{
			MaxSchemas: cfg.StorageMaxSchemas,
			MaxAge:     cfg.StorageMaxAge,
		}, logger), nil
	case "file":
		return filestore.New(filestore.Options{
			Dir:             cfg.StorageDir,
			Backups:         cfg.StorageBackups,
			BackupRetention: cfg.StorageBackupRetention,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected memory or file)", cfg.StorageBackend)
	}
}

// introspectAndPrint runs a single introspection and writes the schema to stdout.
func introspectAndPrint(ctx context.Context, explorer *usecase.Explorer, url, protocol, format string) error {
	result, err := explorer.Introspect(ctx, usecase.ConnectorConfig{
		URL:             url,
		FollowRedirects: true,
	}, domain.Protocol(protocol))
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("introspection did not succeed: %s", result.Error)
	}
	for _, warning := range result.Warnings {
		slog.Warn("Introspection warning.", slog.String("warning", warning))
	}

	out, err := export.Encode(result.Schema, export.Format(format))
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// introspectConfiguredTargets runs the startup sweep over the targets from the
// config file. Failures are logged and never abort startup.
func introspectConfiguredTargets(ctx context.Context, explorer *usecase.Explorer, targets []configs.IntrospectionTarget, logger *slog.Logger) {
	for _, t := range targets {
		log := logger.With(slog.String("url", t.URL))
		result, err := explorer.Introspect(ctx, usecase.ConnectorConfig{
			URL:             t.URL,
			Headers:         t.Headers,
			FollowRedirects: true,
		}, domain.Protocol(t.Protocol))
		if err != nil {
			log.Error("Failed to introspect configured target.", slog.Any("error", err))
			continue
		}
		if !result.Success {
			log.Warn("Configured target introspection did not succeed.", slog.String("error", result.Error))
			continue
		}
		log.Info("Introspected configured target.",
			slog.String("schema_id", result.Schema.ID),
			slog.Int("operations", len(result.Schema.Operations)))
	}
}

// initOtelProvider initializes the OpenTelemetry SDK and sets up the OTLP trace exporter.
// It returns a shutdown function to be called on application exit.
func initOtelProvider(cfg *configs.Config) (func(context.Context) error, error) {
	ctx := context.Background()

	if cfg.OtelExporterOtlpEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, OpenTelemetry tracing disabled.")
		return func(context.Context) error { return nil }, nil
	}

	slog.Info("Initializing OTLP exporter.", slog.String("endpoint", cfg.OtelExporterOtlpEndpoint))

	grpcOpts := []grpc.DialOption{}
	if cfg.OtelExporterOtlpInsecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		slog.Warn("Using insecure connection for OTLP exporter.")
	}

	conn, err := grpc.NewClient(cfg.OtelExporterOtlpEndpoint, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("apilens"),
		),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(tp)

	// W3C Trace Context and Baggage propagation.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		providerErr := tp.Shutdown(ctx)
		connErr := conn.Close()
		return errors.Join(providerErr, connErr)
	}, nil
}
