package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/usecase"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCaptureDuration  = 30 * time.Second
	defaultCaptureMessages  = 100
)

// Connector introspects WebSocket endpoints by capturing a bounded window of
// live traffic and inferring message schemas from it.
type Connector struct {
	dialer    *websocket.Dialer
	logger    *slog.Logger
	converter *converter
}

func New(logger *slog.Logger) *Connector {
	return &Connector{
		dialer:    &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		logger:    logger.With("component", "websocket_connector"),
		converter: newConverter(logger),
	}
}

func (c *Connector) Protocol() domain.Protocol { return domain.ProtocolWebSocket }

func (c *Connector) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "ws" || parsed.Scheme == "wss"
}

func (c *Connector) DefaultConfig() usecase.ConnectorConfig {
	return usecase.ConnectorConfig{
		Timeout: defaultHandshakeTimeout,
		Capture: usecase.CaptureOptions{
			MaxDuration: defaultCaptureDuration,
			MaxMessages: defaultCaptureMessages,
		},
	}
}

// TestConnection dials the endpoint and closes the connection as soon as the
// handshake completes. It never waits for traffic.
func (c *Connector) TestConnection(ctx context.Context, cfg usecase.ConnectorConfig) *domain.ConnectionTestResult {
	start := time.Now()

	conn, resp, err := c.dial(ctx, cfg)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		result := &domain.ConnectionTestResult{
			Success:      false,
			ResponseTime: elapsed,
			Error:        fmt.Sprintf("failed to connect to %s: %v", cfg.URL, err),
		}
		if resp != nil {
			result.Metadata = map[string]any{"statusCode": resp.StatusCode}
		}
		return result
	}

	subprotocol := conn.Subprotocol()
	conn.Close()

	result := &domain.ConnectionTestResult{Success: true, ResponseTime: elapsed}
	if subprotocol != "" {
		result.Metadata = map[string]any{"subprotocol": subprotocol}
	}
	return result
}

// Introspect runs a full capture session: a successful preliminary dial does
// not shave anything off the capture budget. The converted schema reflects
// whatever traffic the window happened to contain.
func (c *Connector) Introspect(ctx context.Context, cfg usecase.ConnectorConfig) (*domain.IntrospectionResult, error) {
	if cfg.URL == "" {
		return nil, domain.NewConfigurationError("introspection requires a target URL", nil)
	}
	log := c.logger.With(slog.String("url", cfg.URL))
	log.Info("Starting WebSocket capture session")

	conn, resp, err := c.dial(ctx, cfg)
	if err != nil {
		var failure *domain.Error
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			failure = domain.NewAuthenticationError(
				fmt.Sprintf("handshake with %s denied with status %d", cfg.URL, resp.StatusCode), err)
		} else {
			failure = domain.NewConnectionError(fmt.Sprintf("failed to connect to %s", cfg.URL), err)
		}
		result := &domain.IntrospectionResult{Success: false, Error: failure.Error()}
		if resp != nil {
			result.Metadata = map[string]any{"statusCode": resp.StatusCode}
		}
		return result, nil
	}
	defer conn.Close()

	session := c.capture(ctx, conn, cfg.Capture)
	log.Info("Capture session complete",
		slog.Int("messages", len(session.Messages)),
		slog.Duration("duration", session.Duration))

	schema, warnings := c.converter.Convert(session, cfg.URL, time.Now())
	return &domain.IntrospectionResult{
		Success:  true,
		Schema:   schema,
		Warnings: warnings,
		Metadata: map[string]any{
			"capturedMessages": len(session.Messages),
			"captureDuration":  session.Duration.String(),
		},
	}, nil
}

func (c *Connector) dial(ctx context.Context, cfg usecase.ConnectorConfig) (*websocket.Conn, *http.Response, error) {
	dialer := *c.dialer
	if cfg.Timeout > 0 {
		dialer.HandshakeTimeout = cfg.Timeout
	}
	if len(cfg.Capture.Subprotocols) > 0 {
		dialer.Subprotocols = cfg.Capture.Subprotocols
	}

	header := make(http.Header, len(cfg.Headers))
	for key, value := range cfg.Headers {
		header.Set(key, value)
	}
	return dialer.DialContext(ctx, cfg.URL, header)
}
