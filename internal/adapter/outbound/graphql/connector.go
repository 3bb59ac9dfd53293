package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apilens/apilens/internal/domain"
	"github.com/apilens/apilens/internal/usecase"
)

// Connector introspects GraphQL endpoints through the standard introspection
// query and converts the resulting type system to the canonical schema model.
type Connector struct {
	httpClient *http.Client
	logger     *slog.Logger
	converter  *converter
}

// New creates a GraphQL connector. A nil client falls back to
// http.DefaultClient.
func New(client *http.Client, logger *slog.Logger) *Connector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Connector{
		httpClient: client,
		logger:     logger.With("component", "graphql_connector"),
		converter:  newConverter(logger),
	}
}

func (c *Connector) Protocol() domain.Protocol { return domain.ProtocolGraphQL }

// CanHandle claims HTTP(S) URLs that mention graphql in the host or path.
func (c *Connector) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return strings.Contains(strings.ToLower(rawURL), "graphql")
}

func (c *Connector) DefaultConfig() usecase.ConnectorConfig {
	return usecase.ConnectorConfig{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		Headers:         map[string]string{"Accept": "application/json"},
	}
}

// TestConnection posts a minimal __typename query. Any HTTP response proves
// the endpoint is reachable; whether it accepts introspection is left to
// Introspect.
func (c *Connector) TestConnection(ctx context.Context, cfg usecase.ConnectorConfig) *domain.ConnectionTestResult {
	start := time.Now()

	resp, err := c.post(ctx, cfg, `{ __typename }`)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &domain.ConnectionTestResult{
			Success:      false,
			ResponseTime: elapsed,
			Error:        fmt.Sprintf("failed to reach %s: %v", cfg.URL, err),
		}
	}
	defer resp.Body.Close()

	return &domain.ConnectionTestResult{
		Success:      true,
		ResponseTime: elapsed,
		Metadata:     map[string]any{"statusCode": resp.StatusCode},
	}
}

// Introspect runs the full introspection query, retrying once with the
// simplified variant when the server rejects it at the GraphQL level. A
// fallback success is reported as a warning, never an error.
func (c *Connector) Introspect(ctx context.Context, cfg usecase.ConnectorConfig) (*domain.IntrospectionResult, error) {
	if cfg.URL == "" {
		return nil, domain.NewConfigurationError("introspection requires a target URL", nil)
	}
	log := c.logger.With(slog.String("url", cfg.URL))
	log.Info("Starting GraphQL introspection")

	test := c.TestConnection(ctx, cfg)
	if !test.Success {
		return &domain.IntrospectionResult{
			Success:  false,
			Error:    domain.NewConnectionError(test.Error, nil).Error(),
			Metadata: test.Metadata,
		}, nil
	}

	var warnings []string

	envelope, failure := c.execute(ctx, cfg, introspectionQuery)
	if failure != nil {
		return failedResult(failure), nil
	}

	if !envelope.hasSchema() {
		rejectedWith := envelope.errorMessages()
		log.Warn("Full introspection query rejected, retrying with simplified query",
			slog.Any("errors", rejectedWith))

		envelope, failure = c.execute(ctx, cfg, simplifiedIntrospectionQuery)
		if failure != nil {
			return failedResult(failure), nil
		}
		if !envelope.hasSchema() {
			combined := strings.Join(append(rejectedWith, envelope.errorMessages()...), "; ")
			return failedResult(domain.NewIntrospectionError(
				fmt.Sprintf("endpoint rejected both introspection queries: %s", combined), nil)), nil
		}
		warnings = append(warnings, "full introspection query failed; the simplified fallback succeeded, so some type detail may be missing")
	} else if msgs := envelope.errorMessages(); len(msgs) > 0 {
		warnings = append(warnings, "introspection completed with GraphQL errors: "+strings.Join(msgs, "; "))
	}

	schema := c.converter.Convert(envelope.Data.Schema, cfg.URL, time.Now())
	log.Info("GraphQL introspection complete",
		slog.Int("operations", len(schema.Operations)),
		slog.Int("types", len(schema.Types)))

	return &domain.IntrospectionResult{
		Success:  true,
		Schema:   schema,
		Warnings: warnings,
	}, nil
}

// execute posts one introspection query and decodes the response envelope.
// GraphQL-level rejections come back as an envelope with errors, not as a
// failure; failures are reserved for transport, auth and decode problems.
func (c *Connector) execute(ctx context.Context, cfg usecase.ConnectorConfig, query string) (*introspectionEnvelope, *domain.Error) {
	resp, err := c.post(ctx, cfg, query)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to reach %s", cfg.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.NewAuthenticationError(
			fmt.Sprintf("access to %s denied with status %d", cfg.URL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to read response from %s", cfg.URL), err)
	}

	var envelope introspectionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, domain.NewConnectionError(
				fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, cfg.URL), nil)
		}
		return nil, domain.NewSchemaParsingError(
			fmt.Sprintf("response from %s is not valid JSON", cfg.URL), err)
	}
	return &envelope, nil
}

func (c *Connector) post(ctx context.Context, cfg usecase.ConnectorConfig, query string) (*http.Response, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return c.clientFor(cfg).Do(req)
}

// clientFor derives a per-call client so the configured timeout and redirect
// policy apply without mutating the shared client.
func (c *Connector) clientFor(cfg usecase.ConnectorConfig) *http.Client {
	client := *c.httpClient
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &client
}

func failedResult(failure *domain.Error) *domain.IntrospectionResult {
	return &domain.IntrospectionResult{Success: false, Error: failure.Error()}
}
