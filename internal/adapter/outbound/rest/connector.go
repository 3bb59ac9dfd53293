package rest

import (
	"context"
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

// Connector introspects HTTP APIs by locating their OpenAPI or Swagger
// specification and converting it to the canonical schema model.
type Connector struct {
	httpClient *http.Client
	logger     *slog.Logger
	converter  *converter
}

// New creates a REST connector. A nil client falls back to
// http.DefaultClient.
func New(client *http.Client, logger *slog.Logger) *Connector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Connector{
		httpClient: client,
		logger:     logger.With("component", "rest_connector"),
		converter:  newConverter(logger),
	}
}

func (c *Connector) Protocol() domain.Protocol { return domain.ProtocolREST }

// CanHandle accepts any HTTP(S) URL. REST is the fallback during protocol
// auto-detection.
func (c *Connector) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func (c *Connector) DefaultConfig() usecase.ConnectorConfig {
	return usecase.ConnectorConfig{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		Headers:         map[string]string{"Accept": "application/json"},
	}
}

// TestConnection issues a GET against the target URL. Any HTTP response,
// whatever its status, proves the endpoint is reachable.
func (c *Connector) TestConnection(ctx context.Context, cfg usecase.ConnectorConfig) *domain.ConnectionTestResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return &domain.ConnectionTestResult{
			Success:      false,
			ResponseTime: time.Since(start).Milliseconds(),
			Error:        fmt.Sprintf("invalid URL %s: %v", cfg.URL, err),
		}
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.clientFor(cfg).Do(req)
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

// Introspect locates the specification document, validates it and converts
// it. Unreachable targets, missing documents and malformed specs come back
// as failed results; only config misuse surfaces as an error.
func (c *Connector) Introspect(ctx context.Context, cfg usecase.ConnectorConfig) (*domain.IntrospectionResult, error) {
	if cfg.URL == "" {
		return nil, domain.NewConfigurationError("introspection requires a target URL", nil)
	}
	log := c.logger.With(slog.String("url", cfg.URL))
	log.Info("Starting REST introspection")

	test := c.TestConnection(ctx, cfg)
	if !test.Success {
		return &domain.IntrospectionResult{
			Success:  false,
			Error:    domain.NewConnectionError(test.Error, nil).Error(),
			Metadata: test.Metadata,
		}, nil
	}

	specURL := cfg.SpecURL
	switch {
	case specURL != "":
	case looksLikeSpecURL(cfg.URL):
		specURL = cfg.URL
	default:
		discovered, tried, err := c.discoverSpecURL(ctx, cfg.URL, cfg.Headers)
		if err != nil {
			return &domain.IntrospectionResult{
				Success:  false,
				Error:    domain.NewIntrospectionError(err.Error(), nil).Error(),
				Metadata: map[string]any{"triedPaths": tried},
			}, nil
		}
		specURL = discovered
	}

	body, failure := c.fetchSpec(ctx, cfg, specURL)
	if failure != nil {
		return failedResult(failure, specURL), nil
	}

	doc, err := parseSpecBody(body)
	if err != nil {
		return failedResult(domain.NewSchemaParsingError(
			fmt.Sprintf("failed to parse document at %s", specURL), err), specURL), nil
	}

	if !isAPISpecification(doc) {
		return failedResult(domain.NewSchemaParsingError(
			fmt.Sprintf("document at %s does not look like an OpenAPI or Swagger specification", specURL), nil), specURL), nil
	}

	if missing := missingSpecFields(doc); len(missing) > 0 {
		result := failedResult(domain.NewValidationError(
			fmt.Sprintf("specification is missing required fields: %s", strings.Join(missing, ", ")), nil), specURL)
		result.Metadata["missingFields"] = missing
		return result, nil
	}

	var warnings []string
	if warning := versionWarning(doc); warning != "" {
		log.Warn("Specification version outside supported range", slog.String("warning", warning))
		warnings = append(warnings, warning)
	}

	typed, err := buildDocument(ctx, doc)
	if err != nil {
		return failedResult(domain.NewSchemaParsingError(
			fmt.Sprintf("failed to normalize document at %s", specURL), err), specURL), nil
	}

	schema := c.converter.Convert(typed, cfg.URL, time.Now())
	log.Info("REST introspection complete",
		slog.Int("operations", len(schema.Operations)),
		slog.Int("types", len(schema.Types)))

	return &domain.IntrospectionResult{
		Success:  true,
		Schema:   schema,
		Warnings: warnings,
		Metadata: map[string]any{"specUrl": specURL},
	}, nil
}

// fetchSpec downloads the specification document. Status 401/403 maps to an
// authentication failure so callers can distinguish it from plain
// unreachability.
func (c *Connector) fetchSpec(ctx context.Context, cfg usecase.ConnectorConfig, specURL string) ([]byte, *domain.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specURL, nil)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("invalid specification URL %s", specURL), err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/plain")
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.clientFor(cfg).Do(req)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to fetch specification from %s", specURL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewAuthenticationError(
			fmt.Sprintf("access to %s denied with status %d", specURL, resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewConnectionError(
			fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, specURL), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to read specification body from %s", specURL), err)
	}
	return body, nil
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

func failedResult(failure *domain.Error, specURL string) *domain.IntrospectionResult {
	return &domain.IntrospectionResult{
		Success:  false,
		Error:    failure.Error(),
		Metadata: map[string]any{"specUrl": specURL},
	}
}
