package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// wellKnownSpecPaths are probed in order against the base URL when neither
// an explicit spec URL nor a spec-looking target URL is available.
var wellKnownSpecPaths = []string{
	"/openapi.json",
	"/openapi.yaml",
	"/swagger.json",
	"/swagger.yaml",
	"/api-docs",
	"/api/docs",
	"/docs/openapi.json",
	"/docs/swagger.json",
	"/v1/openapi.json",
	"/v1/swagger.json",
	"/api/v1/openapi.json",
	"/api/v1/swagger.json",
}

const probeTimeout = 5 * time.Second

// looksLikeSpecURL reports whether the URL itself appears to point at a
// specification document, making discovery unnecessary.
func looksLikeSpecURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasSuffix(lower, ".json") ||
		strings.HasSuffix(lower, ".yaml") ||
		strings.HasSuffix(lower, ".yml") ||
		strings.Contains(lower, "openapi") ||
		strings.Contains(lower, "swagger") ||
		strings.Contains(lower, "api-docs")
}

// discoverSpecURL probes the well-known paths under baseURL and returns the
// first candidate that answers with a spec-like content type, along with the
// list of paths tried. Per-candidate network errors never abort the probe of
// the remaining paths.
func (c *Connector) discoverSpecURL(ctx context.Context, baseURL string, headers map[string]string) (string, []string, error) {
	log := c.logger.With(slog.String("base_url", baseURL))
	log.Info("Attempting to discover specification document")

	base := strings.TrimRight(baseURL, "/")
	tried := make([]string, 0, len(wellKnownSpecPaths))

	for _, path := range wellKnownSpecPaths {
		tried = append(tried, path)
		candidate := base + path
		log.Debug("Probing spec path", slog.String("url", candidate))

		found, err := c.checkSpecEndpoint(ctx, candidate, headers)
		if err != nil {
			log.Debug("Probe failed", slog.String("url", candidate), slog.Any("error", err))
			continue
		}
		if found {
			log.Info("Discovered specification document", slog.String("url", candidate))
			return candidate, tried, nil
		}
	}

	return "", tried, fmt.Errorf("could not discover specification at %s after trying %d well-known paths", baseURL, len(tried))
}

// checkSpecEndpoint issues a lightweight existence check against a candidate
// spec URL: status 200 with a JSON, YAML or text content type counts as a hit.
func (c *Connector) checkSpecEndpoint(ctx context.Context, candidate string, headers map[string]string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, candidate, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/plain")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	return isSpecContentType(resp.Header.Get("Content-Type")), nil
}

func isSpecContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json") ||
		strings.Contains(ct, "yaml") ||
		strings.Contains(ct, "text")
}
