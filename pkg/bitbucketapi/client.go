// Package bitbucketapi provides a hand-rolled Bitbucket Data Center REST
// API client with PAT authentication and typed error classification.
package bitbucketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second
)

var (
	tracer = otel.Tracer("bbmcp/server/pkg/bitbucketapi")
	meter  = otel.Meter("bbmcp/server/pkg/bitbucketapi")

	requestCounter, _ = meter.Int64Counter("bitbucket.client.requests",
		metric.WithDescription("Bitbucket API requests issued"))
	requestDuration, _ = meter.Float64Histogram("bitbucket.client.duration",
		metric.WithDescription("Bitbucket API request duration"),
		metric.WithUnit("ms"))
)

// Client is an HTTP client for the Bitbucket Data Center REST API.
// It is safe for concurrent use by independent tool invocations.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a client from the given configuration.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// BaseURL returns the configured remote base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// RepoPath builds the REST API path prefix for a repository.
func RepoPath(projectKey, repoSlug string) string {
	return fmt.Sprintf("/rest/api/latest/projects/%s/repos/%s", projectKey, repoSlug)
}

// ── Core HTTP methods ────────────────────────────────────────────────────

// Get makes a GET request and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

// GetPaged makes a GET request with start/limit pagination parameters
// merged into the query.
func (c *Client) GetPaged(ctx context.Context, path string, params url.Values, start, limit int) (map[string]any, error) {
	p := url.Values{}
	for k, vs := range params {
		p[k] = vs
	}
	p.Set("start", fmt.Sprintf("%d", start))
	p.Set("limit", fmt.Sprintf("%d", limit))
	return c.Get(ctx, path, p)
}

// Post makes a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, params url.Values) (map[string]any, error) {
	respBody, err := c.do(ctx, http.MethodPost, path, params, body)
	if err != nil {
		return nil, err
	}
	return decodeBody(respBody)
}

// Put makes a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (map[string]any, error) {
	respBody, err := c.do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return nil, err
	}
	return decodeBody(respBody)
}

// Delete makes a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (map[string]any, error) {
	respBody, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeBody(respBody)
}

// GetRaw makes a GET request and returns the body as text. Used for
// endpoints that return plain text (file content, diffs); errors are
// classified the same way as for JSON endpoints.
func (c *Client) GetRaw(ctx context.Context, path string, params url.Values) (string, error) {
	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ── Request execution ────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "bitbucketapi.request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	endpoint := c.config.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := float64(time.Since(start).Milliseconds())

	if err != nil {
		requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "transport_error")))
		span.RecordError(err)
		return nil, errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", resp.StatusCode)))
	requestDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("method", method)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyError(resp.StatusCode, respBody)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return respBody, nil
}

// decodeBody parses a 2xx response body. Empty bodies (204, no content)
// yield an empty map. Endpoints that return a bare JSON array (the
// conditions endpoint on some DC versions) are wrapped as {"values": ...}.
func decodeBody(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	switch v := decoded.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{"values": v}, nil
	case nil:
		return map[string]any{}, nil
	default:
		return map[string]any{"value": v}, nil
	}
}
