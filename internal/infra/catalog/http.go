// Package catalog talks to the remote catalog service.
//
// This package contains:
//   - HTTPClient: a single GET /items call, no retries
//   - ResilientClient: HTTPClient behind a circuit breaker, retry loop and
//     per-attempt timeout
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/resilience"
)

const tracerName = "github.com/vietddude/inventory/internal/infra/catalog"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// StatusError is a well-formed non-200 response from the catalog service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog returned http %d: %s", e.StatusCode, e.Body)
}

// retryableStatus reports whether a status code signals a transient condition.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// HTTPClient lists catalog items over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewHTTPClient creates a catalog client for baseURL.
// The http.Client has no Timeout of its own; every request is bounded by its context.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tracer: otel.Tracer(tracerName),
	}
}

// ListItems fetches every catalog item with a single request.
// Transport errors, 5xx/408/429 and undecodable bodies are marked transient.
func (c *HTTPClient) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	url := c.baseURL + "/items"

	ctx, span := c.tracer.Start(ctx, "catalog.ListItems", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", http.MethodGet),
	)

	items, err := c.listItems(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("catalog.items", len(items)))
	return items, nil
}

func (c *HTTPClient) listItems(ctx context.Context, url string) ([]domain.CatalogItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("catalog request: %w", err)
		}
		return nil, resilience.Transient(fmt.Errorf("catalog request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if retryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(statusErr)
		}
		return nil, statusErr
	}

	var items []domain.CatalogItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, resilience.Transient(fmt.Errorf("parse response: %w", err))
	}
	return items, nil
}
