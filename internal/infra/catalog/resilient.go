package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/resilience"
	"github.com/vietddude/inventory/internal/metrics"
)

// Config holds the catalog dependency settings.
type Config struct {
	URL              string        `yaml:"url"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
}

// RetryPolicy returns the retry settings of the config.
func (c Config) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BackoffBase,
		MaxDelay:    c.BackoffMax,
	}
}

// BreakerConfig returns the circuit breaker settings of the config.
func (c Config) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		OpenDuration:     c.OpenDuration,
	}
}

// Lister performs one unguarded catalog request.
type Lister interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
}

// Gate decides whether a call may reach the dependency and learns from outcomes.
// *resilience.Breaker implements it.
type Gate interface {
	Allow() error
	Record(success bool)
	Release()
}

// ResilientClient fetches catalog items through a circuit breaker, a retry
// loop and a per-attempt timeout. Every failure comes back as
// domain.ErrRemoteUnavailable.
type ResilientClient struct {
	lister  Lister
	gate    Gate
	timeout time.Duration
	policy  resilience.RetryPolicy
}

// NewResilientClient wires lister behind gate.
func NewResilientClient(
	lister Lister,
	gate Gate,
	timeout time.Duration,
	policy resilience.RetryPolicy,
) *ResilientClient {
	return &ResilientClient{
		lister:  lister,
		gate:    gate,
		timeout: timeout,
		policy:  policy,
	}
}

// FetchItems returns the full catalog. An open circuit fails fast without a
// network attempt or retry loop. Each attempt is timeout-guarded and reported to
// the breaker before the loop decides whether to retry.
func (c *ResilientClient) FetchItems(ctx context.Context) ([]domain.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		metrics.CatalogFetches.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}
	if err := c.gate.Allow(); err != nil {
		metrics.CatalogAttempts.WithLabelValues("short_circuit").Inc()
		metrics.CatalogFetches.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}

	// the first attempt uses the admission above
	admitted := true
	items, err := resilience.Retry(ctx, c.policy, func(ctx context.Context, attempt int) ([]domain.CatalogItem, error) {
		if !admitted {
			if err := c.gate.Allow(); err != nil {
				metrics.CatalogAttempts.WithLabelValues("short_circuit").Inc()
				return nil, err
			}
		}
		admitted = false
		return c.attempt(ctx, attempt)
	})
	if admitted {
		// cancelled before the first attempt ran; hand the admission back
		c.gate.Release()
	}
	if err != nil {
		metrics.CatalogFetches.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}

	metrics.CatalogFetches.WithLabelValues("ok").Inc()
	return items, nil
}

func (c *ResilientClient) attempt(ctx context.Context, attempt int) ([]domain.CatalogItem, error) {
	start := time.Now()
	items, err := resilience.WithTimeout(ctx, c.timeout, c.lister.ListItems)
	metrics.CatalogLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.CatalogAttempts.WithLabelValues("success").Inc()
		c.gate.Record(true)
		return items, nil
	case resilience.IsTransient(err):
		metrics.CatalogAttempts.WithLabelValues("transient").Inc()
		c.gate.Record(false)
		slog.Debug("Catalog attempt failed", "attempt", attempt+1, "error", err)
	case ctx.Err() != nil:
		// caller went away; the outcome says nothing about the catalog
		c.gate.Release()
	default:
		// a well-formed rejection: the catalog is up
		metrics.CatalogAttempts.WithLabelValues("rejected").Inc()
		c.gate.Record(true)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			slog.Warn("Catalog rejected request", "status", statusErr.StatusCode)
		}
	}
	return nil, err
}
