package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogAttempts tracks single attempts against the catalog service by outcome
	// (success, transient, rejected, short_circuit)
	CatalogAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_catalog_attempts_total",
			Help: "Total number of catalog call attempts",
		},
		[]string{"outcome"},
	)

	// CatalogFetches tracks whole FetchItems calls (ok, unavailable)
	CatalogFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_catalog_fetches_total",
			Help: "Total number of catalog fetches",
		},
		[]string{"result"},
	)

	// CatalogLatency tracks single attempt latency
	CatalogLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_catalog_attempt_latency_seconds",
			Help:    "Catalog call attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BreakerState is 0 closed, 1 open, 2 half-open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)

	// BreakerTransitions counts state changes by target state
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "to"},
	)

	// Grants tracks grant requests by result (ok, invalid, error)
	Grants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_grants_total",
			Help: "Total number of grant requests",
		},
		[]string{"result"},
	)

	// GrantedUnits sums granted quantities
	GrantedUnits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_granted_units_total",
			Help: "Total number of units granted",
		},
	)

	// StoreConflicts counts write conflicts retried by the ledger
	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_store_conflicts_total",
			Help: "Total number of store write conflicts retried",
		},
	)

	// DegradedQueries counts queries answered without catalog metadata
	DegradedQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_degraded_queries_total",
			Help: "Total number of queries served without catalog data",
		},
	)

	// EventsPublished counts grant events handed to the publisher (ok, error)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_published_total",
			Help: "Total number of grant events published",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
