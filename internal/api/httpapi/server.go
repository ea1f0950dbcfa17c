// Package httpapi exposes the inventory service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/core/inventory"
	"github.com/vietddude/inventory/internal/infra/resilience"
)

const (
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// Inventory is the orchestrator surface served over HTTP.
type Inventory interface {
	HandleGrant(ctx context.Context, req inventory.GrantRequest) (*domain.InventoryRecord, error)
	HandleQuery(ctx context.Context, userID string) ([]domain.OwnedItem, error)
}

// BreakerStatus reports the catalog circuit breaker state.
type BreakerStatus interface {
	Snapshot() resilience.Snapshot
}

// StoreHealth checks the keyed store backing the ledger.
type StoreHealth interface {
	Health(ctx context.Context) error
}

// Server provides the inventory HTTP endpoints.
type Server struct {
	inventory Inventory
	breaker   BreakerStatus
	store     StoreHealth
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStoreHealth makes /health report the store. Without it the store is
// assumed to be in process.
func WithStoreHealth(h StoreHealth) Option {
	return func(s *Server) { s.store = h }
}

// NewServer creates a new HTTP server.
func NewServer(inv Inventory, breaker BreakerStatus, port int, opts ...Option) *Server {
	s := &Server{
		inventory: inv,
		breaker:   breaker,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{userId}", s.handleQuery)
	mux.HandleFunc("POST /items", s.handleGrant)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return withTraceContext(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	owned, err := s.inventory.HandleQuery(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, owned)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req inventory.GrantRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, domain.InvalidInputf("malformed request body: %v", err))
		return
	}

	rec, err := s.inventory.HandleGrant(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleHealth answers 503 only when the store is unreachable. An open catalog
// breaker is reported but stays 200 since queries degrade without it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code, storeStatus := "ok", http.StatusOK, "ok"
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.store.Health(ctx); err != nil {
			slog.Warn("Store health check failed", "error", err)
			status, code, storeStatus = "unavailable", http.StatusServiceUnavailable, err.Error()
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"store":   storeStatus,
		"catalog": s.breaker.Snapshot(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.Is(err, domain.ErrInvalidInput) {
		status = http.StatusBadRequest
		msg = err.Error()
	} else {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// withTraceContext continues an incoming trace so catalog calls made while
// serving the request join it.
func withTraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
