package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/inventory/internal/core/config"
	"github.com/vietddude/inventory/internal/core/inventory"
	"github.com/vietddude/inventory/internal/infra/resilience"
)

func TestApp_MemoryWiring(t *testing.T) {
	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer catalogSrv.Close()

	cfg := config.Default()
	cfg.Catalog.URL = catalogSrv.URL
	cfg.Catalog.MaxAttempts = 1
	cfg.Catalog.FailureThreshold = 1
	cfg.Catalog.OpenDuration = time.Minute

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	user := uuid.NewString()
	if _, err := app.Service().HandleGrant(ctx, inventory.GrantRequest{
		UserID:        user,
		CatalogItemID: uuid.NewString(),
		Quantity:      2,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	owned, err := app.Service().HandleQuery(ctx, user)
	if err != nil {
		t.Fatalf("query must degrade, got %v", err)
	}
	if len(owned) != 1 || owned[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", owned)
	}

	if got := app.Breaker().State(); got != resilience.StateOpen {
		t.Errorf("expected breaker open after a failed fetch, got %s", got)
	}
}

func TestApp_Lifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0 // Random port

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	if app.grpcServer != nil {
		t.Error("gRPC health server should be disabled without a port")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Start returns immediately; servers run in goroutines.
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_UnknownStorageFallsBackToMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "bogus"

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer app.Close()

	if app.db != nil || app.redisClient != nil {
		t.Error("expected in-memory storage")
	}
}
