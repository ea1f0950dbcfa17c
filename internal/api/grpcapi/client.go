package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient queries a running inventory service's gRPC health endpoint.
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthClient creates a plaintext health client for addr.
func NewHealthClient(addr string) (*HealthClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	return &HealthClient{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

// Check returns the serving status of a service ("" for overall).
func (c *HealthClient) Check(ctx context.Context, service string) (string, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check %q failed: %w", service, err)
	}
	return resp.GetStatus().String(), nil
}

// Close closes the connection.
func (c *HealthClient) Close() error {
	return c.conn.Close()
}
