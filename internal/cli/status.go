package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/inventory/internal/api/grpcapi"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running service's gRPC health endpoint",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "gRPC address (default localhost:<server.grpc_port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := setup()

	addr := statusAddr
	if addr == "" {
		if cfg.Server.GRPCPort == 0 {
			slog.Error("server.grpc_port is not configured and --addr was not given")
			os.Exit(1)
		}
		addr = fmt.Sprintf("localhost:%d", cfg.Server.GRPCPort)
	}

	client, err := grpcapi.NewHealthClient(addr)
	if err != nil {
		slog.Error("Failed to connect", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SERVICE\tSTATUS")
	for _, service := range []string{"", grpcapi.CatalogService} {
		name := service
		if name == "" {
			name = "inventory"
		}
		status, err := client.Check(ctx, service)
		if err != nil {
			status = "UNREACHABLE"
			slog.Debug("Health check failed", "service", name, "error", err)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, status)
	}
	_ = w.Flush()
}
