package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/inventory/internal/control"
	"github.com/vietddude/inventory/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Inventory service",
	Long: `Inventory records which catalog items each user owns. Grants are atomic
per user and item; queries join ownership with the remote catalog and degrade
to bare records while the catalog is unavailable.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file and initialises logging. It exits on
// a config error.
func setup() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// newApp builds the application for one-shot commands.
func newApp(ctx context.Context, cfg *config.AppConfig) *control.App {
	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize inventory service", "error", err)
		os.Exit(1)
	}
	return app
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newApp(ctx, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start inventory service", "error", err)
		os.Exit(1)
	}

	slog.Info("Inventory service started", "config", cfgPath, "storage", cfg.Storage.Driver)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Inventory service stopped gracefully")
}
