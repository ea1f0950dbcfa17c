package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Fetch the catalog once through the resilience pipeline and print the breaker state",
	Args:  cobra.NoArgs,
	Run:   runBreaker,
}

func init() {
	rootCmd.AddCommand(breakerCmd)
}

func runBreaker(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	items, err := app.Catalog().FetchItems(ctx)
	if err != nil {
		fmt.Printf("Catalog fetch failed: %v\n", err)
	} else {
		fmt.Printf("Catalog returned %d items\n", len(items))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(app.Breaker().Snapshot())
}
