package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/inventory/internal/core/inventory"
)

var itemsCmd = &cobra.Command{
	Use:   "items [user_id]",
	Short: "List the items a user owns",
	Args:  cobra.ExactArgs(1),
	Run:   runItems,
}

var grantCmd = &cobra.Command{
	Use:   "grant [user_id] [catalog_item_id] [quantity]",
	Short: "Grant units of a catalog item to a user",
	Args:  cobra.ExactArgs(3),
	Run:   runGrant,
}

func init() {
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(grantCmd)
}

func runItems(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	owned, err := app.Service().HandleQuery(ctx, args[0])
	if err != nil {
		slog.Error("Failed to query inventory", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ITEM\tNAME\tQUANTITY\tACQUIRED")
	for _, o := range owned {
		name := o.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			o.CatalogItemID, name, o.Quantity, o.AcquiredDate.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runGrant(cmd *cobra.Command, args []string) {
	quantity, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		fmt.Printf("Invalid quantity: %v\n", err)
		os.Exit(1)
	}

	cfg := setup()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	rec, err := app.Service().HandleGrant(ctx, inventory.GrantRequest{
		UserID:        args[0],
		CatalogItemID: args[1],
		Quantity:      quantity,
	})
	if err != nil {
		slog.Error("Failed to grant item", "error", err)
		os.Exit(1)
	}

	fmt.Printf("User %s now owns %d of %s\n", rec.UserID, rec.Quantity, rec.CatalogItemID)
}
