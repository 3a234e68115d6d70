package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "marketcore",
	Short: "Multi-outcome prediction market engine",
	Long: `marketcore runs the core engine of a multi-outcome prediction
market: N binary sub-markets priced by a parametric AMM with
cross-outcome coupling, tick-quantized limit pools with cross-matching
and auto-filling, and phased multi-round resolution.

The run command hosts the engine behind an HTTP API with a batch
scheduler; simulate replays an order file deterministically without any
server.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
