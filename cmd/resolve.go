package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Trigger a resolution round on a running daemon",
	Long: `Resolve posts a resolution request to the daemon's admin endpoint.
Use --eliminate for an intermediate round or --winner for the final
round; payouts are printed per user.`,
	RunE: runResolve,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	resolveAddr      string
	resolveWinner    int
	resolveEliminate []int
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	resolveCmd.Flags().StringVar(&resolveAddr, "addr", "http://localhost:8080", "daemon address")
	resolveCmd.Flags().IntVar(&resolveWinner, "winner", -1, "winning outcome for the final round")
	resolveCmd.Flags().IntSliceVar(&resolveEliminate, "eliminate", nil, "outcomes to eliminate in an intermediate round")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	final := resolveWinner >= 0
	if !final && len(resolveEliminate) == 0 {
		return fmt.Errorf("either --winner or --eliminate is required")
	}
	if final && len(resolveEliminate) > 0 {
		return fmt.Errorf("--winner and --eliminate are mutually exclusive")
	}

	payload, err := json.Marshal(map[string]any{
		"final":     final,
		"winner_i":  resolveWinner,
		"eliminate": resolveEliminate,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(resolveAddr+"/api/admin/resolve", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post resolve: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resolve failed (%d): %s", resp.StatusCode, body)
	}

	var payouts map[string]string
	err = json.Unmarshal(body, &payouts)
	if err != nil {
		return fmt.Errorf("parse payouts: %w", err)
	}
	if len(payouts) == 0 {
		fmt.Println("no payouts")
		return nil
	}
	fmt.Println("payouts:")
	for user, amount := range payouts {
		fmt.Printf("  %-20s %s\n", user, amount)
	}
	return nil
}
