package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/oddslab/marketcore/internal/engine"
)

//nolint:gochecknoglobals // Cobra boilerplate
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the market state of a running daemon",
	RunE:  runState,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	stateAddr string
	stateRaw  bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	stateCmd.Flags().StringVar(&stateAddr, "addr", "http://localhost:8080", "daemon address")
	stateCmd.Flags().BoolVar(&stateRaw, "raw", false, "print the raw state blob")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(stateAddr + "/api/state")
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("state request failed (%d): %s", resp.StatusCode, blob)
	}
	if stateRaw {
		fmt.Println(string(blob))
		return nil
	}

	state, err := engine.Deserialize(blob)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	fmt.Printf("outcomes: %d  seq: %d  rounds: %d\n", state.NOutcomes, state.Seq, state.RoundsDone)
	for i, b := range state.Binaries {
		if !b.Active {
			fmt.Printf("  [%d] eliminated\n", i)
			continue
		}
		pYes, errYes := state.PriceYes(i)
		pNo, errNo := state.PriceNo(i)
		if errYes != nil || errNo != nil {
			fmt.Printf("  [%d] <unpriceable>\n", i)
			continue
		}
		fmt.Printf("  [%d] yes=%s no=%s  L=%s V=%s subsidy=%s  pools=%d\n",
			i, pYes.Format(), pNo.Format(),
			b.L.Format(), b.V.Format(), b.Subsidy.Format(), len(b.Pools))
	}
	return nil
}
