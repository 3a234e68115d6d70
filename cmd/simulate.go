package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/oddslab/marketcore/internal/engine"
	"github.com/oddslab/marketcore/pkg/config"
	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate <orders-file>",
	Short: "Replay an order file deterministically",
	Long: `Simulate opens a fresh session from the market parameter document,
replays the order file batch by batch, and prints every fill and the
final state. Sizes and prices in the order file are human decimals;
identical inputs always produce identical output.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	simulateCmd.Flags().StringVar(&simulateParamsPath, "params", "market.json", "market parameter document")
	simulateCmd.Flags().BoolVar(&simulateDumpState, "dump-state", false, "print the final state blob")
	rootCmd.AddCommand(simulateCmd)
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	simulateParamsPath string
	simulateDumpState  bool
)

// simOrder is one order with human-decimal quantities.
type simOrder struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Outcome     int    `json:"outcome_i"`
	Side        string `json:"side"`
	Kind        string `json:"kind"`
	IsBuy       bool   `json:"is_buy"`
	Size        string `json:"size"`
	LimitPrice  string `json:"limit_price,omitempty"`
	MaxSlippage string `json:"max_slippage,omitempty"`
	AfOptIn     bool   `json:"af_opt_in"`
	TsMs        int64  `json:"ts_ms"`
}

type simBatch struct {
	TMs    int64      `json:"t_ms"`
	Orders []simOrder `json:"orders"`
}

type simFile struct {
	Batches []simBatch `json:"batches"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	params, err := config.LoadMarketParams(simulateParamsPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read order file: %w", err)
	}
	var file simFile
	err = json.Unmarshal(raw, &file)
	if err != nil {
		return fmt.Errorf("parse order file: %w", err)
	}

	state, err := engine.Init(params, 0)
	if err != nil {
		return err
	}

	for i, batch := range file.Batches {
		orders := make([]types.Order, 0, len(batch.Orders))
		for _, so := range batch.Orders {
			order, err := so.toOrder()
			if err != nil {
				return fmt.Errorf("batch %d order %s: %w", i, so.OrderID, err)
			}
			orders = append(orders, order)
		}

		fills, events, err := engine.ApplyOrders(state, orders, params, batch.TMs)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}

		fmt.Printf("batch %d (t=%dms): %d orders, %d fills, %d events\n",
			i, batch.TMs, len(orders), len(fills), len(events))
		for _, f := range fills {
			fmt.Printf("  %-10s %-8s out=%d %-3s %8s @ %6s  %s -> %s\n",
				f.TradeID, f.Type, f.Outcome, f.Side,
				f.Size.Format(), f.Price.Format(), f.Seller, f.Buyer)
		}
		for _, e := range events {
			if e.Type == types.EventOrderRejected {
				r := e.Payload.(types.OrderRejected)
				fmt.Printf("  rejected %s: %s\n", r.OrderID, r.Reason)
			}
		}
	}

	printPrices(state)
	if simulateDumpState {
		blob, err := state.Serialize()
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
	}
	return nil
}

func printPrices(state *engine.EngineState) {
	fmt.Println("final prices:")
	for i, b := range state.Binaries {
		if !b.Active {
			fmt.Printf("  outcome %d: eliminated\n", i)
			continue
		}
		pYes, errYes := state.PriceYes(i)
		pNo, errNo := state.PriceNo(i)
		if errYes != nil || errNo != nil {
			fmt.Printf("  outcome %d: <unpriceable>\n", i)
			continue
		}
		fmt.Printf("  outcome %d: yes=%s no=%s v=%s seigniorage=%s\n",
			i, pYes.Format(), pNo.Format(), b.V.Format(), b.Seigniorage.Format())
	}
}

// toOrder converts human decimals into engine fixed point.
func (so *simOrder) toOrder() (types.Order, error) {
	size, err := parseScaled(so.Size, fixed.AmountScale)
	if err != nil {
		return types.Order{}, fmt.Errorf("size: %w", err)
	}
	order := types.Order{
		OrderID: so.OrderID,
		UserID:  so.UserID,
		Outcome: so.Outcome,
		Side:    types.Side(so.Side),
		Kind:    types.OrderKind(so.Kind),
		IsBuy:   so.IsBuy,
		Size:    fixed.Amount(size),
		AfOptIn: so.AfOptIn,
		TsMs:    so.TsMs,
	}
	if so.LimitPrice != "" {
		price, err := parseScaled(so.LimitPrice, fixed.PriceScale)
		if err != nil {
			return types.Order{}, fmt.Errorf("limit_price: %w", err)
		}
		order.LimitPrice = fixed.Price(price)
	}
	if so.MaxSlippage != "" {
		slip, err := parseScaled(so.MaxSlippage, fixed.AmountScale)
		if err != nil {
			return types.Order{}, fmt.Errorf("max_slippage: %w", err)
		}
		slipCap := fixed.Amount(slip)
		order.MaxSlippage = &slipCap
	}
	return order, nil
}

// parseScaled converts a human decimal string to a scaled integer,
// rejecting values that do not fit the scale exactly.
func parseScaled(s string, scale int64) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	scaled := d.Mul(decimal.NewFromInt(scale))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%q has more precision than the %d scale", s, scale)
	}
	return scaled.IntPart(), nil
}
