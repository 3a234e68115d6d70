package types

import "github.com/oddslab/marketcore/pkg/fixed"

// FillType tags the venue a fill executed against.
type FillType string

// Fill venues.
const (
	FillAMM      FillType = "AMM"
	FillLOB      FillType = "LOB"
	FillCross    FillType = "CROSS"
	FillAutoFill FillType = "AUTOFILL"
)

// Fill is one executed trade leg. A market order that crosses the book
// and then the AMM produces multiple fills with distinct types. For
// CROSS fills both limit prices are reported; Price carries the YES leg.
type Fill struct {
	TradeID string       `json:"trade_id"`
	Buyer   string       `json:"buyer"`
	Seller  string       `json:"seller"`
	Outcome int          `json:"outcome_i"`
	Side    Side         `json:"side"`
	Price   fixed.Price  `json:"price"`
	Size    fixed.Amount `json:"size"`
	Fee     fixed.Amount `json:"fee"`
	Type    FillType     `json:"fill_type"`

	PriceYes fixed.Price `json:"price_yes,omitempty"`
	PriceNo  fixed.Price `json:"price_no,omitempty"`

	TickID int64 `json:"tick_id"`
	TsMs   int64 `json:"ts_ms"`
}
