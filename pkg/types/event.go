package types

import "github.com/oddslab/marketcore/pkg/fixed"

// EventType tags engine events.
type EventType string

// Event types emitted by ApplyOrders and TriggerResolution.
const (
	EventOrderAccepted   EventType = "ORDER_ACCEPTED"
	EventOrderRejected   EventType = "ORDER_REJECTED"
	EventFill            EventType = "FILL"
	EventCrossMatch      EventType = "CROSS_MATCH"
	EventAutoFill        EventType = "AUTO_FILL"
	EventElimination     EventType = "ELIMINATION"
	EventResolutionFinal EventType = "RESOLUTION_FINAL"
	EventParamClamped    EventType = "PARAM_CLAMPED"
	EventRoundSummary    EventType = "ROUND_SUMMARY"
)

// Event is a tagged record of something the engine did. Payloads are the
// concrete structs below; the host serializes and forwards them.
type Event struct {
	Type    EventType `json:"type"`
	TsMs    int64     `json:"ts_ms"`
	Payload any       `json:"payload"`
}

// OrderAccepted reports a LIMIT order admitted to a pool.
type OrderAccepted struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Outcome int    `json:"outcome_i"`
	Tick    int64  `json:"tick"`
}

// OrderRejected reports a recoverable per-order failure.
type OrderRejected struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// AutoFillReport is the payload of an AUTO_FILL event.
type AutoFillReport struct {
	Outcome int          `json:"outcome_i"`
	Side    Side         `json:"side"`
	Tick    int64        `json:"tick"`
	Delta   fixed.Amount `json:"delta"`
	Surplus fixed.Amount `json:"surplus"`
	// Rebates lists the (1-σ) surplus share per pool user, keyed by
	// user id, in lexicographic key order when serialized.
	Rebates map[string]fixed.Amount `json:"rebates"`
}

// EliminationReport is the payload of an ELIMINATION event. Refunds are
// the BUY escrow amounts released by canceling the eliminated binary's
// open limits; they are reported separately from face-value payouts so
// hosts that escrow at placement can post them against the right
// account.
type EliminationReport struct {
	Outcome int                     `json:"outcome_i"`
	PaidNo  fixed.Amount            `json:"paid_no"`
	Freed   fixed.Amount            `json:"freed"`
	Payouts map[string]fixed.Amount `json:"payouts"`
	Refunds map[string]fixed.Amount `json:"refunds"`
}

// RoundSummary is the payload of a ROUND_SUMMARY event after an
// intermediate resolution round.
type RoundSummary struct {
	Eliminated []int        `json:"eliminated"`
	TotalFreed fixed.Amount `json:"total_freed"`
	PreSumYes  fixed.Price  `json:"pre_sum_yes"`
	PostSumYes fixed.Price  `json:"post_sum_yes"`
	CappedYes  []int        `json:"capped_yes"`
}

// ResolutionFinal is the payload of a RESOLUTION_FINAL event. Refunds
// carry the BUY escrow released by canceling every open limit before
// payouts were computed.
type ResolutionFinal struct {
	Winner  int                     `json:"winner_i"`
	Payouts map[string]fixed.Amount `json:"payouts"`
	Refunds map[string]fixed.Amount `json:"refunds"`
}

// ParamClamped warns that a configured parameter was clamped before use.
type ParamClamped struct {
	Param      string       `json:"param"`
	Configured fixed.Amount `json:"configured"`
	Effective  fixed.Amount `json:"effective"`
}
