package engine

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// Wire form of the state blob. Field order is part of the contract; map
// keys serialize sorted, so round-tripping is bitwise idempotent. Pool
// tick keys encode as decimal strings with the sign bit carrying the
// opt-in flag: "-55" is the opt-in pool at tick 55.

type poolWire struct {
	Volume fixed.Amount            `json:"volume"`
	Shares map[string]fixed.Amount `json:"shares"`
}

type binaryWire struct {
	Outcome     int          `json:"outcome_i"`
	Active      bool         `json:"active"`
	V           fixed.Amount `json:"v"`
	Subsidy     fixed.Amount `json:"subsidy"`
	L           fixed.Amount `json:"l"`
	QYes        fixed.Amount `json:"q_yes"`
	QNo         fixed.Amount `json:"q_no"`
	VirtualYes  fixed.Amount `json:"virtual_yes"`
	Seigniorage fixed.Amount `json:"seigniorage"`

	// Pools is keyed by side+direction group, then by signed tick.
	Pools map[string]map[string]poolWire `json:"lob_pools"`
}

type stateWire struct {
	SchemaVersion  int          `json:"schema_version"`
	NOutcomes      int          `json:"n_outcomes"`
	Binaries       []binaryWire `json:"binaries"`
	PreSumYes      fixed.Price  `json:"pre_sum_yes"`
	SessionStartMs int64        `json:"session_start_ms"`
	RoundStartMs   int64        `json:"round_start_ms"`
	RoundsDone     int          `json:"rounds_done"`
	Seq            int64        `json:"seq"`
}

func poolGroup(side types.Side, isBuy bool) string {
	dir := "sell"
	if isBuy {
		dir = "buy"
	}
	if side == types.SideYes {
		return "yes_" + dir
	}
	return "no_" + dir
}

func parsePoolGroup(g string) (types.Side, bool, error) {
	switch g {
	case "yes_buy":
		return types.SideYes, true, nil
	case "yes_sell":
		return types.SideYes, false, nil
	case "no_buy":
		return types.SideNo, true, nil
	case "no_sell":
		return types.SideNo, false, nil
	}
	return "", false, fmt.Errorf("unknown pool group %q", g)
}

// Serialize renders the state as its canonical JSON blob.
func (st *EngineState) Serialize() ([]byte, error) {
	w := stateWire{
		SchemaVersion:  SchemaVersion,
		NOutcomes:      st.NOutcomes,
		Binaries:       make([]binaryWire, len(st.Binaries)),
		PreSumYes:      st.PreSumYes,
		SessionStartMs: st.SessionStartMs,
		RoundStartMs:   st.RoundStartMs,
		RoundsDone:     st.RoundsDone,
		Seq:            st.Seq,
	}
	for i, b := range st.Binaries {
		bw := binaryWire{
			Outcome:     b.Outcome,
			Active:      b.Active,
			V:           b.V,
			Subsidy:     b.Subsidy,
			L:           b.L,
			QYes:        b.QYes,
			QNo:         b.QNo,
			VirtualYes:  b.VirtualYes,
			Seigniorage: b.Seigniorage,
			Pools:       map[string]map[string]poolWire{},
		}
		for k, p := range b.Pools {
			group := poolGroup(k.Side, k.IsBuy)
			if bw.Pools[group] == nil {
				bw.Pools[group] = map[string]poolWire{}
			}
			tick := k.Tick
			if k.OptIn {
				tick = -tick
			}
			shares := make(map[string]fixed.Amount, len(p.Shares))
			for u, s := range p.Shares {
				shares[u] = s
			}
			bw.Pools[group][strconv.FormatInt(tick, 10)] = poolWire{Volume: p.Volume, Shares: shares}
		}
		w.Binaries[i] = bw
	}
	blob, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	return blob, nil
}

// Deserialize reconstructs a state from its canonical blob. Unknown
// schema versions are rejected.
func Deserialize(blob []byte) (*EngineState, error) {
	var w stateWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("deserialize state: %w", err)
	}
	if w.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("deserialize state: unsupported schema version %d", w.SchemaVersion)
	}
	st := &EngineState{
		NOutcomes:      w.NOutcomes,
		Binaries:       make([]*Binary, len(w.Binaries)),
		PreSumYes:      w.PreSumYes,
		SessionStartMs: w.SessionStartMs,
		RoundStartMs:   w.RoundStartMs,
		RoundsDone:     w.RoundsDone,
		Seq:            w.Seq,
	}
	for i, bw := range w.Binaries {
		b := &Binary{
			Outcome:     bw.Outcome,
			Active:      bw.Active,
			V:           bw.V,
			Subsidy:     bw.Subsidy,
			L:           bw.L,
			QYes:        bw.QYes,
			QNo:         bw.QNo,
			VirtualYes:  bw.VirtualYes,
			Seigniorage: bw.Seigniorage,
			Pools:       map[PoolKey]*Pool{},
		}
		for group, pools := range bw.Pools {
			side, isBuy, err := parsePoolGroup(group)
			if err != nil {
				return nil, fmt.Errorf("deserialize state: %w", err)
			}
			for tickStr, pw := range pools {
				tick, err := strconv.ParseInt(tickStr, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("deserialize state: pool tick %q: %w", tickStr, err)
				}
				key := PoolKey{Side: side, IsBuy: isBuy, Tick: tick, OptIn: tick < 0}
				if tick < 0 {
					key.Tick = -tick
				}
				shares := make(map[string]fixed.Amount, len(pw.Shares))
				for u, s := range pw.Shares {
					shares[u] = s
				}
				b.Pools[key] = &Pool{Volume: pw.Volume, Shares: shares}
			}
		}
		st.Binaries[i] = b
	}
	return st, nil
}
