// Package engine implements the deterministic market-state machine for a
// multi-outcome prediction market: N independent YES/NO binaries priced
// by a parametric AMM with cross-outcome coupling, tick-quantized limit
// pools with cross-matching and auto-filling, and phased multi-round
// resolution. The engine is a pure library: it never reads a clock,
// never logs, and never performs I/O. Hosts drive it through ApplyOrders
// and TriggerResolution.
package engine

import (
	"fmt"

	"github.com/oddslab/marketcore/pkg/fixed"
)

// InterpMode selects the time base for tunable interpolation.
type InterpMode string

// Interpolation modes. RESET restarts the ramp at every resolution round
// when multi-resolution is enabled; CONTINUE keeps the session clock.
const (
	InterpReset    InterpMode = "RESET"
	InterpContinue InterpMode = "CONTINUE"
)

// Ramp is a tunable that moves linearly from Start to End over the
// interpolation window.
type Ramp struct {
	Start fixed.Amount `json:"start"`
	End   fixed.Amount `json:"end"`
}

// at returns the ramp value at elapsed/total, clamped to [Start, End].
func (r Ramp) at(elapsedMs, totalMs int64) fixed.Amount {
	if totalMs <= 0 || elapsedMs >= totalMs {
		return r.End
	}
	if elapsedMs <= 0 {
		return r.Start
	}
	span := int64(r.End - r.Start)
	off, err := fixed.MulDiv(span, elapsedMs, totalMs)
	if err != nil {
		return r.End
	}
	return r.Start + fixed.Amount(off)
}

// EngineParams are the static and ramped tunables of one market session.
// Fractions (gamma, fee, zeta, mu, nu, kappa, sigma, caps) are carried
// at amount scale: 1.0 == fixed.One.
type EngineParams struct {
	NOutcomes int          `json:"n_outcomes"`
	Z         fixed.Amount `json:"z"`
	Gamma     fixed.Amount `json:"gamma"`
	Q0        fixed.Amount `json:"q0"`
	Fee       fixed.Amount `json:"f"`
	PMax      fixed.Price  `json:"p_max"`
	PMin      fixed.Price  `json:"p_min"`
	Eta       int          `json:"eta"`
	TickSize  fixed.Price  `json:"tick_size"`

	CMEnabled  bool         `json:"cm_enabled"`
	AFEnabled  bool         `json:"af_enabled"`
	MREnabled  bool         `json:"mr_enabled"`
	VCEnabled  bool         `json:"vc_enabled"`
	VirtualCap fixed.Amount `json:"virtual_cap"`

	FMatch fixed.Amount `json:"f_match"`

	Sigma        fixed.Amount `json:"sigma"`
	AFCapFrac    fixed.Amount `json:"af_cap_frac"`
	AFMaxPools   int          `json:"af_max_pools"`
	AFMaxSurplus fixed.Amount `json:"af_max_surplus"`

	ResSchedule []int      `json:"res_schedule"`
	Interp      InterpMode `json:"interpolation_mode"`

	Zeta  Ramp `json:"zeta"`
	Mu    Ramp `json:"mu"`
	Nu    Ramp `json:"nu"`
	Kappa Ramp `json:"kappa"`

	// InterpDurationMs is the total ramp window T.
	InterpDurationMs int64 `json:"interp_duration_ms"`
}

// Validate checks the static parameter ranges.
func (p *EngineParams) Validate() error {
	if p.NOutcomes < 3 || p.NOutcomes > 10 {
		return fmt.Errorf("n_outcomes must be in [3,10], got %d", p.NOutcomes)
	}
	if p.Z <= 0 {
		return fmt.Errorf("z must be positive, got %s", p.Z)
	}
	if p.Gamma <= 0 || p.Gamma > 1000 {
		return fmt.Errorf("gamma must be in (0, 0.001], got %s", p.Gamma)
	}
	if p.Q0 <= 0 {
		return fmt.Errorf("q0 must be positive, got %s", p.Q0)
	}
	if p.Fee < 0 || p.Fee >= 50_000 {
		return fmt.Errorf("f must be in [0, 0.05), got %s", p.Fee)
	}
	if p.PMax <= fixed.Price(fixed.PriceScale/2) || p.PMax >= fixed.Price(fixed.PriceScale) {
		return fmt.Errorf("p_max must be in (0.5, 1), got %s", p.PMax)
	}
	if p.PMin <= 0 || p.PMin >= fixed.Price(fixed.PriceScale/2) {
		return fmt.Errorf("p_min must be in (0, 0.5), got %s", p.PMin)
	}
	if p.Eta < 1 {
		return fmt.Errorf("eta must be >= 1, got %d", p.Eta)
	}
	if p.TickSize <= 0 {
		return fmt.Errorf("tick_size must be positive, got %s", p.TickSize)
	}
	if p.FMatch < 0 || p.FMatch >= 20_000 {
		return fmt.Errorf("f_match must be in [0, 0.02), got %s", p.FMatch)
	}
	if p.Sigma < 0 || p.Sigma > fixed.One {
		return fmt.Errorf("sigma must be in [0, 1], got %s", p.Sigma)
	}
	if p.AFCapFrac < 0 {
		return fmt.Errorf("af_cap_frac must be non-negative, got %s", p.AFCapFrac)
	}
	if p.AFMaxPools < 0 {
		return fmt.Errorf("af_max_pools must be non-negative, got %d", p.AFMaxPools)
	}
	if p.AFMaxSurplus < 0 {
		return fmt.Errorf("af_max_surplus must be non-negative, got %s", p.AFMaxSurplus)
	}
	if p.VCEnabled && p.VirtualCap < 0 {
		return fmt.Errorf("virtual_cap must be non-negative, got %s", p.VirtualCap)
	}
	if p.MREnabled {
		sum := 0
		for _, k := range p.ResSchedule {
			if k <= 0 {
				return fmt.Errorf("res_schedule entries must be positive, got %d", k)
			}
			sum += k
		}
		if sum != p.NOutcomes-1 {
			return fmt.Errorf("res_schedule must sum to n_outcomes-1, got %d", sum)
		}
	}
	if p.Interp != InterpReset && p.Interp != InterpContinue {
		return fmt.Errorf("interpolation_mode must be RESET or CONTINUE, got %q", p.Interp)
	}
	if p.InterpDurationMs < 0 {
		return fmt.Errorf("interp_duration_ms must be non-negative, got %d", p.InterpDurationMs)
	}

	// The initial price q0/(Z/N) must land strictly inside (p_min, p_max).
	subsidy := fixed.Amount(int64(p.Z) / int64(p.NOutcomes))
	bound, err := p.PMax.ToAmount().Mul(subsidy)
	if err != nil {
		return fmt.Errorf("validate q0 bound: %w", err)
	}
	if p.Q0 >= bound {
		return fmt.Errorf("q0 must be below p_max*z/n, got %s >= %s", p.Q0, bound)
	}
	low, err := p.PMin.ToAmount().Mul(subsidy)
	if err != nil {
		return fmt.Errorf("validate q0 bound: %w", err)
	}
	if p.Q0 <= low {
		return fmt.Errorf("q0 must be above p_min*z/n, got %s <= %s", p.Q0, low)
	}
	return nil
}

// minRetention is the smallest admissible local retention f_i; the
// configured zeta is clamped so f_i never reaches zero.
const minRetention = fixed.Amount(1000) // 0.001

// Tuned is the interpolated parameter view for one batch: the ramp
// values at t plus the local retention fraction derived from the
// (possibly clamped) cross-coupling.
type Tuned struct {
	Zeta  fixed.Amount
	Mu    fixed.Amount
	Nu    fixed.Amount
	Kappa fixed.Amount

	// FLocal = 1 - (nActive-1)*zeta, strictly positive.
	FLocal fixed.Amount

	// ZetaConfigured is the pre-clamp ramp value; ZetaClamped reports
	// whether clamping occurred.
	ZetaConfigured fixed.Amount
	ZetaClamped    bool
}

// TunedAt computes the interpolated view for a batch at tNowMs given the
// active-outcome count. startMs is the session or round start depending
// on the interpolation mode.
func (p *EngineParams) TunedAt(tNowMs, startMs int64, nActive int) Tuned {
	elapsed := tNowMs - startMs
	tu := Tuned{
		Zeta:  p.Zeta.at(elapsed, p.InterpDurationMs),
		Mu:    p.Mu.at(elapsed, p.InterpDurationMs),
		Nu:    p.Nu.at(elapsed, p.InterpDurationMs),
		Kappa: p.Kappa.at(elapsed, p.InterpDurationMs),
	}
	tu.ZetaConfigured = tu.Zeta

	others := int64(nActive - 1)
	if others > 0 {
		maxZeta := (fixed.One - minRetention) / fixed.Amount(others)
		if tu.Zeta > maxZeta {
			tu.Zeta = maxZeta
			tu.ZetaClamped = true
		}
	}
	if tu.Zeta < 0 {
		tu.Zeta = 0
	}
	tu.FLocal = fixed.One - fixed.Amount(others)*tu.Zeta
	return tu
}

// startMsFor picks the interpolation origin for a state.
func (p *EngineParams) startMsFor(st *EngineState) int64 {
	if p.Interp == InterpReset && p.MREnabled {
		return st.RoundStartMs
	}
	return st.SessionStartMs
}
