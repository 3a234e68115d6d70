// Package scheduler drives the engine: it batches submitted orders on a
// fixed interval, persists each batch, feeds the ledger, fans events
// out, and serializes resolution rounds against the batch loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/internal/engine"
	"github.com/oddslab/marketcore/internal/ledger"
	"github.com/oddslab/marketcore/internal/storage"
	"github.com/oddslab/marketcore/internal/stream"
	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// SessionState is the host session lifecycle.
type SessionState string

// Session states. Orders are admitted in every state but only processed
// while RUNNING; RESOLVING blocks the batch loop for the duration of a
// round; FROZEN skips batches entirely.
const (
	StateRunning   SessionState = "RUNNING"
	StateResolving SessionState = "RESOLVING"
	StateFrozen    SessionState = "FROZEN"
)

// recentFillsKept bounds the in-memory fill tail served over the API.
const recentFillsKept = 512

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration
	Params   engine.EngineParams
	Logger   *zap.Logger
	Storage  storage.Storage
	Ledger   *ledger.Ledger
	Hub      *stream.Hub
}

// Scheduler owns the engine state between calls and serializes every
// engine invocation.
type Scheduler struct {
	cfg Config

	mu      sync.Mutex
	state   *engine.EngineState
	session SessionState
	inbox   []types.Order
	recent  []types.Fill
}

// New creates a scheduler around an existing engine state.
func New(cfg Config, state *engine.EngineState) (*Scheduler, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if state == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	return &Scheduler{
		cfg:     cfg,
		state:   state,
		session: StateRunning,
	}, nil
}

// Submit queues an order for the next batch. Orders are admitted in any
// session state; they stay OPEN until a RUNNING batch picks them up.
func (s *Scheduler) Submit(o types.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, o)
	OrdersQueuedGauge.Set(float64(len(s.inbox)))
}

// Status reports the session state.
func (s *Scheduler) Status() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Freeze stops batch processing; Unfreeze resumes it.
func (s *Scheduler) Freeze() {
	s.setSession(StateFrozen)
}

// Unfreeze resumes batch processing.
func (s *Scheduler) Unfreeze() {
	s.setSession(StateRunning)
}

func (s *Scheduler) setSession(next SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = next
	s.cfg.Logger.Info("session-state-changed", zap.String("state", string(next)))
}

// StateBlob serializes the current engine state.
func (s *Scheduler) StateBlob() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Serialize()
}

// RecentFills returns the tail of fills produced so far.
func (s *Scheduler) RecentFills() []types.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Fill, len(s.recent))
	copy(out, s.recent)
	return out
}

// Run drives the batch loop until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cfg.Logger.Info("scheduler-starting",
		zap.Duration("interval", s.cfg.Interval))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("scheduler-stopping")
			return nil
		case now := <-ticker.C:
			err := s.runBatch(ctx, now.UnixMilli())
			if err != nil {
				s.cfg.Logger.Error("batch-failed", zap.Error(err))
			}
		}
	}
}

// runBatch drains the inbox and applies it as one engine batch.
func (s *Scheduler) runBatch(ctx context.Context, tNowMs int64) error {
	s.mu.Lock()
	if s.session != StateRunning || len(s.inbox) == 0 {
		s.mu.Unlock()
		return nil
	}
	orders := s.inbox
	s.inbox = nil
	OrdersQueuedGauge.Set(0)

	start := time.Now()
	fills, events, err := engine.ApplyOrders(s.state, orders, s.cfg.Params, tNowMs)
	if err != nil {
		// Fatal engine errors leave the state at entry; the drained
		// orders are requeued for the next batch.
		s.inbox = append(orders, s.inbox...)
		s.mu.Unlock()
		return fmt.Errorf("apply orders: %w", err)
	}
	BatchDurationSeconds.Observe(time.Since(start).Seconds())
	BatchesTotal.Inc()

	blob, err := s.state.Serialize()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("serialize state: %w", err)
	}
	s.appendRecent(fills)
	s.mu.Unlock()

	batchID := uuid.New().String()
	err = s.cfg.Storage.SaveBatch(ctx, batchID, blob, fills, events)
	if err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	s.settle(fills, events)
	if s.cfg.Hub != nil {
		s.cfg.Hub.Broadcast(events)
	}

	s.cfg.Logger.Info("batch-applied",
		zap.String("batch-id", batchID),
		zap.Int("orders", len(orders)),
		zap.Int("fills", len(fills)),
		zap.Int("events", len(events)))
	return nil
}

// settle posts a batch's outcomes into the ledger.
func (s *Scheduler) settle(fills []types.Fill, events []types.Event) {
	for _, f := range fills {
		err := s.cfg.Ledger.ApplyFill(f)
		if err != nil {
			s.cfg.Logger.Error("ledger-fill-failed",
				zap.String("trade-id", f.TradeID),
				zap.Error(err))
		}
	}
	for _, e := range events {
		if e.Type != types.EventAutoFill {
			continue
		}
		report, ok := e.Payload.(types.AutoFillReport)
		if ok {
			s.cfg.Ledger.ApplyRebates(report.Rebates)
		}
	}
}

// Cancel withdraws a user's remaining limit interest from one pool and
// persists the updated state. The refund is collateral for BUY pools
// and tokens for SELL pools; the caller posts it to the user.
func (s *Scheduler) Cancel(ctx context.Context, outcome int, key engine.PoolKey, user string) (fixed.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.Clone()
	refund, err := work.CancelLimit(outcome, key, user)
	if err != nil {
		return 0, err
	}
	blob, err := work.Serialize()
	if err != nil {
		return 0, fmt.Errorf("serialize state: %w", err)
	}
	err = s.cfg.Storage.SaveBatch(ctx, uuid.New().String(), blob, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("persist cancel: %w", err)
	}
	s.state = work
	s.cfg.Logger.Info("limit-canceled",
		zap.String("user", user),
		zap.Int("outcome", outcome),
		zap.Int64("tick", key.Tick),
		zap.String("refund", refund.Format()))
	return refund, nil
}

// Resolve runs a resolution round. The batch loop is held in RESOLVING
// for the duration so a round never interleaves with a batch.
func (s *Scheduler) Resolve(ctx context.Context, mode engine.Resolution, tNowMs int64) (map[string]fixed.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.session
	s.session = StateResolving
	defer func() { s.session = prev }()

	payouts, events, err := engine.TriggerResolution(s.state, s.cfg.Params, mode, s.cfg.Ledger.Lookup, tNowMs)
	if err != nil {
		return nil, fmt.Errorf("trigger resolution: %w", err)
	}

	settled := mode.Eliminate
	if mode.Final {
		settled = allOutcomes(s.state.NOutcomes)
	}
	s.cfg.Ledger.ApplyPayouts(payouts, settled)

	blob, err := s.state.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	err = s.cfg.Storage.SaveBatch(ctx, uuid.New().String(), blob, nil, events)
	if err != nil {
		return nil, fmt.Errorf("persist resolution: %w", err)
	}
	if s.cfg.Hub != nil {
		s.cfg.Hub.Broadcast(events)
	}
	if mode.Final {
		s.session = StateFrozen
		prev = StateFrozen
	}
	return payouts, nil
}

// appendRecent keeps a bounded tail of fills for the API.
func (s *Scheduler) appendRecent(fills []types.Fill) {
	s.recent = append(s.recent, fills...)
	if len(s.recent) > recentFillsKept {
		s.recent = s.recent[len(s.recent)-recentFillsKept:]
	}
}

func allOutcomes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
