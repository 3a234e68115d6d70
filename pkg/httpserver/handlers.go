package httpserver

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/internal/engine"
	"github.com/oddslab/marketcore/internal/scheduler"
	"github.com/oddslab/marketcore/pkg/snapcache"
	"github.com/oddslab/marketcore/pkg/types"
)

const stateSnapshotKey = "state"

type apiHandler struct {
	sched  *scheduler.Scheduler
	cache  *snapcache.Cache
	logger *zap.Logger
}

func newAPIHandler(sched *scheduler.Scheduler, cache *snapcache.Cache, logger *zap.Logger) *apiHandler {
	return &apiHandler{sched: sched, cache: cache, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		h.logger.Error("write-response-failed", zap.Error(err))
	}
}

// handleSubmitOrder queues an order for the next batch. order_id and
// user_id are required and an order missing either is rejected; ts_ms
// defaults to the receive time so batch ordering follows arrival.
func (h *apiHandler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var order types.Order
	err := json.NewDecoder(r.Body).Decode(&order)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed order: " + err.Error()})
		return
	}
	if order.OrderID == "" || order.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order_id and user_id are required"})
		return
	}
	if order.TsMs == 0 {
		order.TsMs = time.Now().UnixMilli()
	}
	h.sched.Submit(order)
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"order_id": order.OrderID,
		"status":   "OPEN",
	})
}

// handleState serves the canonical state blob, cached between batches.
func (h *apiHandler) handleState(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if blob, ok := h.cache.Get(stateSnapshotKey); ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(blob)
			return
		}
	}
	blob, err := h.sched.StateBlob()
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if h.cache != nil {
		h.cache.Set(stateSnapshotKey, blob)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(blob)
}

// handleFills serves the recent fill tail.
func (h *apiHandler) handleFills(w http.ResponseWriter, r *http.Request) {
	fills := h.sched.RecentFills()
	if fills == nil {
		fills = []types.Fill{}
	}
	h.writeJSON(w, http.StatusOK, fills)
}

// handleStatus reports the session state.
func (h *apiHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"session": string(h.sched.Status()),
	})
}

// cancelRequest identifies one resting limit interest.
type cancelRequest struct {
	UserID  string `json:"user_id"`
	Outcome int    `json:"outcome_i"`
	Side    string `json:"side"`
	IsBuy   bool   `json:"is_buy"`
	Tick    int64  `json:"tick"`
	OptIn   bool   `json:"af_opt_in"`
}

// handleCancel withdraws a user's remaining share from a pool.
func (h *apiHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request: " + err.Error()})
		return
	}
	refund, err := h.sched.Cancel(r.Context(), req.Outcome, engine.PoolKey{
		Side:  types.Side(req.Side),
		IsBuy: req.IsBuy,
		Tick:  req.Tick,
		OptIn: req.OptIn,
	}, req.UserID)
	if err != nil {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(stateSnapshotKey)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "CANCELED",
		"refund": refund.String(),
	})
}

// resolveRequest is the admin resolution payload.
type resolveRequest struct {
	Final     bool  `json:"final"`
	Winner    int   `json:"winner_i"`
	Eliminate []int `json:"eliminate"`
}

// handleResolve triggers a resolution round.
func (h *apiHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request: " + err.Error()})
		return
	}

	payouts, err := h.sched.Resolve(r.Context(), engine.Resolution{
		Final:     req.Final,
		Winner:    req.Winner,
		Eliminate: req.Eliminate,
	}, time.Now().UnixMilli())
	if err != nil {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(stateSnapshotKey)
	}
	h.writeJSON(w, http.StatusOK, payouts)
}

func (h *apiHandler) handleFreeze(w http.ResponseWriter, r *http.Request) {
	h.sched.Freeze()
	h.handleStatus(w, r)
}

func (h *apiHandler) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.sched.Unfreeze()
	h.handleStatus(w, r)
}
