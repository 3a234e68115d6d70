package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oddslab/marketcore/internal/engine"
	"github.com/oddslab/marketcore/internal/ledger"
	"github.com/oddslab/marketcore/internal/scheduler"
	"github.com/oddslab/marketcore/internal/storage"
	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/healthprobe"
)

func testEngineParams() engine.EngineParams {
	return engine.EngineParams{
		NOutcomes: 3,
		Z:         fixed.AmountFromInt(10_000),
		Gamma:     100,
		Q0:        fixed.Amount(1_666_666_666),
		Fee:       10_000,
		PMax:      9_900,
		PMin:      100,
		Eta:       2,
		TickSize:  100,
		CMEnabled: true,
		AFEnabled: true,
		MREnabled: true,
		VCEnabled: true,
		FMatch:    5_000,
		Sigma:     500_000,
		AFCapFrac: 500_000, AFMaxPools: 8, AFMaxSurplus: 250_000,
		ResSchedule: []int{1, 1},
		Interp:      engine.InterpContinue,
		Zeta:        engine.Ramp{Start: 100_000, End: 100_000},
		Mu:          engine.Ramp{Start: fixed.One, End: fixed.One},
		Nu:          engine.Ramp{Start: fixed.One, End: fixed.One},
		Kappa:       engine.Ramp{Start: 1_000, End: 1_000},
	}
}

func newTestHandler(t *testing.T) *apiHandler {
	t.Helper()
	params := testEngineParams()
	state, err := engine.Init(params, 0)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	sched, err := scheduler.New(scheduler.Config{
		Interval: time.Second,
		Params:   params,
		Logger:   logger,
		Storage:  storage.NewConsoleStorage(logger),
		Ledger:   ledger.New(logger),
	}, state)
	require.NoError(t, err)
	return newAPIHandler(sched, nil, logger)
}

func TestSubmitOrderQueues(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	body := `{"order_id":"o1","user_id":"alice","outcome_i":0,"side":"YES","kind":"MARKET","is_buy":true,"size":"100000000","ts_ms":5}`

	rec := httptest.NewRecorder()
	h.handleSubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OPEN", resp["status"])
}

func TestSubmitOrderRequiresIdentity(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.handleSubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"size":"1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderRejectsGarbage(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.handleSubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateEndpointServesCanonicalBlob(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.handleState(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	st, err := engine.Deserialize(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, st.NOutcomes)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RUNNING", resp["session"])
}

func TestResolveEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	body := `{"final":false,"eliminate":[2]}`
	rec := httptest.NewRecorder()
	h.handleResolve(rec, httptest.NewRequest(http.MethodPost, "/api/admin/resolve", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second elimination of the same outcome conflicts.
	rec = httptest.NewRecorder()
	h.handleResolve(rec, httptest.NewRequest(http.MethodPost, "/api/admin/resolve", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelEndpointConflictsWithoutPool(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	body := `{"user_id":"alice","outcome_i":0,"side":"YES","is_buy":true,"tick":55}`
	rec := httptest.NewRecorder()
	h.handleCancel(rec, httptest.NewRequest(http.MethodPost, "/api/orders/cancel", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFillsEndpointEmpty(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.handleFills(rec, httptest.NewRequest(http.MethodGet, "/api/fills", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	hc := healthprobe.New()
	hc.SetReady(true)
	srv := New(&Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: hc,
	})
	require.NotNil(t, srv)
}
