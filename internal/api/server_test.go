package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/api"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/confluence"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/indicators"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/metrics"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/montecarlo"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/patterns"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/provider"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/regime"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/scheduler"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/synthesizer"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/workers"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

var recorder = metrics.New()

type fixture struct {
	server *api.Server
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()

	st, err := store.New(logger, t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	wm := weights.NewManager(logger, cfg.Weights)
	scorer := confluence.NewScorer(logger, cfg.Confluence)
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("api-test"))
	prov := provider.NewSynthetic(logger)

	sched := scheduler.New(logger, cfg.Pipeline, scheduler.Deps{
		Provider:    prov,
		Indicators:  indicators.NewEngine(logger, cfg.Indicators),
		Regime:      regime.NewDetector(logger, cfg.Regime),
		Patterns:    patterns.NewDetector(logger),
		Synthesizer: synthesizer.New(logger, cfg.Synthesizer, cfg.Provider.MinBars, wm, scorer),
		Risk:        montecarlo.NewEngine(logger, cfg.MonteCarlo),
		Weights:     wm,
		Store:       st,
		Pool:        pool,
		Metrics:     recorder,
		MinBars:     cfg.Provider.MinBars,
	})

	return &fixture{
		server: api.NewServer(logger, cfg.Server, st, sched, wm, prov),
		store:  st,
	}
}

func seedSignal(t *testing.T, st *store.Store) *types.Signal {
	t.Helper()
	sig := &types.Signal{
		ID:           "sig-test",
		Symbol:       "BTC/USDT",
		Timeframe:    types.Timeframe1h,
		Direction:    types.DirectionLong,
		Confidence:   72,
		EntryPrice:   decimal.NewFromInt(50000),
		StopLoss:     decimal.NewFromInt(49000),
		TakeProfit:   decimal.NewFromInt(52000),
		Contributors: []string{types.IndicatorMACD},
		Timestamp:    time.Now().UTC(),
	}
	if err := st.SaveSignal(sig); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	return sig
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestGetSignals(t *testing.T) {
	f := newFixture(t)
	seedSignal(t, f.store)

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals?symbol=BTC/USDT", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Signals []*types.Signal `json:"signals"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Signals) != 1 || body.Signals[0].ID != "sig-test" {
		t.Fatalf("signals = %+v, want the seeded signal", body.Signals)
	}
}

func TestSignalLimitAppliesAfterSymbolFilter(t *testing.T) {
	f := newFixture(t)
	seedSignal(t, f.store)
	// A newer signal for another symbol must not push the BTC signal out
	// of a limit=1 query for BTC.
	if err := f.store.SaveSignal(&types.Signal{
		ID:         "sig-eth",
		Symbol:     "ETH/USDT",
		Timeframe:  types.Timeframe1h,
		Direction:  types.DirectionShort,
		EntryPrice: decimal.NewFromInt(3000),
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals?symbol=BTC/USDT&limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Signals []*types.Signal `json:"signals"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Signals) != 1 || body.Signals[0].ID != "sig-test" {
		t.Fatalf("signals = %+v, want exactly the BTC signal", body.Signals)
	}
}

func TestGetSignalByID(t *testing.T) {
	f := newFixture(t)
	seedSignal(t, f.store)

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals/sig-test", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing signal status = %d, want 404", rec.Code)
	}
}

func TestGetRisk(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SaveRiskAssessment(&types.RiskAssessment{
		SignalID:  "sig-test",
		Symbol:    "BTC/USDT",
		Timeframe: types.Timeframe1h,
		RiskLevel: types.RiskMedium,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveRiskAssessment: %v", err)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/risk/BTC/USDT/1h", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var ra types.RiskAssessment
	if err := json.NewDecoder(rec.Body).Decode(&ra); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ra.SignalID != "sig-test" || ra.RiskLevel != types.RiskMedium {
		t.Errorf("assessment = %+v, want the seeded one", ra)
	}

	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/risk/ETH/USDT/4h", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing assessment status = %d, want 404", rec.Code)
	}
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote/BTC/USDT", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Symbol != "BTC/USDT" || !body.Price.IsPositive() {
		t.Errorf("quote = %+v, want positive BTC/USDT price", body)
	}

	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote/NOPE/USDT", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown symbol status = %d, want 404", rec.Code)
	}
}

func TestFeedbackValidation(t *testing.T) {
	f := newFixture(t)
	seedSignal(t, f.store)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		f.server.Router().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json status = %d, want 400", rec.Code)
	}
	if rec := post(`{"signalId":"sig-test","score":1.5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range score status = %d, want 400", rec.Code)
	}
	if rec := post(`{"score":0.5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing signalId status = %d, want 400", rec.Code)
	}
	if rec := post(`{"signalId":"unknown","score":0.5}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown signal status = %d, want 404", rec.Code)
	}
	if rec := post(`{"signalId":"sig-test","score":0.8}`); rec.Code != http.StatusAccepted {
		t.Errorf("valid feedback status = %d, want 202", rec.Code)
	}
}

func TestWebSocketRejectsAfterShutdown(t *testing.T) {
	f := newFixture(t)
	f.server.Hub().Close()

	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// Refusing the upgrade outright is also an acceptable outcome.
		return
	}
	defer conn.Close()

	// The handler must close the connection instead of parking it on the
	// register channel of a hub that is no longer running.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection accepted after hub shutdown, want it closed")
	}
}

func TestGetWeightsAndUnits(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weights", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("weights status = %d, want 200", rec.Code)
	}
	var weightsBody struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&weightsBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(weightsBody.Weights) != len(types.AllIndicators()) {
		t.Errorf("got %d weights, want %d", len(weightsBody.Weights), len(types.AllIndicators()))
	}

	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/units", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("units status = %d, want 200", rec.Code)
	}
}
