package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/provider"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/scheduler"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Server exposes signals, risk assessments and pipeline health over HTTP,
// plus a push channel over WebSocket.
type Server struct {
	logger     *zap.Logger
	cfg        config.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub

	store     *store.Store
	scheduler *scheduler.Scheduler
	weights   *weights.Manager
	provider  provider.Provider
}

// NewServer wires the HTTP surface. The hub starts with the server.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, st *store.Store, sched *scheduler.Scheduler, wm *weights.Manager, prov provider.Provider) *Server {
	s := &Server{
		logger:    logger.Named("api"),
		cfg:       cfg,
		router:    mux.NewRouter(),
		hub:       NewHub(logger),
		store:     st,
		scheduler: sched,
		weights:   wm,
		provider:  prov,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	v1.HandleFunc("/signals/{id}", s.handleSignal).Methods(http.MethodGet)
	// Symbols are slash-delimited pairs, so the var pattern spans two
	// path segments.
	v1.HandleFunc("/risk/{symbol:[A-Z0-9]+/[A-Z0-9]+}/{timeframe}", s.handleRisk).Methods(http.MethodGet)
	v1.HandleFunc("/quote/{symbol:[A-Z0-9]+/[A-Z0-9]+}", s.handleQuote).Methods(http.MethodGet)
	v1.HandleFunc("/weights", s.handleWeights).Methods(http.MethodGet)
	v1.HandleFunc("/units", s.handleUnits).Methods(http.MethodGet)
	v1.HandleFunc("/feedback", s.handleFeedback).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Hub returns the WebSocket hub for signal push wiring.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and serves HTTP until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	go s.hub.Run()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("api server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts down the HTTP server and disconnects WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type healthResponse struct {
	Status    string            `json:"status"`
	Cycle     types.CycleHealth `json:"cycle"`
	WSClients int               `json:"wsClients"`
	Time      time.Time         `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.scheduler.Health()
	status := "ok"
	if health.Total > 0 && health.Errored == health.Total {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Cycle:     health,
		WSClients: s.hub.ClientCount(),
		Time:      time.Now().UTC(),
	})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	// Filter before limiting, so the limit counts matching signals.
	signals := s.store.RecentSignals(0)
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		filtered := signals[:0]
		for _, sig := range signals {
			if sig.Symbol == symbol {
				filtered = append(filtered, sig)
			}
		}
		signals = filtered
	}
	if len(signals) > limit {
		signals = signals[:limit]
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sig, ok := s.store.Signal(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "signal not found")
		return
	}
	s.writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ra, ok := s.store.RiskAssessment(vars["symbol"], types.Timeframe(vars["timeframe"]))
	if !ok {
		s.writeError(w, http.StatusNotFound, "no risk assessment for pair")
		return
	}
	s.writeJSON(w, http.StatusOK, ra)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	price, err := s.provider.LatestQuote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, provider.ErrUnknownSymbol) {
			s.writeError(w, http.StatusNotFound, "unknown symbol")
			return
		}
		s.logger.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "quote unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"price":  price,
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"weights": s.weights.Snapshot()})
}

type unitStatus struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
	State     types.UnitState `json:"state"`
	SignalID  string          `json:"signalId,omitempty"`
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	units := s.scheduler.Units()
	out := make([]unitStatus, 0, len(units))
	for _, u := range units {
		st := unitStatus{
			Symbol:    u.Symbol,
			Timeframe: u.Timeframe,
			State:     u.State(),
		}
		if sig := u.Signal(); sig != nil {
			st.SignalID = sig.ID
		}
		out = append(out, st)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"units": out})
}

type feedbackRequest struct {
	SignalID string  `json:"signalId"`
	Score    float64 `json:"score"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.SignalID == "" {
		s.writeError(w, http.StatusBadRequest, "signalId is required")
		return
	}
	if req.Score < 0 || req.Score > 1 {
		s.writeError(w, http.StatusBadRequest, "score must be within [0,1]")
		return
	}

	if err := s.scheduler.RecordTradeOutcome(req.SignalID, req.Score); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
