// Package server exposes the scoring engine over HTTP: conversion predictions
// with explanations, send-time recommendations, model info, health, and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"mailscore/internal/artifact"
	"mailscore/internal/explain"
	"mailscore/internal/predict"
	"mailscore/internal/schema"
)

// Server provides the HTTP API for the scoring engine.
type Server struct {
	scorer  *predict.Scorer
	planner *predict.Planner
	store   artifact.Store
	server  *http.Server
}

// PredictRequest represents the incoming prediction request.
type PredictRequest struct {
	Features  schema.FeatureVector `json:"features"`
	RequestID string               `json:"request_id,omitempty"`
}

// PredictResponse wraps the explanation with request bookkeeping.
type PredictResponse struct {
	explain.Explanation
	RequestID string    `json:"request_id,omitempty"`
	Latency   float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// SendTimeRequest selects the audience segment to plan for.
type SendTimeRequest struct {
	Industry  string `json:"industry"`
	Function  string `json:"function"`
	RequestID string `json:"request_id,omitempty"`
}

// SendTimeResponse is the recommended slot.
type SendTimeResponse struct {
	predict.Slot
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates the HTTP server for the given scorer and planner.
func New(scorer *predict.Scorer, planner *predict.Planner, store artifact.Store, port int, requestTimeout time.Duration) *Server {
	s := &Server{
		scorer:  scorer,
		planner: planner,
		store:   store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predict", s.handlePredict)
	mux.HandleFunc("/v1/send-time", s.handleSendTime)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	mux.Handle("/metrics", promhttp.Handler())

	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting scoring server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "features cannot be empty", http.StatusBadRequest)
		return
	}

	exp, err := s.scorer.ScoreEmail(req.Features)
	if err != nil {
		if errors.Is(err, schema.ErrNotReady) {
			http.Error(w, "no conversion model trained yet", http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Msg("prediction failed")
		http.Error(w, fmt.Sprintf("prediction failed: %v", err), http.StatusInternalServerError)
		return
	}

	resp := PredictResponse{
		Explanation: *exp,
		RequestID:   req.RequestID,
		Latency:     float64(time.Since(start).Milliseconds()),
		Timestamp:   time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSendTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	slot, err := s.planner.BestSendTime(req.Industry, req.Function)
	if err != nil {
		log.Error().Err(err).Msg("send time search failed")
		http.Error(w, fmt.Sprintf("send time search failed: %v", err), http.StatusInternalServerError)
		return
	}

	resp := SendTimeResponse{
		Slot:      slot,
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}

	status := http.StatusOK
	if _, err := s.store.ResolveLatest("conversion_predictor"); err != nil {
		health["status"] = "not_ready"
		health["detail"] = "no conversion model trained yet"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{}
	for _, prefix := range []string{"conversion_predictor", "send_time_optimizer"} {
		art, err := s.store.ResolveLatest(prefix)
		if err != nil {
			info[prefix] = nil
			continue
		}
		info[prefix] = map[string]any{
			"name":             art.Name,
			"version":          art.Version,
			"model_type":       art.ModelType,
			"created_at":       art.CreatedAt,
			"columns":          len(art.Schema),
			"training_samples": art.Metrics.TrainingSamples,
			"auc":              art.Metrics.AUC,
			"mae":              art.Metrics.MAE,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
