// Package api exposes the key lookup HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apssouza22/keyfetch/internal/core/domain"
	"github.com/apssouza22/keyfetch/internal/retry"
)

// KeyLookup is the lookup operation the server fronts.
type KeyLookup interface {
	LookupKey(ctx context.Context, fp domain.Fingerprint) (*domain.PublicKey, error)
}

// Server provides the HTTP API: key lookups, health, and metrics.
type Server struct {
	lookup KeyLookup
	server *http.Server
	log    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(lookup KeyLookup, port int, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		lookup: lookup,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		log: log,
	}

	mux.HandleFunc("GET /v1/keys/{fingerprint}", s.handleKey)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	fp, err := domain.ParseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := s.lookup.LookupKey(r.Context(), fp)
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("key %s not found on any keyserver", fp))
	case isBudgetExhausted(err):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case err != nil:
		s.log.Warn("key lookup failed", "fingerprint", fp, "error", err)
		writeError(w, http.StatusBadGateway, "key lookup failed")
	default:
		writeJSON(w, http.StatusOK, key)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isBudgetExhausted(err error) bool {
	var be *retry.BudgetExhaustedError
	return errors.As(err, &be)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
