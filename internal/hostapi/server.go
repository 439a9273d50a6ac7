// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package hostapi exposes the join gate to game server plugins over HTTP.
//
//	POST /v1/connect  {"username": "...", "address": "..."}
//	               -> {"allow": true|false, "reason": "..."}
//	GET  /healthz     -> {"status": "ok"}
//
// When a token is configured every /v1 request must carry it in the
// X-Joinguard-Token header.
package hostapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toeirei/joinguard/internal/gate"
	"github.com/toeirei/joinguard/internal/logging"
)

// TokenHeader carries the shared secret.
const TokenHeader = "X-Joinguard-Token"

// maxBodyBytes bounds connect requests; usernames and addresses are short.
const maxBodyBytes = 4 << 10

// Decider is the gate as seen by the HTTP layer.
type Decider interface {
	OnPlayerConnect(ctx context.Context, username, address string) gate.Decision
}

// ServerConfig configures the HTTP hook.
type ServerConfig struct {
	Listen          string
	Token           string
	ShutdownTimeout time.Duration
}

// Server serves the host hook.
type Server struct {
	cfg     ServerConfig
	decider Decider
	srv     *http.Server
}

type connectRequest struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

type connectResponse struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// NewServer creates the hook server.
func NewServer(cfg ServerConfig, decider Decider) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{cfg: cfg, decider: decider}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("POST /v1/connect", s.requireToken(http.HandlerFunc(s.handleConnect)))
	return mux
}

// Start listens on cfg.Listen and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	logging.Infof("hostapi: listening on %s", ln.Addr())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			got := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "username and address are required")
		return
	}

	d := s.decider.OnPlayerConnect(r.Context(), req.Username, req.Address)
	writeJSON(w, http.StatusOK, connectResponse{Allow: d.Allow, Reason: d.Reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
