// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/arrwarden/internal/services/monitor"
)

// StatusSource lists the monitors the server reports on.
type StatusSource interface {
	Statuses() []monitor.Status
}

type Server struct {
	server    *http.Server
	logger    zerolog.Logger
	collector *Collector
	statuses  StatusSource
	addr      string
}

func NewServer(collector *Collector, statuses StatusSource, host string, port int) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:    log.Logger.With().Str("module", "metrics").Logger(),
		collector: collector,
		statuses:  statuses,
		addr:      net.JoinHostPort(host, fmt.Sprint(port)),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Trace().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/monitors", s.handleMonitors)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMonitors(w http.ResponseWriter, _ *http.Request) {
	statuses := []monitor.Status{}
	if s.statuses != nil {
		statuses = append(statuses, s.statuses.Statuses()...)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode monitor statuses")
	}
}

// ListenAndServe blocks until the server stops. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting metrics server")
	s.server.Handler = s.Handler()
	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
