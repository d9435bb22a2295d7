// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-msgpack/codec"
	"github.com/reelcast/transcode-autoscaler/agent/config"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

const (
	healthRoutePattern        = "/v1/health"
	metricsRoutePattern       = "/v1/metrics"
	scalerMetricsRoutePattern = "/v1/scaler/metrics"
	scalerTriggerRoutePattern = "/v1/scaler/trigger"

	// healthAliveness tracks whether the HTTP server is serving. The health
	// endpoint also consults the scaler evaluation loop.
	healthAlivenessReady = iota
	healthAlivenessUnavailable
)

const (
	readTimeout = 5 * time.Second
	idleTimeout = 15 * time.Second

	// writeTimeout bounds a single response, including a manual trigger.
	writeTimeout = 30 * time.Second
)

// AgentHTTP is the interface that defines the HTTP handlers that an Agent
// must implement in order to be accessible through the HTTP API.
type AgentHTTP interface {
	// DisplayMetrics returns a summary of metrics collected by the agent.
	DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error)

	// ScalerMetrics returns the latest scaler snapshot.
	ScalerMetrics() scaler.MetricsSnapshot

	// ScalerHealth returns an error when an enabled scaler has stopped
	// completing evaluations.
	ScalerHealth() error

	// TriggerScale submits count batch workers, bypassing the scaling
	// thresholds and cooldown.
	TriggerScale(ctx context.Context, count int) ([]string, error)
}

// Server serves the agent HTTP API.
type Server struct {
	log hclog.Logger
	ln  net.Listener
	mux *http.ServeMux
	srv *http.Server

	promEnabled bool

	// aliveness is read and written atomically and holds one of the
	// healthAliveness values.
	aliveness int32

	agent AgentHTTP
}

// NewHTTPServer binds the listener for the agent HTTP API. Serving starts
// with Start.
func NewHTTPServer(debug, prom bool, cfg *config.HTTP, log hclog.Logger, agent AgentHTTP) (*Server, error) {
	srv := &Server{
		log:         log.Named("http_server"),
		mux:         http.NewServeMux(),
		agent:       agent,
		promEnabled: prom,
	}

	srv.mux.HandleFunc(healthRoutePattern, srv.wrap(srv.getHealth))
	srv.mux.HandleFunc(metricsRoutePattern, srv.wrap(srv.getMetrics))
	srv.mux.HandleFunc(scalerMetricsRoutePattern, srv.wrap(srv.getScalerMetrics))
	srv.mux.HandleFunc(scalerTriggerRoutePattern, srv.wrap(srv.postScalerTrigger))

	if debug {
		srv.mux.HandleFunc("/debug/pprof/", pprof.Index)
		srv.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		srv.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		srv.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		srv.mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv.srv = &http.Server{
		Addr:         net.JoinHostPort(cfg.BindAddress, fmt.Sprint(cfg.BindPort)),
		Handler:      srv.mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Binding here surfaces bad bind settings to the agent before it starts.
	ln, err := net.Listen("tcp", srv.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("could not setup HTTP listener: %v", err)
	}
	srv.ln = ln

	return srv, nil
}

// Start serves the API and blocks until the server is stopped or fails.
func (s *Server) Start() {
	s.log.Info("server now listening for connections", "address", s.Addr())

	atomic.StoreInt32(&s.aliveness, healthAlivenessReady)

	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		atomic.StoreInt32(&s.aliveness, healthAlivenessUnavailable)
		s.log.Error("failed to serve HTTP", "addr", s.Addr(), "error", err)
	}
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop shuts the server down, waiting up to writeTimeout for in-flight
// requests such as a manual trigger.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.aliveness, healthAlivenessUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.srv.SetKeepAlivesEnabled(false)

	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("could not gracefully shutdown HTTP server", "error", err)
	}
}

// wrap adapts an API handler to http.HandlerFunc. A returned object is
// encoded as JSON and a returned error is written by handleHTTPError.
func (s *Server) wrap(handler func(w http.ResponseWriter, r *http.Request) (interface{}, error)) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			s.log.Trace("request complete", "method", r.Method,
				"path", r.URL, "duration", time.Since(start))
		}()

		obj, err := handler(w, r)
		if err != nil {
			s.handleHTTPError(w, r, err)
			return
		}
		if obj == nil {
			return
		}

		var buf bytes.Buffer
		if err := codec.NewEncoder(&buf, &codec.JsonHandle{HTMLCharsAsIs: true}).Encode(obj); err != nil {
			s.handleHTTPError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}
}

// handleHTTPError writes err as a plain text response. The status code is
// taken from a codedError in the chain, defaulting to 500.
func (s *Server) handleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	errMsg := err.Error()

	w.WriteHeader(code)
	if _, wErr := w.Write([]byte(errMsg)); wErr != nil {
		s.log.Error("failed to write response error", "error", wErr)
	}
	s.log.Error("request failed", "method", r.Method, "path", r.URL, "error", errMsg, "code", code)
}
