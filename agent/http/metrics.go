// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsFormatJSON       = "json"
	metricsFormatPrometheus = "prometheus"
)

var (
	promHandler http.Handler
	promOnce    sync.Once
)

// getMetrics responds with the agent telemetry, including the scaler
// gauges and counters. The format query parameter selects JSON, the
// default, or Prometheus exposition format.
func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodGet {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", metricsFormatJSON:
		return s.agent.DisplayMetrics(w, r)

	case metricsFormatPrometheus:
		if !s.promEnabled {
			return nil, newCodedError(http.StatusUnsupportedMediaType, "Prometheus is not enabled")
		}
		s.prometheusHandler().ServeHTTP(w, r)
		return nil, nil

	default:
		return nil, newCodedError(http.StatusBadRequest,
			fmt.Sprintf("unsupported metrics format %q, must be %q or %q",
				format, metricsFormatJSON, metricsFormatPrometheus))
	}
}

// prometheusHandler returns the shared handler serving the default
// Prometheus gatherer, which the prometheus sink registers with.
func (s *Server) prometheusHandler() http.Handler {
	promOnce.Do(func() {
		promHandler = promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:           s.log.Named("prometheus_handler").StandardLogger(nil),
			ErrorHandling:      promhttp.ContinueOnError,
			DisableCompression: true,
		})
	})
	return promHandler
}
