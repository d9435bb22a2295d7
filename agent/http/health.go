// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"net/http"
	"sync/atomic"
)

const (
	healthStatusOK      = "ok"
	healthStatusStalled = "stalled"
)

// HealthResponse is the body of a successful health check.
type HealthResponse struct {
	Server string
	Scaler string
}

// getHealth reports healthy while the server is serving and the scaler
// evaluation loop is completing evaluations. A disabled scaler is healthy.
func (s *Server) getHealth(_ http.ResponseWriter, r *http.Request) (interface{}, error) {

	// Only allow GET requests on this endpoint.
	if r.Method != http.MethodGet {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}

	if atomic.LoadInt32(&s.aliveness) != healthAlivenessReady {
		return nil, newCodedError(http.StatusServiceUnavailable, "Service unavailable")
	}

	if err := s.agent.ScalerHealth(); err != nil {
		s.log.Warn("health check failed", "scaler", healthStatusStalled, "error", err)
		return nil, wrapCodedError(http.StatusServiceUnavailable, err)
	}

	return HealthResponse{Server: healthStatusOK, Scaler: healthStatusOK}, nil
}
