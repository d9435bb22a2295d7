// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

// triggerTimeout bounds the submissions of a manual trigger. It leaves time
// within writeTimeout to write the response.
const triggerTimeout = writeTimeout - 5*time.Second

// ScalerTriggerRequest is the body of a manual trigger request.
type ScalerTriggerRequest struct {
	Count int
}

// ScalerTriggerResponse lists the IDs of the jobs submitted by a manual
// trigger. Failed submissions are not included.
type ScalerTriggerResponse struct {
	JobIDs []string
}

// getScalerMetrics is the HTTP handler returning the latest scaler snapshot.
func (s *Server) getScalerMetrics(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodGet {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}
	return s.agent.ScalerMetrics(), nil
}

// postScalerTrigger is the HTTP handler used to submit batch workers
// regardless of the current queue state.
func (s *Server) postScalerTrigger(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return nil, newCodedError(http.StatusMethodNotAllowed, errInvalidMethod)
	}

	var req ScalerTriggerRequest
	if err := codec.NewDecoder(r.Body, &codec.JsonHandle{}).Decode(&req); err != nil {
		return nil, newCodedError(http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
	}

	// Submissions stop at the deadline so the response, including any IDs
	// already submitted, is written before the server write timeout.
	ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
	defer cancel()

	ids, err := s.agent.TriggerScale(ctx, req.Count)
	switch {
	case errors.Is(err, scaler.ErrDisabled):
		return nil, wrapCodedError(http.StatusServiceUnavailable, err)
	case errors.Is(err, scaler.ErrInvalidCount):
		return nil, wrapCodedError(http.StatusBadRequest, err)
	case err != nil:
		return nil, err
	}

	if ids == nil {
		ids = []string{}
	}
	return ScalerTriggerResponse{JobIDs: ids}, nil
}
