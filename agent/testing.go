// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

// MockAgentHTTP is an AgentHTTP implementation for HTTP server tests. A
// trigger for more than MaxWorkers workers is clamped; a Disabled mock
// rejects triggers. HealthErr is returned from ScalerHealth.
type MockAgentHTTP struct {
	Disabled   bool
	MaxWorkers int
	HealthErr  error
}

func (m *MockAgentHTTP) DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return metrics.MetricsSummary{
		Timestamp: "2020-11-17 00:17:50 +0000 UTC",
		Counters:  []metrics.SampledValue{},
		Gauges:    []metrics.GaugeValue{},
		Points:    []metrics.PointValue{},
		Samples:   []metrics.SampledValue{},
	}, nil
}

func (m *MockAgentHTTP) ScalerMetrics() scaler.MetricsSnapshot {
	if m.Disabled {
		return scaler.MetricsSnapshot{}
	}
	return scaler.MetricsSnapshot{
		Enabled:               true,
		QueueDepth:            5,
		ConsumerCount:         1,
		FleetRunning:          2,
		FleetPending:          1,
		ActiveWorkers:         3,
		ObservedAt:            time.Date(2020, 11, 17, 0, 17, 50, 0, time.UTC),
		LastScaleActionAt:     time.Date(2020, 11, 17, 0, 15, 0, 0, time.UTC),
		TotalJobsSubmitted:    3,
		LastActionDescription: "scaled up",
	}
}

func (m *MockAgentHTTP) ScalerHealth() error {
	return m.HealthErr
}

func (m *MockAgentHTTP) TriggerScale(_ context.Context, count int) ([]string, error) {
	if m.Disabled {
		return nil, scaler.ErrDisabled
	}
	if count < 1 {
		return nil, scaler.ErrInvalidCount
	}
	if m.MaxWorkers > 0 && count > m.MaxWorkers {
		count = m.MaxWorkers
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%d", i+1)
	}
	return ids, nil
}
