// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scaler

import (
	"context"
	"errors"
	"time"

	"github.com/reelcast/transcode-autoscaler/batch"
	"github.com/reelcast/transcode-autoscaler/broker"
)

var (
	// ErrDisabled is returned by operations which require the scaler to be
	// configured against a broker and compute backend.
	ErrDisabled = errors.New("scaler is not enabled")

	// ErrInvalidCount is returned when a manual trigger asks for fewer than
	// one worker.
	ErrInvalidCount = errors.New("worker count must be greater than zero")

	// ErrStalled is returned by Health when an enabled engine has not
	// completed an evaluation within two evaluation intervals.
	ErrStalled = errors.New("scaler evaluation loop stalled")
)

// QueueProber reads the depth and consumer count of the job queue.
type QueueProber interface {
	Probe(ctx context.Context) (broker.QueueStats, error)
}

// FleetInspector reads the number of running and pending batch workers.
type FleetInspector interface {
	Inspect(ctx context.Context) (batch.FleetStats, error)
}

// Submitter provisions a single batch worker and returns its job ID.
type Submitter interface {
	Submit(ctx context.Context, concurrency, queueDepth int) (string, error)
}

// Config holds the scaling parameters. It is read-only once the engine has
// been created.
type Config struct {

	// EvaluationInterval is the time between two scheduled evaluations.
	EvaluationInterval time.Duration

	// Cooldown is the minimum time between two scale up actions.
	Cooldown time.Duration

	// QueueThresholdWithLocalWorker is the queue depth which must be reached
	// before scaling while the local worker is consuming.
	QueueThresholdWithLocalWorker int

	// QueueThresholdWithoutLocalWorker is the queue depth which must be
	// reached before scaling while no local worker is consuming.
	QueueThresholdWithoutLocalWorker int

	// LocalWorkerConcurrency is the number of jobs the local worker processes
	// in parallel.
	LocalWorkerConcurrency int

	// BatchWorkerConcurrency is the number of jobs a single batch worker
	// processes in parallel.
	BatchWorkerConcurrency int

	// MaxWorkers is the hard cap on running plus pending batch workers.
	MaxWorkers int

	// DryRun is set when the submitter does not create real jobs. Dry run
	// submissions are not counted in TotalJobsSubmitted.
	DryRun bool
}

// Observation is a single reading of queue and fleet state.
type Observation struct {
	QueueDepth    int
	ConsumerCount int
	FleetRunning  int
	FleetPending  int
	ObservedAt    time.Time
}

// CurrentFleet is the number of batch workers running or waiting to start.
func (o Observation) CurrentFleet() int {
	return o.FleetRunning + o.FleetPending
}

// State is the mutable scaling state. It is only modified while holding the
// engine write lock.
type State struct {

	// LastScaleActionAt is the time of the last scale up attempt. The zero
	// value means no action has been taken since start.
	LastScaleActionAt time.Time

	// TotalJobsSubmitted counts successful job submissions.
	TotalJobsSubmitted uint64

	// LastActionDescription is a human readable summary of the last action.
	LastActionDescription string
}

// MetricsSnapshot is an immutable view of the last observation and the
// scaling state.
type MetricsSnapshot struct {
	Enabled bool

	QueueDepth    int
	ConsumerCount int
	FleetRunning  int
	FleetPending  int
	ActiveWorkers int
	ObservedAt    time.Time

	LastScaleActionAt     time.Time
	TotalJobsSubmitted    uint64
	LastActionDescription string
}

func newMetricsSnapshot(enabled bool, obs Observation, state State) MetricsSnapshot {
	return MetricsSnapshot{
		Enabled:               enabled,
		QueueDepth:            obs.QueueDepth,
		ConsumerCount:         obs.ConsumerCount,
		FleetRunning:          obs.FleetRunning,
		FleetPending:          obs.FleetPending,
		ActiveWorkers:         obs.CurrentFleet(),
		ObservedAt:            obs.ObservedAt,
		LastScaleActionAt:     state.LastScaleActionAt,
		TotalJobsSubmitted:    state.TotalJobsSubmitted,
		LastActionDescription: state.LastActionDescription,
	}
}

func (m MetricsSnapshot) observation() Observation {
	return Observation{
		QueueDepth:    m.QueueDepth,
		ConsumerCount: m.ConsumerCount,
		FleetRunning:  m.FleetRunning,
		FleetPending:  m.FleetPending,
		ObservedAt:    m.ObservedAt,
	}
}

func (m MetricsSnapshot) state() State {
	return State{
		LastScaleActionAt:     m.LastScaleActionAt,
		TotalJobsSubmitted:    m.TotalJobsSubmitted,
		LastActionDescription: m.LastActionDescription,
	}
}
