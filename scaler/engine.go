// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	hclog "github.com/hashicorp/go-hclog"
)

// nowFunc is the clock used by the engine; tests replace it.
var nowFunc = time.Now

// Dependencies are the external collaborators of an enabled engine.
type Dependencies struct {
	Queue     QueueProber
	Fleet     FleetInspector
	Submitter Submitter
}

// Engine evaluates the job queue and provisions batch workers when the
// backlog exceeds available capacity. Scheduled evaluations and manual
// triggers are the only writers of the scaling state and are serialized by
// writeLock.
type Engine struct {
	log     hclog.Logger
	cfg     Config
	enabled bool

	queue     QueueProber
	fleet     FleetInspector
	submitter Submitter

	writeLock sync.Mutex

	snapshotLock  sync.RWMutex
	snapshot      MetricsSnapshot
	startedAt     time.Time
	lastEvaluated time.Time
}

// NewEngine returns an enabled engine using the passed collaborators.
func NewEngine(cfg Config, deps Dependencies, log hclog.Logger) *Engine {
	return &Engine{
		log:       log.Named("scaler"),
		cfg:       cfg,
		enabled:   true,
		queue:     deps.Queue,
		fleet:     deps.Fleet,
		submitter: deps.Submitter,
		snapshot:  MetricsSnapshot{Enabled: true},
	}
}

// NewDisabledEngine returns an engine which never evaluates and only answers
// metrics requests.
func NewDisabledEngine(cfg Config, log hclog.Logger) *Engine {
	return &Engine{
		log: log.Named("scaler"),
		cfg: cfg,
	}
}

// Enabled reports whether the engine is able to scale.
func (e *Engine) Enabled() bool { return e.enabled }

// Run evaluates immediately and then on every evaluation interval until the
// context is canceled.
func (e *Engine) Run(ctx context.Context) {
	if !e.enabled {
		e.log.Info("scaler disabled, not starting evaluation loop")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(e.cfg.EvaluationInterval)
	defer ticker.Stop()

	e.snapshotLock.Lock()
	e.startedAt = nowFunc()
	e.snapshotLock.Unlock()

	e.log.Info("starting evaluation loop", "interval", e.cfg.EvaluationInterval,
		"cooldown", e.cfg.Cooldown, "max_workers", e.cfg.MaxWorkers)

	e.tryTick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("context closed, shutting down evaluation loop")
			return
		case <-ticker.C:
			e.tryTick(ctx)
		}
	}
}

// tryTick runs an evaluation unless another writer holds the lock, in which
// case the evaluation is skipped rather than queued.
func (e *Engine) tryTick(ctx context.Context) bool {
	if !e.writeLock.TryLock() {
		e.log.Debug("skipping evaluation, previous evaluation still running")
		metrics.IncrCounter([]string{"scaler", "evaluate", "skipped_count"}, 1)
		return false
	}
	defer e.writeLock.Unlock()

	e.tick(ctx)
	return true
}

// Tick runs a single evaluation, waiting for any in-flight writer to finish.
func (e *Engine) Tick(ctx context.Context) error {
	if !e.enabled {
		return ErrDisabled
	}

	e.writeLock.Lock()
	defer e.writeLock.Unlock()

	e.tick(ctx)
	return nil
}

func (e *Engine) tick(ctx context.Context) {
	defer metrics.MeasureSince([]string{"scaler", "evaluate_ms"}, time.Now())

	now := nowFunc()
	obs := e.observe(ctx, now)
	state := e.Metrics().state()

	decision := Decide(e.cfg, obs, state.LastScaleActionAt, now)

	e.log.Debug("evaluated queue", "action", decision.Action, "queue_depth", obs.QueueDepth,
		"consumers", obs.ConsumerCount, "fleet_running", obs.FleetRunning,
		"fleet_pending", obs.FleetPending, "threshold", decision.EffectiveThreshold,
		"workers_wanted", decision.WorkersWanted, "reason", decision.Reason)

	switch decision.Action {
	case ActionIdle:
		state.LastActionDescription = decision.Reason

	case ActionScaleUp:
		e.log.Info("scaling up batch workers", "count", decision.ToAdd, "reason", decision.Reason)

		// The cooldown bounds the attempt rate, so it starts regardless of
		// how many submissions succeed.
		state.LastScaleActionAt = now
		ids := e.submitN(ctx, decision.ToAdd, obs.QueueDepth, &state)
		state.LastActionDescription = fmt.Sprintf(
			"scaled up at %s: submitted %d of %d worker(s) for queue depth %d (fleet %d, max %d)",
			now.UTC().Format(time.RFC3339), len(ids), decision.ToAdd, obs.QueueDepth,
			decision.CurrentFleet, e.cfg.MaxWorkers)
	}

	e.publish(newMetricsSnapshot(true, obs, state))

	e.snapshotLock.Lock()
	e.lastEvaluated = nowFunc()
	e.snapshotLock.Unlock()
}

// Health returns ErrStalled when the evaluation loop of an enabled engine
// has not completed an evaluation within two evaluation intervals of the
// last one, or of its start. A disabled or not yet started engine is healthy.
func (e *Engine) Health() error {
	if !e.enabled {
		return nil
	}

	e.snapshotLock.RLock()
	last := e.lastEvaluated
	if last.IsZero() {
		last = e.startedAt
	}
	e.snapshotLock.RUnlock()

	if last.IsZero() {
		return nil
	}

	if since := nowFunc().Sub(last); since > 2*e.cfg.EvaluationInterval {
		return fmt.Errorf("%w: last evaluation completed %s ago", ErrStalled, since.Round(time.Second))
	}
	return nil
}

// observe reads the queue and fleet. Failures are logged and the affected
// values default to zero.
func (e *Engine) observe(ctx context.Context, now time.Time) Observation {
	obs := Observation{ObservedAt: now}

	qs, err := e.queue.Probe(ctx)
	if err != nil {
		e.log.Warn("failed to probe job queue, assuming empty", "error", err)
		metrics.IncrCounter([]string{"scaler", "probe", "error_count"}, 1)
	}
	obs.QueueDepth = qs.Depth
	obs.ConsumerCount = qs.Consumers

	fs, err := e.fleet.Inspect(ctx)
	if err != nil {
		e.log.Warn("failed to inspect batch fleet, assuming empty", "error", err)
		metrics.IncrCounter([]string{"scaler", "inspect", "error_count"}, 1)
	}
	obs.FleetRunning = fs.Running
	obs.FleetPending = fs.Pending

	metrics.SetGauge([]string{"scaler", "queue", "depth"}, float32(obs.QueueDepth))
	metrics.SetGauge([]string{"scaler", "queue", "consumers"}, float32(obs.ConsumerCount))
	metrics.SetGauge([]string{"scaler", "fleet", "running"}, float32(obs.FleetRunning))
	metrics.SetGauge([]string{"scaler", "fleet", "pending"}, float32(obs.FleetPending))

	return obs
}

// submitN submits n workers sequentially. A failed submission is logged and
// does not stop the remaining ones. The successful job IDs are returned.
func (e *Engine) submitN(ctx context.Context, n, queueDepth int, state *State) []string {
	ids := make([]string, 0, n)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			e.log.Warn("context closed, abandoning remaining submissions", "remaining", n-i)
			break
		}

		id, err := e.submitter.Submit(ctx, e.cfg.BatchWorkerConcurrency, queueDepth)
		if err != nil {
			e.log.Error("failed to submit batch worker", "attempt", i+1, "total", n, "error", err)
			metrics.IncrCounter([]string{"scaler", "submit", "error_count"}, 1)
			continue
		}

		ids = append(ids, id)

		if e.cfg.DryRun {
			metrics.IncrCounter([]string{"scaler", "submit", "dry_run_count"}, 1)
			e.log.Info("dry run, batch worker not submitted", "job_id", id)
			continue
		}

		state.TotalJobsSubmitted++
		metrics.IncrCounter([]string{"scaler", "submit", "success_count"}, 1)
		e.log.Info("submitted batch worker", "job_id", id)
	}

	return ids
}

// Trigger submits count workers outside of the evaluation loop. The count is
// clamped to the configured maximum; thresholds and cooldown are not checked.
func (e *Engine) Trigger(ctx context.Context, count int) ([]string, error) {
	if !e.enabled {
		return nil, ErrDisabled
	}
	if count < 1 {
		return nil, ErrInvalidCount
	}
	if count > e.cfg.MaxWorkers {
		e.log.Info("clamping manual trigger to max workers", "requested", count, "max", e.cfg.MaxWorkers)
		count = e.cfg.MaxWorkers
	}

	e.writeLock.Lock()
	defer e.writeLock.Unlock()

	now := nowFunc()
	current := e.Metrics()
	state := current.state()

	e.log.Info("manually triggering batch workers", "count", count)

	state.LastScaleActionAt = now
	ids := e.submitN(ctx, count, current.QueueDepth, &state)
	state.LastActionDescription = fmt.Sprintf(
		"manual trigger at %s: submitted %d of %d worker(s)",
		now.UTC().Format(time.RFC3339), len(ids), count)

	e.publish(newMetricsSnapshot(true, current.observation(), state))
	return ids, nil
}

// Metrics returns the last published snapshot.
func (e *Engine) Metrics() MetricsSnapshot {
	e.snapshotLock.RLock()
	defer e.snapshotLock.RUnlock()

	return e.snapshot
}

func (e *Engine) publish(s MetricsSnapshot) {
	e.snapshotLock.Lock()
	defer e.snapshotLock.Unlock()

	e.snapshot = s
}
