// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scaler

import (
	"fmt"
	"time"
)

// Action is the outcome of a single evaluation.
type Action int

const (
	// ActionNone means the evaluation did not request new workers.
	ActionNone Action = iota

	// ActionIdle means the queue is empty and no batch workers exist.
	ActionIdle

	// ActionScaleUp means ToAdd workers should be submitted.
	ActionScaleUp
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionScaleUp:
		return "scale_up"
	default:
		return "none"
	}
}

// Decision is the result of evaluating an observation against the scaling
// configuration.
type Decision struct {
	Action Action

	LocalWorkerActive      bool
	EffectiveThreshold     int
	EffectiveLocalCapacity int
	WorkersWanted          int
	CurrentFleet           int

	// ToAdd is the number of workers to submit. It is only positive when
	// Action is ActionScaleUp.
	ToAdd int

	// Reason explains the decision and is suitable for logging.
	Reason string
}

// Decide computes how many batch workers to add for the given observation.
// lastAction is the zero time when no scale action has happened yet.
func Decide(cfg Config, obs Observation, lastAction, now time.Time) Decision {
	d := Decision{
		LocalWorkerActive: obs.ConsumerCount > 0,
		CurrentFleet:      obs.CurrentFleet(),
	}

	// Without a local consumer nothing else drains the queue, so the lower
	// threshold applies and no local capacity is subtracted.
	if d.LocalWorkerActive {
		d.EffectiveThreshold = cfg.QueueThresholdWithLocalWorker
		d.EffectiveLocalCapacity = cfg.LocalWorkerConcurrency
	} else {
		d.EffectiveThreshold = cfg.QueueThresholdWithoutLocalWorker
	}

	if obs.QueueDepth < d.EffectiveThreshold {
		if obs.QueueDepth == 0 && d.CurrentFleet == 0 {
			d.Action = ActionIdle
			d.Reason = "idle: queue empty and no batch workers active"
			return d
		}
		d.Reason = fmt.Sprintf("queue depth %d below threshold %d", obs.QueueDepth, d.EffectiveThreshold)
		return d
	}

	if !lastAction.IsZero() && now.Sub(lastAction) < cfg.Cooldown {
		d.Reason = fmt.Sprintf("in cooldown for another %s", (cfg.Cooldown - now.Sub(lastAction)).Round(time.Second))
		return d
	}

	excess := obs.QueueDepth - d.EffectiveLocalCapacity
	if excess < 0 {
		excess = 0
	}
	d.WorkersWanted = ceilDiv(excess, cfg.BatchWorkerConcurrency)

	d.ToAdd = min(d.WorkersWanted-d.CurrentFleet, cfg.MaxWorkers-d.CurrentFleet)
	if d.ToAdd <= 0 {
		d.ToAdd = 0
		d.Reason = fmt.Sprintf("fleet of %d covers %d wanted workers (max %d)",
			d.CurrentFleet, d.WorkersWanted, cfg.MaxWorkers)
		return d
	}

	d.Action = ActionScaleUp
	d.Reason = fmt.Sprintf("queue depth %d needs %d workers, fleet has %d",
		obs.QueueDepth, d.WorkersWanted, d.CurrentFleet)
	return d
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
