// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scaler

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func defaultTestConfig() Config {
	return Config{
		EvaluationInterval:               30 * time.Second,
		Cooldown:                         120 * time.Second,
		QueueThresholdWithLocalWorker:    2,
		QueueThresholdWithoutLocalWorker: 1,
		LocalWorkerConcurrency:           1,
		BatchWorkerConcurrency:           2,
		MaxWorkers:                       10,
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		obs        Observation
		lastAction time.Time
		expAction  Action
		expToAdd   int
		expWanted  int
		expThresh  int
	}{
		{
			name:      "backlog with local worker",
			obs:       Observation{QueueDepth: 5, ConsumerCount: 1},
			expAction: ActionScaleUp,
			expToAdd:  2,
			expWanted: 2,
			expThresh: 2,
		},
		{
			name:      "single job without local worker",
			obs:       Observation{QueueDepth: 1},
			expAction: ActionScaleUp,
			expToAdd:  1,
			expWanted: 1,
			expThresh: 1,
		},
		{
			name:      "single job with local worker",
			obs:       Observation{QueueDepth: 1, ConsumerCount: 1},
			expAction: ActionNone,
			expThresh: 2,
		},
		{
			name:      "idle",
			obs:       Observation{},
			expAction: ActionIdle,
			expThresh: 1,
		},
		{
			name:      "empty queue with running fleet",
			obs:       Observation{FleetRunning: 2},
			expAction: ActionNone,
			expThresh: 1,
		},
		{
			name:      "fleet already covers backlog",
			obs:       Observation{QueueDepth: 5, ConsumerCount: 1, FleetRunning: 1, FleetPending: 1},
			expAction: ActionNone,
			expWanted: 2,
			expThresh: 2,
		},
		{
			name:      "fleet partially covers backlog",
			obs:       Observation{QueueDepth: 9, ConsumerCount: 1, FleetRunning: 1, FleetPending: 1},
			expAction: ActionScaleUp,
			expToAdd:  2,
			expWanted: 4,
			expThresh: 2,
		},
		{
			name:      "capped by max workers",
			obs:       Observation{QueueDepth: 100, ConsumerCount: 1, FleetRunning: 7},
			expAction: ActionScaleUp,
			expToAdd:  3,
			expWanted: 50,
			expThresh: 2,
		},
		{
			name:      "fleet at max workers",
			obs:       Observation{QueueDepth: 100, FleetRunning: 6, FleetPending: 4},
			expAction: ActionNone,
			expWanted: 50,
			expThresh: 1,
		},
		{
			name:      "fleet above max workers",
			obs:       Observation{QueueDepth: 100, FleetRunning: 12},
			expAction: ActionNone,
			expWanted: 50,
			expThresh: 1,
		},
		{
			name:       "within cooldown",
			obs:        Observation{QueueDepth: 5, ConsumerCount: 1},
			lastAction: now.Add(-60 * time.Second),
			expAction:  ActionNone,
			expThresh:  2,
		},
		{
			name:       "cooldown elapsed",
			obs:        Observation{QueueDepth: 5, ConsumerCount: 1},
			lastAction: now.Add(-120 * time.Second),
			expAction:  ActionScaleUp,
			expToAdd:   2,
			expWanted:  2,
			expThresh:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(defaultTestConfig(), tc.obs, tc.lastAction, now)
			must.Eq(t, tc.expAction, d.Action)
			must.Eq(t, tc.expToAdd, d.ToAdd)
			must.Eq(t, tc.expWanted, d.WorkersWanted)
			must.Eq(t, tc.expThresh, d.EffectiveThreshold)
			must.NotEq(t, "", d.Reason)
		})
	}
}

func TestDecide_bounds(t *testing.T) {
	cfg := defaultTestConfig()
	now := time.Now()

	for depth := 0; depth <= 40; depth++ {
		for consumers := 0; consumers <= 1; consumers++ {
			for fleet := 0; fleet <= 12; fleet++ {
				obs := Observation{QueueDepth: depth, ConsumerCount: consumers, FleetRunning: fleet}
				d := Decide(cfg, obs, time.Time{}, now)

				must.True(t, d.ToAdd >= 0)
				if d.ToAdd > 0 {
					must.Eq(t, ActionScaleUp, d.Action)
					must.True(t, fleet+d.ToAdd <= cfg.MaxWorkers)
				}
				if depth < d.EffectiveThreshold {
					must.Zero(t, d.ToAdd)
				}
			}
		}
	}
}

func Test_ceilDiv(t *testing.T) {
	must.Eq(t, 0, ceilDiv(0, 2))
	must.Eq(t, 1, ceilDiv(1, 2))
	must.Eq(t, 1, ceilDiv(2, 2))
	must.Eq(t, 2, ceilDiv(3, 2))
	must.Eq(t, 0, ceilDiv(3, 0))
}

func TestAction_String(t *testing.T) {
	must.Eq(t, "none", ActionNone.String())
	must.Eq(t, "idle", ActionIdle.String())
	must.Eq(t, "scale_up", ActionScaleUp.String())
}
