// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/reelcast/transcode-autoscaler/agent/config"
	"github.com/reelcast/transcode-autoscaler/batch"
	"github.com/reelcast/transcode-autoscaler/broker"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

type Agent struct {
	logger    hclog.Logger
	config    *config.Agent
	inMemSink *metrics.InmemSink
	engine    *scaler.Engine
}

func NewAgent(c *config.Agent, logger hclog.Logger) *Agent {
	return &Agent{
		logger: logger,
		config: c,
	}
}

// Setup initialises telemetry and the scaler. It must be called before Run
// and before the agent serves HTTP requests.
func (a *Agent) Setup(ctx context.Context) error {
	inMem, err := a.setupTelemetry(a.config.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %v", err)
	}
	a.inMemSink = inMem

	a.engine = a.setupScaler(ctx)
	return nil
}

// Run starts the evaluation loop and blocks until the context is canceled or
// an exit signal is received.
func (a *Agent) Run(ctx context.Context) error {
	if a.engine == nil {
		return fmt.Errorf("agent has not been setup")
	}

	// Create context to handle propagation to downstream routines.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.engine.Run(ctx)
	}()

	// Wait for our exit.
	a.handleSignals(ctx)

	cancel()
	<-done
	return nil
}

// setupScaler builds the scaling engine. Missing job settings or AWS
// credentials result in a disabled engine rather than an error so the agent
// keeps serving its HTTP API.
func (a *Agent) setupScaler(ctx context.Context) *scaler.Engine {
	scalerCfg := a.config.ScalerConfig()

	if missing := a.config.MissingSettings(); len(missing) > 0 {
		a.logger.Warn("autoscaling disabled, required settings are missing",
			"missing", strings.Join(missing, ", "))
		return scaler.NewDisabledEngine(scalerCfg, a.logger)
	}

	client, err := batch.NewClient(ctx, a.config.BatchConfig(), a.logger)
	if err != nil {
		a.logger.Warn("autoscaling disabled, failed to setup AWS Batch client", "error", err)
		return scaler.NewDisabledEngine(scalerCfg, a.logger)
	}

	if err := client.CheckCredentials(ctx); err != nil {
		a.logger.Warn("autoscaling disabled, no AWS credentials available",
			"missing", strings.Join([]string{config.EnvAWSAccessKeyID, config.EnvAWSSecretAccessKey}, ", "),
			"error", err)
		return scaler.NewDisabledEngine(scalerCfg, a.logger)
	}

	if a.config.Scaling.IsDryRun() {
		a.logger.Warn("dry run enabled, batch jobs will not be submitted")
	}

	return scaler.NewEngine(scalerCfg, scaler.Dependencies{
		Queue:     broker.NewProber(a.config.BrokerConfig(), a.logger),
		Fleet:     client,
		Submitter: client,
	}, a.logger)
}

// DisplayMetrics returns a summary of the agent telemetry.
func (a *Agent) DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if a.inMemSink == nil {
		return nil, fmt.Errorf("telemetry has not been setup")
	}
	return a.inMemSink.DisplayMetrics(resp, req)
}

// ScalerMetrics returns the latest scaler snapshot.
func (a *Agent) ScalerMetrics() scaler.MetricsSnapshot {
	if a.engine == nil {
		return scaler.MetricsSnapshot{}
	}
	return a.engine.Metrics()
}

// ScalerHealth returns an error when the scaler evaluation loop has stalled.
func (a *Agent) ScalerHealth() error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Health()
}

// TriggerScale submits count batch workers immediately.
func (a *Agent) TriggerScale(ctx context.Context, count int) ([]string, error) {
	if a.engine == nil {
		return nil, scaler.ErrDisabled
	}
	return a.engine.Trigger(ctx, count)
}

// handleSignals blocks until the agent receives an exit signal or the context
// is canceled.
func (a *Agent) handleSignals(ctx context.Context) {
	signalCh := make(chan os.Signal, 3)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		a.logger.Info("caught signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context closed, shutting down agent")
	}
}
