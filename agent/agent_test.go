// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/reelcast/transcode-autoscaler/agent/config"
	"github.com/reelcast/transcode-autoscaler/batch"
	"github.com/reelcast/transcode-autoscaler/scaler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_setupScaler(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, certPEM, 0o600))

	testCases := []struct {
		name            string
		modify          func(*config.Agent)
		caBundle        string
		expectedEnabled bool
	}{
		{
			name:            "missing job settings",
			modify:          func(*config.Agent) {},
			expectedEnabled: false,
		},
		{
			name: "missing job definition",
			modify: func(c *config.Agent) {
				c.Batch.JobQueue = "transcode-queue"
				c.Batch.AccessKeyID = "AKID"
				c.Batch.SecretAccessKey = "secret"
			},
			expectedEnabled: false,
		},
		{
			name: "static credentials",
			modify: func(c *config.Agent) {
				c.Batch.JobQueue = "transcode-queue"
				c.Batch.JobDefinition = "transcode-worker"
				c.Batch.AccessKeyID = "AKID"
				c.Batch.SecretAccessKey = "secret"
			},
			expectedEnabled: true,
		},
		{
			name: "static credentials with custom CA bundle",
			modify: func(c *config.Agent) {
				c.Batch.JobQueue = "transcode-queue"
				c.Batch.JobDefinition = "transcode-worker"
				c.Batch.AccessKeyID = "AKID"
				c.Batch.SecretAccessKey = "secret"
			},
			caBundle:        bundle,
			expectedEnabled: true,
		},
		{
			name: "no credentials available",
			modify: func(c *config.Agent) {
				c.Batch.JobQueue = "transcode-queue"
				c.Batch.JobDefinition = "transcode-worker"
			},
			expectedEnabled: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			batch.IsolateAWSEnv(t)
			if tc.caBundle != "" {
				t.Setenv("AWS_CA_BUNDLE", tc.caBundle)
			}

			cfg := config.Default()
			tc.modify(cfg)

			a := NewAgent(cfg, hclog.NewNullLogger())
			e := a.setupScaler(context.Background())
			require.NotNil(t, e)
			assert.Equal(t, tc.expectedEnabled, e.Enabled())
			assert.Equal(t, tc.expectedEnabled, e.Metrics().Enabled)
		})
	}
}

func TestAgent_withoutSetup(t *testing.T) {
	a := NewAgent(config.Default(), hclog.NewNullLogger())

	assert.Equal(t, scaler.MetricsSnapshot{}, a.ScalerMetrics())
	assert.NoError(t, a.ScalerHealth())

	_, err := a.TriggerScale(context.Background(), 1)
	assert.ErrorIs(t, err, scaler.ErrDisabled)

	assert.Error(t, a.Run(context.Background()))

	_, err = a.DisplayMetrics(nil, nil)
	assert.Error(t, err)
}

func TestAgent_Run_disabled(t *testing.T) {
	batch.IsolateAWSEnv(t)

	a := NewAgent(config.Default(), hclog.NewNullLogger())
	a.engine = a.setupScaler(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	_, err := a.TriggerScale(context.Background(), 2)
	assert.ErrorIs(t, err, scaler.ErrDisabled)
}
