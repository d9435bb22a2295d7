// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/reelcast/transcode-autoscaler/agent"
	"github.com/reelcast/transcode-autoscaler/agent/config"
)

func TestServer(t *testing.T, enableProm bool) (*Server, func()) {
	return TestServerWithAgent(t, enableProm, &agent.MockAgentHTTP{MaxWorkers: 10})
}

// TestServerWithAgent starts a server on a random local port backed by the
// passed agent.
func TestServerWithAgent(t *testing.T, enableProm bool, a AgentHTTP) (*Server, func()) {
	cfg := &config.HTTP{
		BindAddress: "127.0.0.1",
		BindPort:    0, // Use next available port.
	}

	s, err := NewHTTPServer(false, enableProm, cfg, hclog.NewNullLogger(), a)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}

	return s, func() {
		s.Stop()
	}
}
