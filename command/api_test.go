// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/reelcast/transcode-autoscaler/agent"
	agentHTTP "github.com/reelcast/transcode-autoscaler/agent/http"
	"github.com/shoenig/test/must"
)

func testAgentAddress(t *testing.T, a agentHTTP.AgentHTTP) string {
	t.Helper()

	srv, stop := agentHTTP.TestServerWithAgent(t, false, a)
	go srv.Start()
	t.Cleanup(stop)

	return "http://" + srv.Addr()
}

func TestTriggerCommand_Run(t *testing.T) {
	testCases := []struct {
		name           string
		agent          agentHTTP.AgentHTTP
		args           []string
		expectedCode   int
		expectedOutput []string
		expectedError  string
	}{
		{
			name:           "default count",
			agent:          &agent.MockAgentHTTP{MaxWorkers: 10},
			expectedOutput: []string{"Submitted 1 of 1 worker(s):", "job-1"},
		},
		{
			name:           "explicit count",
			agent:          &agent.MockAgentHTTP{MaxWorkers: 10},
			args:           []string{"-count", "3"},
			expectedOutput: []string{"Submitted 3 of 3 worker(s):", "job-1", "job-2", "job-3"},
		},
		{
			name:           "clamped count",
			agent:          &agent.MockAgentHTTP{MaxWorkers: 2},
			args:           []string{"-count", "5"},
			expectedOutput: []string{"Submitted 2 of 5 worker(s):", "job-2"},
		},
		{
			name:          "disabled agent",
			agent:         &agent.MockAgentHTTP{Disabled: true},
			expectedCode:  1,
			expectedError: "unexpected response code 503",
		},
		{
			name:          "invalid count",
			agent:         &agent.MockAgentHTTP{MaxWorkers: 10},
			args:          []string{"-count", "0"},
			expectedCode:  1,
			expectedError: "count must be at least 1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ui := cli.NewMockUi()
			cmd := &TriggerCommand{Ui: ui}

			args := append([]string{"-address", testAgentAddress(t, tc.agent)}, tc.args...)
			must.Eq(t, tc.expectedCode, cmd.Run(args))

			out := ui.OutputWriter.String()
			for _, s := range tc.expectedOutput {
				must.StrContains(t, out, s)
			}
			if tc.expectedError != "" {
				must.StrContains(t, ui.ErrorWriter.String(), tc.expectedError)
			}
		})
	}
}

func TestTriggerCommand_Run_noJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"JobIDs":[]}`))
	}))
	defer srv.Close()

	ui := cli.NewMockUi()
	cmd := &TriggerCommand{Ui: ui}

	must.Eq(t, 1, cmd.Run([]string{"-address", srv.URL}))
	must.StrContains(t, ui.ErrorWriter.String(), "No workers were submitted")
}

func TestTriggerCommand_Run_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	ui := cli.NewMockUi()
	cmd := &TriggerCommand{Ui: ui}

	must.Eq(t, 1, cmd.Run([]string{"-address", addr}))
	must.StrContains(t, ui.ErrorWriter.String(), "failed to query agent")
}

func TestStatusCommand_Run(t *testing.T) {
	testCases := []struct {
		name           string
		agent          agentHTTP.AgentHTTP
		expectedOutput []string
	}{
		{
			name:  "enabled",
			agent: &agent.MockAgentHTTP{},
			expectedOutput: []string{
				"Enabled            = true",
				"Queue Depth        = 5",
				"Active Workers     = 3",
				"Jobs Submitted     = 3",
				"Last Action        = scaled up",
			},
		},
		{
			name:  "disabled",
			agent: &agent.MockAgentHTTP{Disabled: true},
			expectedOutput: []string{
				"Enabled            = false",
				"Last Scale Action  = never",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ui := cli.NewMockUi()
			cmd := &StatusCommand{Ui: ui}

			must.Zero(t, cmd.Run([]string{"-address", testAgentAddress(t, tc.agent)}))

			out := ui.OutputWriter.String()
			for _, s := range tc.expectedOutput {
				must.StrContains(t, out, s)
			}
		})
	}
}

func Test_newAPIClient(t *testing.T) {
	t.Setenv(EnvAddress, "")
	must.Eq(t, defaultAddress, newAPIClient("").address)

	t.Setenv(EnvAddress, "http://10.0.0.1:9000/")
	must.Eq(t, "http://10.0.0.1:9000", newAPIClient("").address)
	must.Eq(t, "http://127.0.0.1:1234", newAPIClient("http://127.0.0.1:1234").address)
}
