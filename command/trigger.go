// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"

	"github.com/mitchellh/cli"
	agentHTTP "github.com/reelcast/transcode-autoscaler/agent/http"
)

type TriggerCommand struct {
	Ctx context.Context
	Ui  cli.Ui
}

func (c *TriggerCommand) Help() string {
	helpText := `
Usage: transcode-autoscaler trigger [options]

  Asks a running agent to submit batch workers immediately. The queue
  thresholds and the cooldown are not checked, the count is capped at the
  agent's maximum number of workers and the cooldown restarts.

Options:

  -address=<addr>
    The address of the agent HTTP API. Overrides the TRANSCODE_AUTOSCALER_ADDR
    environment variable. The default is http://127.0.0.1:8080.

  -count=<num>
    The number of workers to submit. The default is 1.
`
	return strings.TrimSpace(helpText)
}

func (c *TriggerCommand) Synopsis() string {
	return "Submits batch workers on a running agent"
}

func (c *TriggerCommand) Run(args []string) int {
	var (
		address string
		count   int
	)

	flags := flag.NewFlagSet("trigger", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&address, "address", "", "")
	flags.IntVar(&count, "count", 1, "")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if count < 1 {
		c.Ui.Error("count must be at least 1")
		return 1
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var resp agentHTTP.ScalerTriggerResponse
	req := agentHTTP.ScalerTriggerRequest{Count: count}
	if err := newAPIClient(address).do(ctx, http.MethodPost, "/v1/scaler/trigger", &req, &resp); err != nil {
		c.Ui.Error(fmt.Sprintf("Error triggering scale up: %s", err))
		return 1
	}

	if len(resp.JobIDs) == 0 {
		c.Ui.Warn("No workers were submitted, check the agent logs for details")
		return 1
	}

	c.Ui.Output(fmt.Sprintf("Submitted %d of %d worker(s):", len(resp.JobIDs), count))
	for _, id := range resp.JobIDs {
		c.Ui.Output("  " + id)
	}
	return 0
}
