// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/cli"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

type StatusCommand struct {
	Ctx context.Context
	Ui  cli.Ui
}

func (c *StatusCommand) Help() string {
	helpText := `
Usage: transcode-autoscaler status [options]

  Displays the latest queue observation and scaling state of a running agent.

Options:

  -address=<addr>
    The address of the agent HTTP API. Overrides the TRANSCODE_AUTOSCALER_ADDR
    environment variable. The default is http://127.0.0.1:8080.
`
	return strings.TrimSpace(helpText)
}

func (c *StatusCommand) Synopsis() string {
	return "Displays the scaling state of a running agent"
}

func (c *StatusCommand) Run(args []string) int {
	var address string

	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&address, "address", "", "")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var snap scaler.MetricsSnapshot
	if err := newAPIClient(address).do(ctx, http.MethodGet, "/v1/scaler/metrics", nil, &snap); err != nil {
		c.Ui.Error(fmt.Sprintf("Error querying agent: %s", err))
		return 1
	}

	c.Ui.Output(formatSnapshot(snap))
	return 0
}

func formatSnapshot(s scaler.MetricsSnapshot) string {
	rows := [][2]string{
		{"Enabled", strconv.FormatBool(s.Enabled)},
		{"Queue Depth", strconv.Itoa(s.QueueDepth)},
		{"Consumers", strconv.Itoa(s.ConsumerCount)},
		{"Running Workers", strconv.Itoa(s.FleetRunning)},
		{"Pending Workers", strconv.Itoa(s.FleetPending)},
		{"Active Workers", strconv.Itoa(s.ActiveWorkers)},
		{"Observed At", formatTime(s.ObservedAt)},
		{"Last Scale Action", formatTime(s.LastScaleActionAt)},
		{"Jobs Submitted", strconv.FormatUint(s.TotalJobsSubmitted, 10)},
		{"Last Action", s.LastActionDescription},
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-18s = %s", r[0], r[1])
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
