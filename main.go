// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/cli"
	"github.com/reelcast/transcode-autoscaler/command"
	"github.com/reelcast/transcode-autoscaler/version"
)

func main() {
	// create context to handle signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := cli.NewCLI("transcode-autoscaler", version.GetHumanVersion())
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &command.AgentCommand{Ctx: ctx}, nil
		},
		"status": func() (cli.Command, error) {
			return &command.StatusCommand{Ctx: ctx, Ui: ui}, nil
		},
		"trigger": func() (cli.Command, error) {
			return &command.TriggerCommand{Ctx: ctx, Ui: ui}, nil
		},
		"version": func() (cli.Command, error) {
			return &command.VersionCommand{Version: version.GetHumanVersion()}, nil
		},
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %v\n", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	os.Exit(exitCode)
}
