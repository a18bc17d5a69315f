// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// script-exporter-operator is run by the Juju unit agent for every hook
// dispatched to the charm. Each invocation converges the unit and reports
// the outcome as the unit's workload status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/canonical/script-exporter-operator/internal/hookenv"
)

var logger = loggo.GetLogger("script-exporter.dispatch")

type commandLineArgs struct {
	root     string
	logLevel loggo.Level
}

func parseArgs(args []string) (commandLineArgs, error) {
	flags := gnuflag.NewFlagSet("script-exporter-operator", gnuflag.ContinueOnError)
	var a commandLineArgs
	var rawLogLevel string
	flags.StringVar(&a.root, "root", "/",
		"directory the unit's files are installed relative to")
	flags.StringVar(&rawLogLevel, "log-level", "DEBUG",
		"log level to use (TRACE/DEBUG/INFO/etc)")
	if err := flags.Parse(true, args); err != nil {
		return commandLineArgs{}, errors.Trace(err)
	}
	if flags.NArg() > 0 {
		return commandLineArgs{}, errors.Errorf("unrecognized args: %q", flags.Args())
	}
	level, ok := loggo.ParseLevel(rawLogLevel)
	if !ok {
		return commandLineArgs{}, errors.NotValidf("log level %q", rawLogLevel)
	}
	a.logLevel = level
	return a, nil
}

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the hook named by the environment and returns the exit code.
func Main(args []string) int {
	a, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	tools := hookenv.NewClient(hookenv.DefaultRunner)
	env, envErr := hookenv.ReadEnv(os.Getenv)
	if err := setupLogging(tools, envErr == nil, a.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "cannot set up logging: %v\n", err)
		return 1
	}
	if envErr != nil {
		logger.Errorf("not running in a hook context: %v", envErr)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	releaser, err := acquireLock(ctx, clock.WallClock)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer releaser.Release()

	if env.RelationName != "" {
		logger.Debugf("%s: running %s hook for relation %s", env.Unit.Id(), env.HookName, env.RelationName)
	} else {
		logger.Debugf("%s: running %s hook", env.Unit.Id(), env.HookName)
	}

	d, err := newDispatcher(env, a.root, tools)
	if err != nil {
		logger.Errorf("cannot start: %v", err)
		return 1
	}
	if err := d.dispatch(ctx); err != nil {
		logger.Errorf("%s hook failed: %v", env.HookName, err)
		return 1
	}
	return 0
}
