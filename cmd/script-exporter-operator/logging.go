// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

// operatorModules is the prefix shared by every logger of the operator.
const operatorModules = "script-exporter"

// JujuLogger writes to the unit's log.
type JujuLogger interface {
	JujuLog(ctx context.Context, level, msg string) error
}

func setupLogging(tools JujuLogger, inHook bool, level loggo.Level) error {
	var writer loggo.Writer = loggo.NewSimpleWriter(os.Stderr, logFormatter)
	if inHook {
		writer = newHookLogWriter(tools, writer)
	}
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}
	return loggo.ConfigureLoggers(fmt.Sprintf("<root>=WARNING;%s=%s", operatorModules, level))
}

func logFormatter(entry loggo.Entry) string {
	ts := entry.Timestamp.In(time.UTC).Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s %s %s %s", ts, entry.Level, entry.Module, entry.Message)
}

// hookLogWriter forwards the operator's own log entries to juju-log.
// Entries from other modules, and entries logged while juju-log itself is
// running, go to the fallback writer.
type hookLogWriter struct {
	tools    JujuLogger
	fallback loggo.Writer
	busy     atomic.Bool
}

func newHookLogWriter(tools JujuLogger, fallback loggo.Writer) *hookLogWriter {
	return &hookLogWriter{tools: tools, fallback: fallback}
}

// Write is part of the loggo.Writer interface.
func (w *hookLogWriter) Write(entry loggo.Entry) {
	if !strings.HasPrefix(entry.Module, operatorModules) || !w.busy.CompareAndSwap(false, true) {
		w.fallback.Write(entry)
		return
	}
	defer w.busy.Store(false)

	msg := fmt.Sprintf("%s %s", entry.Module, entry.Message)
	if err := w.tools.JujuLog(context.Background(), entry.Level.String(), msg); err != nil {
		w.fallback.Write(entry)
	}
}
