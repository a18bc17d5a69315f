// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"fmt"
	"sync"

	"github.com/juju/loggo/v2"
)

// CheckLog is an interface that can be used to log messages to a
// *testing.T or *check.C.
type CheckLog interface {
	Logf(string, ...any)
}

// LogEntry is a message recorded by a CheckLogger.
type LogEntry struct {
	Level   loggo.Level
	Message string
}

// CheckLogger satisfies the Logger interfaces of the operator's
// components. It logs to a *testing.T or *check.C and records every
// message so tests can assert on them.
type CheckLogger struct {
	log CheckLog

	mu      sync.Mutex
	entries []LogEntry
}

// NewCheckLogger returns a CheckLogger that logs to the given CheckLog.
func NewCheckLogger(log CheckLog) *CheckLogger {
	return &CheckLogger{log: log}
}

func (c *CheckLogger) logf(level loggo.Level, msg string, args ...any) {
	formatted := fmt.Sprintf(msg, args...)
	c.mu.Lock()
	c.entries = append(c.entries, LogEntry{Level: level, Message: formatted})
	c.mu.Unlock()
	c.log.Logf("%s: %s", level, formatted)
}

func (c *CheckLogger) Errorf(msg string, args ...any)   { c.logf(loggo.ERROR, msg, args...) }
func (c *CheckLogger) Warningf(msg string, args ...any) { c.logf(loggo.WARNING, msg, args...) }
func (c *CheckLogger) Infof(msg string, args ...any)    { c.logf(loggo.INFO, msg, args...) }
func (c *CheckLogger) Debugf(msg string, args ...any)   { c.logf(loggo.DEBUG, msg, args...) }

// Messages returns the messages logged at the given level, oldest first.
func (c *CheckLogger) Messages(level loggo.Level) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
