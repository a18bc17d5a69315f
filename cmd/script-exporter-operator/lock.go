// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
)

const (
	lockName    = "script-exporter-operator"
	lockDelay   = 250 * time.Millisecond
	lockTimeout = 5 * time.Minute
)

// acquireLock takes the machine wide lock held for the duration of a
// hook, so that two invocations never reconcile the same files at once.
func acquireLock(ctx context.Context, clk mutex.Clock) (mutex.Releaser, error) {
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    lockName,
		Clock:   clk,
		Delay:   lockDelay,
		Timeout: lockTimeout,
		Cancel:  ctx.Done(),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "acquiring %s lock", lockName)
	}
	return releaser, nil
}
