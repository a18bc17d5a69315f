// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/script-exporter-operator/core/status"
	"github.com/canonical/script-exporter-operator/internal/artifact"
	"github.com/canonical/script-exporter-operator/internal/cosagent"
	"github.com/canonical/script-exporter-operator/internal/downloader"
	"github.com/canonical/script-exporter-operator/internal/engine"
	"github.com/canonical/script-exporter-operator/internal/exporter"
	"github.com/canonical/script-exporter-operator/internal/hookenv"
	"github.com/canonical/script-exporter-operator/internal/metrics"
	"github.com/canonical/script-exporter-operator/internal/paths"
	"github.com/canonical/script-exporter-operator/service"
	"github.com/canonical/script-exporter-operator/service/common"
)

const downloadTimeout = 5 * time.Minute

// Engine runs reconciliation passes.
type Engine interface {
	Reconcile(ctx context.Context, trigger string) (status.StatusInfo, error)
	Teardown(ctx context.Context, trigger string) status.StatusInfo
}

// StatusSetter publishes the unit's workload status.
type StatusSetter interface {
	StatusSet(ctx context.Context, st status.Status, msg string) error
}

type dispatcher struct {
	hook        string
	engine      Engine
	status      StatusSetter
	metrics     prometheus.Collector
	metricsPath string
}

func newDispatcher(env hookenv.Env, root string, tools *hookenv.Client) (*dispatcher, error) {
	p := paths.New(root)
	supervisor, err := exporter.NewSupervisor(exporter.Config{
		Paths: p,
		Fetcher: downloader.New(downloader.Config{
			Doer: &http.Client{Timeout: downloadTimeout},
		}),
		NewService: func(name string, conf common.Conf) (service.Service, error) {
			return service.DiscoverService(name, conf, root)
		},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	collector := metrics.NewCollector()
	eng, err := engine.NewEngine(engine.Config{
		Unit:       env.Unit,
		Paths:      p,
		Address:    exporter.Address,
		Port:       exporter.Port,
		HookTools:  tools,
		Writer:     artifact.NewWriter(),
		Supervisor: supervisor,
		Publisher:  cosagent.NewPublisher(tools, nil),
		Metrics:    collector,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &dispatcher{
		hook:        env.HookName,
		engine:      eng,
		status:      tools,
		metrics:     collector,
		metricsPath: p.MetricsPath,
	}, nil
}

// dispatch runs the pass for the hook and publishes its status. An error
// status cannot be set by a charm; it is returned instead, failing the
// hook so that the agent retries it.
func (d *dispatcher) dispatch(ctx context.Context) error {
	var info status.StatusInfo
	if engine.IsTeardown(d.hook) {
		info = d.engine.Teardown(ctx, d.hook)
	} else {
		var err error
		if info, err = d.engine.Reconcile(ctx, d.hook); err != nil {
			return errors.Trace(err)
		}
	}

	if d.metrics != nil {
		if err := metrics.WriteTextfile(d.metricsPath, d.metrics); err != nil {
			logger.Warningf("cannot record metrics: %v", err)
		}
	}

	if info.Status == status.Error {
		return errors.New(info.Message)
	}
	return errors.Annotate(d.status.StatusSet(ctx, info.Status, info.Message), "setting status")
}
