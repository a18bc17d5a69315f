// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics records the outcome of reconciliation passes in a
// Prometheus textfile, for collection by a node exporter on the host.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/script-exporter-operator/core/status"
)

const metricsNamespace = "script_exporter_operator"

var allStatuses = []status.Status{
	status.Active,
	status.Waiting,
	status.Blocked,
	status.Maintenance,
	status.Error,
}

// Pass describes a single reconciliation pass.
type Pass struct {
	Trigger       string
	Status        status.Status
	Started       time.Time
	Duration      time.Duration
	FilesChanged  int
	WriteErrors   int
	Restarted     bool
	JobsPublished int
}

// Collector is a prometheus.Collector that collects metrics about the
// last reconciliation pass.
type Collector struct {
	lastPass      *prometheus.GaugeVec
	duration      prometheus.Gauge
	filesChanged  prometheus.Gauge
	writeErrors   prometheus.Gauge
	restarted     prometheus.Gauge
	jobsPublished prometheus.Gauge
	unitStatus    *prometheus.GaugeVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		lastPass: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_reconcile_timestamp_seconds",
				Help:      "The time the last reconciliation pass started.",
			}, []string{"trigger"},
		),
		duration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_reconcile_duration_seconds",
				Help:      "The time taken by the last reconciliation pass.",
			},
		),
		filesChanged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "files_changed",
				Help:      "The number of files written by the last pass.",
			},
		),
		writeErrors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "file_write_errors",
				Help:      "The number of files the last pass failed to write.",
			},
		),
		restarted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "exporter_restarted",
				Help:      "Whether the last pass started or restarted the exporter.",
			},
		),
		jobsPublished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "scrape_jobs_published",
				Help:      "The number of scrape jobs advertised by the last pass.",
			},
		),
		unitStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "unit_status",
				Help:      "The unit status set by the last pass.",
			}, []string{"status"},
		),
	}
}

// Observe records pass.
func (c *Collector) Observe(pass Pass) {
	c.lastPass.Reset()
	c.lastPass.WithLabelValues(pass.Trigger).Set(float64(pass.Started.Unix()))
	c.duration.Set(pass.Duration.Seconds())
	c.filesChanged.Set(float64(pass.FilesChanged))
	c.writeErrors.Set(float64(pass.WriteErrors))
	c.jobsPublished.Set(float64(pass.JobsPublished))
	if pass.Restarted {
		c.restarted.Set(1)
	} else {
		c.restarted.Set(0)
	}
	for _, st := range allStatuses {
		v := 0.0
		if st == pass.Status {
			v = 1
		}
		c.unitStatus.WithLabelValues(string(st)).Set(v)
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.lastPass.Describe(ch)
	c.duration.Describe(ch)
	c.filesChanged.Describe(ch)
	c.writeErrors.Describe(ch)
	c.restarted.Describe(ch)
	c.jobsPublished.Describe(ch)
	c.unitStatus.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lastPass.Collect(ch)
	c.duration.Collect(ch)
	c.filesChanged.Collect(ch)
	c.writeErrors.Collect(ch)
	c.restarted.Collect(ch)
	c.jobsPublished.Collect(ch)
	c.unitStatus.Collect(ch)
}

// WriteTextfile writes the collected metrics to path, atomically.
func WriteTextfile(path string, collector prometheus.Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(prometheus.WriteToTextfile(path, registry), "writing metrics to %q", path)
}
