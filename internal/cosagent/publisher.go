// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cosagent publishes scrape jobs to a co-located telemetry agent
// over the cos-agent relation.
package cosagent

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/script-exporter-operator/internal/scrape"
)

const (
	// RelationName is the endpoint the telemetry agent relates to.
	RelationName = "cos-agent"

	// DatabagKey is the unit databag key holding the payload.
	DatabagKey = "config"
)

// Payload is the unit databag content understood by the telemetry agent.
type Payload struct {
	MetricsAlertRules map[string]any `json:"metrics_alert_rules"`
	LogAlertRules     map[string]any `json:"log_alert_rules"`
	Dashboards        []string       `json:"dashboards"`
	MetricsScrapeJobs []scrape.Job   `json:"metrics_scrape_jobs"`
	LogSlots          []string       `json:"log_slots"`
	Subordinate       bool           `json:"subordinate"`
}

// NewPayload returns the payload advertising jobs and nothing else.
func NewPayload(jobs []scrape.Job) Payload {
	if jobs == nil {
		jobs = []scrape.Job{}
	}
	return Payload{
		MetricsAlertRules: map[string]any{},
		LogAlertRules:     map[string]any{},
		Dashboards:        []string{},
		MetricsScrapeJobs: jobs,
		LogSlots:          []string{},
		Subordinate:       true,
	}
}

// Marshal returns the JSON form of the payload. The output only depends
// on the payload's content.
func (p Payload) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}

// RelationClient reads and writes relation data.
type RelationClient interface {
	RelationIDs(ctx context.Context, endpoint string) ([]string, error)
	RelationSet(ctx context.Context, relationID, key, value string) error
}

// Logger represents the logging methods used by the publisher.
type Logger interface {
	Debugf(string, ...interface{})
}

// Publisher writes the payload to every established cos-agent relation.
type Publisher struct {
	client RelationClient
	logger Logger
}

// NewPublisher returns a Publisher writing through client.
func NewPublisher(client RelationClient, logger Logger) *Publisher {
	if logger == nil {
		logger = loggo.GetLogger("script-exporter.cosagent")
	}
	return &Publisher{client: client, logger: logger}
}

// Publish advertises jobs on every cos-agent relation and returns how
// many relations were written. Without a relation it does nothing.
func (p *Publisher) Publish(ctx context.Context, jobs []scrape.Job) (int, error) {
	ids, err := p.client.RelationIDs(ctx, RelationName)
	if err != nil {
		return 0, errors.Annotatef(err, "listing %s relations", RelationName)
	}
	if len(ids) == 0 {
		p.logger.Debugf("no %s relation, not publishing scrape jobs", RelationName)
		return 0, nil
	}
	data, err := NewPayload(jobs).Marshal()
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, id := range ids {
		if err := p.client.RelationSet(ctx, id, DatabagKey, data); err != nil {
			return 0, errors.Annotatef(err, "publishing scrape jobs on %s", id)
		}
		p.logger.Debugf("published %d scrape jobs on %s", len(jobs), id)
	}
	return len(ids), nil
}
