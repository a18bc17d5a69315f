// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package scrape builds the Prometheus scrape jobs advertised for the
// script exporter. User supplied jobs are routed through the exporter's
// probe endpoint by an operator owned relabeling block.
package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"gopkg.in/yaml.v3"
)

const (
	// InvalidScrapeConfigError is returned when the prometheus_config_file
	// option is not a list of scrape jobs.
	InvalidScrapeConfigError = errors.ConstError("invalid scrape config")
)

const (
	// SelfJobName is the name of the job scraping the exporter's own
	// metrics endpoint.
	SelfJobName = "script-exporter"

	// UnitLabel is the label carrying the name of the unit that generated
	// a job, so that aggregators can tell apart jobs from different units.
	UnitLabel = "juju_unit"
)

// Fragment is a list of scrape jobs, in the shape of the scrape_configs
// section of a Prometheus configuration file.
type Fragment struct {
	ScrapeConfigs []Job `yaml:"scrape_configs" json:"scrape_configs"`
}

// Job is a single scrape job. Keys that are not interpreted here, such as
// scrape_interval, are kept in Extra and written back out unchanged.
type Job struct {
	JobName        string              `yaml:"job_name"`
	MetricsPath    string              `yaml:"metrics_path,omitempty"`
	Params         map[string][]string `yaml:"params,omitempty"`
	StaticConfigs  []StaticConfig      `yaml:"static_configs,omitempty"`
	RelabelConfigs []RelabelConfig     `yaml:"relabel_configs,omitempty"`
	Extra          map[string]any      `yaml:",inline"`
}

// StaticConfig is a static list of targets and their labels.
type StaticConfig struct {
	Targets []string          `yaml:"targets" json:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// RelabelConfig is a single relabeling step.
type RelabelConfig struct {
	SourceLabels []string       `yaml:"source_labels,omitempty" json:"source_labels,omitempty"`
	TargetLabel  string         `yaml:"target_label,omitempty" json:"target_label,omitempty"`
	Replacement  string         `yaml:"replacement,omitempty" json:"replacement,omitempty"`
	Extra        map[string]any `yaml:",inline" json:"-"`
}

// MarshalJSON renders the job with its extra keys merged in, as expected by
// the metrics relation.
func (j Job) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(j.Extra)+5)
	for k, v := range j.Extra {
		out[k] = v
	}
	out["job_name"] = j.JobName
	if j.MetricsPath != "" {
		out["metrics_path"] = j.MetricsPath
	}
	if len(j.Params) > 0 {
		out["params"] = j.Params
	}
	if len(j.StaticConfigs) > 0 {
		out["static_configs"] = j.StaticConfigs
	}
	if len(j.RelabelConfigs) > 0 {
		out["relabel_configs"] = j.RelabelConfigs
	}
	return json.Marshal(out)
}

// Marshal renders the fragment as YAML.
func (f Fragment) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, errors.Annotate(err, "rendering scrape config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a user supplied fragment without rewriting it.
func Parse(text string) (Fragment, error) {
	var f Fragment
	if strings.TrimSpace(text) == "" {
		return f, nil
	}
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fragment{}, fmt.Errorf("%v: %w", err, InvalidScrapeConfigError)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return Fragment{}, fmt.Errorf("multiple documents: %w", InvalidScrapeConfigError)
	}
	seen := set.NewStrings()
	for i, job := range f.ScrapeConfigs {
		if job.JobName == "" {
			return Fragment{}, fmt.Errorf("job %d has no job_name: %w", i, InvalidScrapeConfigError)
		}
		if seen.Contains(job.JobName) {
			return Fragment{}, fmt.Errorf("job %q defined more than once: %w", job.JobName, InvalidScrapeConfigError)
		}
		seen.Add(job.JobName)
	}
	return f, nil
}

// Build parses the user fragment and sets, on every job, the relabeling
// block that sends the scrape to the exporter listening on address:port
// while passing the original target as the probe's target parameter. Any
// relabel_configs supplied by the user are replaced, not merged.
func Build(userFragment, address string, port int, unit names.UnitTag) (Fragment, error) {
	f, err := Parse(userFragment)
	if err != nil {
		return Fragment{}, errors.Trace(err)
	}
	for i, job := range f.ScrapeConfigs {
		if job.JobName == SelfJobName {
			return Fragment{}, fmt.Errorf("job name %q is reserved: %w", SelfJobName, InvalidScrapeConfigError)
		}
		f.ScrapeConfigs[i].RelabelConfigs = RelabelBlock(address, port, unit)
	}
	return f, nil
}

// RelabelBlock returns the relabeling steps owned by the operator. They
// follow the exporter's documented proxy setup: the job's target becomes
// the target parameter and the instance label, and the scrape address
// becomes the exporter itself.
func RelabelBlock(address string, port int, unit names.UnitTag) []RelabelConfig {
	return []RelabelConfig{
		{SourceLabels: []string{"__address__"}, TargetLabel: "__param_target"},
		{SourceLabels: []string{"__param_target"}, TargetLabel: "instance"},
		// The original target, kept for dashboards.
		{SourceLabels: []string{"__param_target"}, TargetLabel: "script_target"},
		{TargetLabel: "__address__", Replacement: hostPort(address, port)},
		{TargetLabel: UnitLabel, Replacement: unit.Id()},
	}
}

// SelfJob returns the job scraping the exporter's own metrics.
func SelfJob(address string, port int, unit names.UnitTag) Job {
	return Job{
		JobName: SelfJobName,
		StaticConfigs: []StaticConfig{{
			Targets: []string{hostPort(address, port)},
		}},
		RelabelConfigs: []RelabelConfig{
			{TargetLabel: UnitLabel, Replacement: unit.Id()},
		},
	}
}

func hostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
