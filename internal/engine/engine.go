// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package engine converges the unit towards the state described by the
// charm configuration. Every pass recomputes the full desired state, so
// the hook that triggered it only matters for logging and for telling
// teardown apart from convergence.
package engine

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"

	"github.com/canonical/script-exporter-operator/core/status"
	"github.com/canonical/script-exporter-operator/internal/archive"
	"github.com/canonical/script-exporter-operator/internal/artifact"
	"github.com/canonical/script-exporter-operator/internal/charmconfig"
	"github.com/canonical/script-exporter-operator/internal/exporter"
	"github.com/canonical/script-exporter-operator/internal/exporterconfig"
	"github.com/canonical/script-exporter-operator/internal/metrics"
	"github.com/canonical/script-exporter-operator/internal/paths"
	"github.com/canonical/script-exporter-operator/internal/scrape"
	"github.com/canonical/script-exporter-operator/internal/unitstatus"
)

// HookTools is the subset of the hook tools used during a pass.
type HookTools interface {
	ConfigGet(ctx context.Context) (map[string]any, error)
	ResourceGet(ctx context.Context, name string) (string, error)
	ApplicationVersionSet(ctx context.Context, version string) error
}

// FileWriter converges files on disk.
type FileWriter interface {
	ReconcileFiles(root string, desired []artifact.File) artifact.Result
}

// Supervisor manages the exporter binary and process.
type Supervisor interface {
	EnsureBinary(ctx context.Context, resourcePath string) error
	EnsureRunning(ctx context.Context, inputs string) error
	Stop() error
	State() exporter.ProcessState
}

// Publisher advertises scrape jobs over the metrics relation.
type Publisher interface {
	Publish(ctx context.Context, jobs []scrape.Job) (int, error)
}

// MetricsRecorder records the outcome of a pass.
type MetricsRecorder interface {
	Observe(metrics.Pass)
}

// Logger represents the logging methods used by the engine.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warningf(string, ...interface{})
	Errorf(string, ...interface{})
}

// Config holds the dependencies of an Engine.
type Config struct {
	Unit  names.UnitTag
	Paths paths.Paths

	// Address is the host the metrics collector reaches the exporter on.
	Address string
	Port    int

	HookTools  HookTools
	Writer     FileWriter
	Supervisor Supervisor
	Publisher  Publisher
	Metrics    MetricsRecorder
	Clock      clock.Clock
	Logger     Logger
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Unit.Id() == "" {
		return errors.NotValidf("empty Unit")
	}
	if c.Paths.Root == "" {
		return errors.NotValidf("empty Paths")
	}
	if c.Address == "" {
		return errors.NotValidf("empty Address")
	}
	if c.Port <= 0 {
		return errors.NotValidf("port %d", c.Port)
	}
	if c.HookTools == nil {
		return errors.NotValidf("nil HookTools")
	}
	if c.Writer == nil {
		return errors.NotValidf("nil Writer")
	}
	if c.Supervisor == nil {
		return errors.NotValidf("nil Supervisor")
	}
	if c.Publisher == nil {
		return errors.NotValidf("nil Publisher")
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) Observe(metrics.Pass) {}

// Engine runs reconciliation passes.
type Engine struct {
	cfg Config
}

// NewEngine returns a new Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = loggo.GetLogger("script-exporter.engine")
	}
	return &Engine{cfg: cfg}, nil
}

// pass accumulates what happened during one reconciliation.
type pass struct {
	trigger string
	started time.Time
	errors  []error
	result  artifact.Result
	jobs    int
}

func (p *pass) fail(err error) {
	p.errors = append(p.errors, err)
}

// Reconcile runs one pass and returns the resulting unit status. Problems
// with the unit's inputs or workload are reported through the status; an
// error is only returned when the hook tools cannot be used.
func (e *Engine) Reconcile(ctx context.Context, trigger string) (status.StatusInfo, error) {
	p := &pass{trigger: trigger, started: e.cfg.Clock.Now()}
	e.cfg.Logger.Debugf("reconciling after %q", trigger)

	attrs, err := e.cfg.HookTools.ConfigGet(ctx)
	if err != nil {
		return status.StatusInfo{}, errors.Annotate(err, "reading charm config")
	}
	e.converge(ctx, p, attrs)
	return e.finish(p), nil
}

func (e *Engine) converge(ctx context.Context, p *pass, attrs map[string]any) {
	raw, err := charmconfig.Parse(attrs)
	if err != nil {
		p.fail(err)
		return
	}
	if err := raw.Validate(); err != nil {
		// Conflicts and missing options stop the pass before anything
		// is written.
		p.fail(err)
		return
	}

	scripts, scriptNames, err := e.desiredScripts(raw)
	if err != nil {
		p.fail(err)
		return
	}

	cfg, err := exporterconfig.Parse(raw.ConfigFile)
	if err != nil {
		p.fail(err)
		return
	}
	if scriptNames != nil {
		cfg = exporterconfig.ResolveCommands(cfg, e.cfg.Paths.ScriptsDir, scriptNames)
	}
	rendered, err := exporterconfig.Render(cfg)
	if err != nil {
		p.fail(err)
		return
	}

	var userJobs []scrape.Job
	var fragment []byte
	if raw.HasPrometheusConfigFile() {
		built, err := scrape.Build(raw.PrometheusConfigFile, e.cfg.Address, e.cfg.Port, e.cfg.Unit)
		if err != nil {
			p.fail(err)
			return
		}
		if fragment, err = built.Marshal(); err != nil {
			p.fail(err)
			return
		}
		userJobs = built.ScrapeConfigs
	}

	configPath := e.cfg.Paths.Rel(e.cfg.Paths.ConfigPath)
	desired := append(scripts, artifact.File{Path: configPath, Content: rendered, Mode: 0644})
	if fragment != nil {
		desired = append(desired, artifact.File{
			Path:    e.cfg.Paths.Rel(e.cfg.Paths.ScrapeConfigPath),
			Content: fragment,
			Mode:    0644,
		})
	}

	p.result = e.cfg.Writer.ReconcileFiles(e.cfg.Paths.Root, desired)
	if err := p.result.Err(); err != nil {
		p.fail(err)
	}

	// Only the exporter's own inputs warrant a restart. The scrape
	// fragment is read by the collector, not the exporter.
	restartPaths := []string{configPath}
	for _, f := range scripts {
		restartPaths = append(restartPaths, f.Path)
	}
	e.ensureExporter(ctx, p, p.result.Digest(restartPaths...))

	jobs := append([]scrape.Job{scrape.SelfJob(e.cfg.Address, e.cfg.Port, e.cfg.Unit)}, userJobs...)
	n, err := e.cfg.Publisher.Publish(ctx, jobs)
	if err != nil {
		p.fail(err)
		return
	}
	if n > 0 {
		p.jobs = len(jobs)
	}
}

// desiredScripts returns the script files to write, relative to the root.
// scriptNames is nil unless the scripts came from an archive.
func (e *Engine) desiredScripts(raw charmconfig.RawConfig) ([]artifact.File, []string, error) {
	if raw.HasScriptFile() {
		return []artifact.File{{
			Path:    e.cfg.Paths.Rel(e.cfg.Paths.SingleScriptPath),
			Content: []byte(raw.ScriptFile),
			Mode:    0755,
		}}, nil, nil
	}
	set, err := archive.Extract(raw.ScriptsArchive)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	names := set.Names()
	files := make([]artifact.File, 0, len(names))
	for _, name := range names {
		files = append(files, artifact.File{
			Path:    e.cfg.Paths.Rel(e.cfg.Paths.Script(name)),
			Content: set[name],
			Mode:    0755,
		})
	}
	return files, names, nil
}

func (e *Engine) ensureExporter(ctx context.Context, p *pass, inputs string) {
	resource, err := e.cfg.HookTools.ResourceGet(ctx, paths.BinaryResourceName)
	if errors.Is(err, errors.NotFound) {
		resource = ""
	} else if err != nil {
		e.cfg.Logger.Warningf("cannot read resource %q, falling back to download: %v", paths.BinaryResourceName, err)
		resource = ""
	}

	sup := e.cfg.Supervisor
	if err := sup.EnsureBinary(ctx, resource); err != nil {
		p.fail(err)
		return
	}
	if version := sup.State().WorkloadVersion; version != "" {
		if err := e.cfg.HookTools.ApplicationVersionSet(ctx, version); err != nil {
			e.cfg.Logger.Warningf("cannot set workload version: %v", err)
		}
	}
	if err := sup.EnsureRunning(ctx, inputs); err != nil {
		p.fail(err)
	}
}

func (e *Engine) finish(p *pass) status.StatusInfo {
	state := e.cfg.Supervisor.State()
	info := unitstatus.Compute(unitstatus.Outcome{
		Errors:  p.errors,
		Process: state,
		Port:    e.cfg.Port,
	})
	for _, err := range p.errors {
		e.cfg.Logger.Debugf("pass after %q: %v", p.trigger, err)
	}
	e.cfg.Logger.Infof("%s: %s", p.trigger, info)
	e.cfg.Metrics.Observe(metrics.Pass{
		Trigger:       p.trigger,
		Status:        info.Status,
		Started:       p.started,
		Duration:      e.cfg.Clock.Now().Sub(p.started),
		FilesChanged:  p.result.Changed.Size(),
		WriteErrors:   len(p.result.Errors),
		Restarted:     state.Restarted,
		JobsPublished: p.jobs,
	})
	return info
}

// Teardown stops the exporter, leaving its files in place.
func (e *Engine) Teardown(ctx context.Context, trigger string) status.StatusInfo {
	e.cfg.Logger.Infof("stopping exporter after %q", trigger)
	info := status.StatusInfo{Status: status.Maintenance, Message: "exporter stopped"}
	if err := e.cfg.Supervisor.Stop(); err != nil {
		e.cfg.Logger.Errorf("cannot stop exporter: %v", err)
		info = status.StatusInfo{Status: status.Error, Message: err.Error()}
	}
	e.cfg.Metrics.Observe(metrics.Pass{
		Trigger: trigger,
		Status:  info.Status,
		Started: e.cfg.Clock.Now(),
	})
	return info
}
