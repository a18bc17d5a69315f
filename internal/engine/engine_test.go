// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/canonical/script-exporter-operator/core/status"
	"github.com/canonical/script-exporter-operator/internal/archive"
	"github.com/canonical/script-exporter-operator/internal/artifact"
	"github.com/canonical/script-exporter-operator/internal/engine"
	"github.com/canonical/script-exporter-operator/internal/exporter"
	"github.com/canonical/script-exporter-operator/internal/metrics"
	"github.com/canonical/script-exporter-operator/internal/paths"
	"github.com/canonical/script-exporter-operator/internal/scrape"
	"github.com/canonical/script-exporter-operator/service"
	"github.com/canonical/script-exporter-operator/service/common"
	coretesting "github.com/canonical/script-exporter-operator/testing"
)

const (
	helloConfig = "scripts:\n - name: hello\n   command: /etc/script-exporter-script\n   args: [x]"
	helloScript = "#!/bin/sh\necho ok"

	pingScrape = `
scrape_configs:
  - job_name: script_ping
    metrics_path: /probe
    params:
      script: [ping]
    static_configs:
      - targets: [127.0.0.1]
    relabel_configs:
      - target_label: script
        replacement: ping
`
)

type fakePublisher struct {
	testing.Stub
	published [][]scrape.Job
}

func (f *fakePublisher) Publish(_ context.Context, jobs []scrape.Job) (int, error) {
	f.AddCall("Publish", jobs)
	if err := f.NextErr(); err != nil {
		return 0, err
	}
	f.published = append(f.published, jobs)
	return 1, nil
}

type fakeMetrics struct {
	passes []metrics.Pass
}

func (f *fakeMetrics) Observe(p metrics.Pass) {
	f.passes = append(f.passes, p)
}

func (f *fakeMetrics) last() metrics.Pass {
	return f.passes[len(f.passes)-1]
}

type engineSuite struct {
	testing.IsolationSuite

	paths      paths.Paths
	attrs      map[string]any
	state      exporter.ProcessState
	hookTools  *MockHookTools
	supervisor *MockSupervisor
	publisher  *fakePublisher
	metrics    *fakeMetrics
	logger     *coretesting.CheckLogger

	// inputs holds the arguments of every EnsureRunning call.
	inputs []string
}

var _ = gc.Suite(&engineSuite{})

func (s *engineSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.paths = paths.New(c.MkDir())
	s.attrs = map[string]any{
		"config_file": helloConfig,
		"script_file": helloScript,
	}
	s.state = exporter.ProcessState{State: exporter.Stopped, BinaryPresent: true}
	s.publisher = &fakePublisher{}
	s.metrics = &fakeMetrics{}
	s.logger = coretesting.NewCheckLogger(c)
	s.inputs = nil
}

func (s *engineSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.hookTools = NewMockHookTools(ctrl)
	s.supervisor = NewMockSupervisor(ctrl)

	s.hookTools.EXPECT().ConfigGet(gomock.Any()).DoAndReturn(func(context.Context) (map[string]any, error) {
		return s.attrs, nil
	}).AnyTimes()
	s.hookTools.EXPECT().ApplicationVersionSet(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.supervisor.EXPECT().State().DoAndReturn(func() exporter.ProcessState {
		return s.state
	}).AnyTimes()
	return ctrl
}

func (s *engineSuite) newEngine(c *gc.C) *engine.Engine {
	return s.newEngineWith(c, s.supervisor)
}

func (s *engineSuite) newEngineWith(c *gc.C, sup engine.Supervisor) *engine.Engine {
	e, err := engine.NewEngine(engine.Config{
		Unit:       names.NewUnitTag("script-exporter/0"),
		Paths:      s.paths,
		Address:    "localhost",
		Port:       exporter.Port,
		HookTools:  s.hookTools,
		Writer:     artifact.NewWriter(),
		Supervisor: sup,
		Publisher:  s.publisher,
		Metrics:    s.metrics,
		Logger:     s.logger,
	})
	c.Assert(err, jc.ErrorIsNil)
	return e
}

// expectConverge expects one binary and process convergence. The exporter
// reports a restart whenever its inputs differ from the previous call.
func (s *engineSuite) expectConverge() {
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return("", errors.NotFoundf("resource"))
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, inputs string) error {
		n := len(s.inputs)
		s.state.State = exporter.Running
		s.state.Running = true
		s.state.Restarted = n == 0 || s.inputs[n-1] != inputs
		s.inputs = append(s.inputs, inputs)
		return nil
	})
}

func (s *engineSuite) reconcile(c *gc.C, e *engine.Engine) status.StatusInfo {
	info, err := e.Reconcile(context.Background(), "config-changed")
	c.Assert(err, jc.ErrorIsNil)
	return info
}

func (s *engineSuite) readFile(c *gc.C, path string) string {
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	return string(data)
}

func (s *engineSuite) checkMode(c *gc.C, path string, mode os.FileMode) {
	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, mode)
}

func (s *engineSuite) checkNoFiles(c *gc.C) {
	entries, err := os.ReadDir(s.paths.Root)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(entries, gc.HasLen, 0)
}

func (s *engineSuite) TestConfigValidate(c *gc.C) {
	_, err := engine.NewEngine(engine.Config{})
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}

func (s *engineSuite) TestHelloScenario(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectConverge()

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{Status: status.Active, Message: "exporter listening on :9469"})

	c.Check(s.readFile(c, s.paths.SingleScriptPath), gc.Equals, helloScript)
	s.checkMode(c, s.paths.SingleScriptPath, 0755)
	c.Check(s.readFile(c, s.paths.ConfigPath), jc.Contains, "command: /etc/script-exporter-script")
	s.checkMode(c, s.paths.ConfigPath, 0644)
	_, err := os.Stat(s.paths.ScrapeConfigPath)
	c.Check(os.IsNotExist(err), jc.IsTrue)

	pass := s.metrics.last()
	c.Check(pass.FilesChanged, gc.Equals, 2)
	c.Check(pass.Status, gc.Equals, status.Active)
	c.Check(pass.Trigger, gc.Equals, "config-changed")

	c.Assert(s.publisher.published, gc.HasLen, 1)
	jobs := s.publisher.published[0]
	c.Assert(jobs, gc.HasLen, 1)
	c.Check(jobs[0].JobName, gc.Equals, scrape.SelfJobName)
}

func (s *engineSuite) TestWithScrapeFragment(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.attrs["prometheus_config_file"] = pingScrape
	s.expectConverge()

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Active)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 3)
	c.Check(s.metrics.last().JobsPublished, gc.Equals, 2)
	s.checkMode(c, s.paths.ScrapeConfigPath, 0644)

	fragment, err := scrape.Parse(s.readFile(c, s.paths.ScrapeConfigPath))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(fragment.ScrapeConfigs, gc.HasLen, 1)
	relabel := fragment.ScrapeConfigs[0].RelabelConfigs
	c.Check(relabel, jc.DeepEquals, scrape.RelabelBlock("localhost", 9469, names.NewUnitTag("script-exporter/0")))

	c.Assert(s.publisher.published, gc.HasLen, 1)
	jobs := s.publisher.published[0]
	c.Assert(jobs, gc.HasLen, 2)
	c.Check(jobs[0].JobName, gc.Equals, "script-exporter")
	c.Check(jobs[1].JobName, gc.Equals, "script_ping")
	c.Check(jobs[1].RelabelConfigs, jc.DeepEquals, relabel)
}

func (s *engineSuite) TestIdempotent(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.attrs["prometheus_config_file"] = pingScrape
	s.expectConverge()
	s.expectConverge()

	e := s.newEngine(c)
	s.reconcile(c, e)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 3)
	s.reconcile(c, e)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 0)
	c.Check(s.metrics.last().WriteErrors, gc.Equals, 0)
	c.Check(s.metrics.last().Restarted, jc.IsFalse)

	c.Assert(s.inputs, gc.HasLen, 2)
	c.Check(s.inputs[0], gc.Not(gc.Equals), "")
	c.Check(s.inputs[1], gc.Equals, s.inputs[0])
}

func (s *engineSuite) TestConflictBlocksWithoutWrites(c *gc.C) {
	defer s.setupMocks(c).Finish()
	blob, err := archive.Create(archive.ScriptSet{"ping.sh": []byte("#!/bin/sh\n")})
	c.Assert(err, jc.ErrorIsNil)
	s.attrs["scripts_archive"] = blob

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Blocked)
	c.Check(info.Message, jc.Contains, "mutually exclusive")
	s.checkNoFiles(c)
	s.publisher.CheckNoCalls(c)
	c.Check(s.metrics.last().Status, gc.Equals, status.Blocked)
}

func (s *engineSuite) TestMissingConfigWaits(c *gc.C) {
	defer s.setupMocks(c).Finish()
	delete(s.attrs, "config_file")

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Waiting)
	c.Check(info.Message, jc.Contains, `"config_file"`)
	s.checkNoFiles(c)
}

func (s *engineSuite) TestMissingScriptsWaits(c *gc.C) {
	defer s.setupMocks(c).Finish()
	delete(s.attrs, "script_file")

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Waiting)
	s.checkNoFiles(c)
}

func (s *engineSuite) TestScrapeChangeDoesNotRestart(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.attrs["prometheus_config_file"] = pingScrape
	s.expectConverge()
	e := s.newEngine(c)
	s.reconcile(c, e)

	s.attrs["prometheus_config_file"] = pingScrape + "    scrape_interval: 30s\n"
	s.expectConverge()
	info := s.reconcile(c, e)
	c.Check(info.Status, gc.Equals, status.Active)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 1)
	c.Check(s.metrics.last().Restarted, jc.IsFalse)
	c.Check(s.readFile(c, s.paths.ScrapeConfigPath), jc.Contains, "scrape_interval: 30s")
	c.Assert(s.inputs, gc.HasLen, 2)
	c.Check(s.inputs[1], gc.Equals, s.inputs[0])
}

func (s *engineSuite) TestExporterConfigChangeRestarts(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectConverge()
	e := s.newEngine(c)
	s.reconcile(c, e)

	s.attrs["config_file"] = helloConfig + "\n   timeout:\n     max_timeout: 10"
	s.expectConverge()
	s.reconcile(c, e)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 1)
	c.Check(s.metrics.last().Restarted, jc.IsTrue)
	c.Assert(s.inputs, gc.HasLen, 2)
	c.Check(s.inputs[1], gc.Not(gc.Equals), s.inputs[0])
}

func (s *engineSuite) TestScriptChangeRestarts(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectConverge()
	e := s.newEngine(c)
	s.reconcile(c, e)

	s.attrs["script_file"] = "#!/bin/sh\necho changed"
	s.expectConverge()
	s.reconcile(c, e)
	c.Check(s.readFile(c, s.paths.SingleScriptPath), gc.Equals, "#!/bin/sh\necho changed")
	c.Assert(s.inputs, gc.HasLen, 2)
	c.Check(s.inputs[1], gc.Not(gc.Equals), s.inputs[0])
}

func (s *engineSuite) TestArchive(c *gc.C) {
	defer s.setupMocks(c).Finish()
	blob, err := archive.Create(archive.ScriptSet{
		"ping.sh":      []byte("#!/bin/sh\nping -c 1 $1\n"),
		"disk/used.sh": []byte("#!/bin/sh\ndf\n"),
	})
	c.Assert(err, jc.ErrorIsNil)
	delete(s.attrs, "script_file")
	s.attrs["compressed_script_files"] = blob
	s.attrs["config_file"] = `
scripts:
  - name: ping
    command: ping.sh
    args: [127.0.0.1]
  - name: disk
    command: disk/used.sh
  - name: uptime
    command: /usr/bin/uptime
`
	s.expectConverge()

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Active)

	ping := filepath.Join(s.paths.ScriptsDir, "ping.sh")
	used := filepath.Join(s.paths.ScriptsDir, "disk", "used.sh")
	c.Check(s.readFile(c, ping), gc.Equals, "#!/bin/sh\nping -c 1 $1\n")
	c.Check(s.readFile(c, used), gc.Equals, "#!/bin/sh\ndf\n")
	s.checkMode(c, ping, 0755)
	s.checkMode(c, used, 0755)

	config := s.readFile(c, s.paths.ConfigPath)
	c.Check(config, jc.Contains, "command: "+ping)
	c.Check(config, jc.Contains, "command: "+used)
	c.Check(config, jc.Contains, "command: /usr/bin/uptime")
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 3)
}

func (s *engineSuite) TestArchiveTraversalBlocks(c *gc.C) {
	defer s.setupMocks(c).Finish()
	blob, err := archive.Create(archive.ScriptSet{"../evil.sh": []byte("#!/bin/sh\n")})
	c.Assert(err, jc.ErrorIsNil)
	delete(s.attrs, "script_file")
	s.attrs["scripts_archive"] = blob

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Blocked)
	s.checkNoFiles(c)
}

func (s *engineSuite) TestInvalidExporterConfigLeavesExporterAlone(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.attrs["config_file"] = "scripts: not-a-list"

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Blocked)
	c.Check(info.Message, jc.Contains, "invalid exporter config")
	s.checkNoFiles(c)
}

func (s *engineSuite) TestInvalidScrapeConfigBlocks(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.attrs["prometheus_config_file"] = "global: {}"

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info.Status, gc.Equals, status.Blocked)
	c.Check(info.Message, jc.Contains, "invalid scrape config")
	s.checkNoFiles(c)
}

func (s *engineSuite) TestWriteErrorBlocks(c *gc.C) {
	defer s.setupMocks(c).Finish()
	// A file where the exporter directory should be.
	c.Assert(os.MkdirAll(filepath.Dir(s.paths.ExporterDir), 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(s.paths.ExporterDir, []byte("in the way"), 0644), jc.ErrorIsNil)
	s.expectConverge()

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{
		Status:  status.Blocked,
		Message: "cannot write etc/script-exporter/config.yaml",
	})
	c.Check(s.readFile(c, s.paths.SingleScriptPath), gc.Equals, helloScript)
	c.Check(s.metrics.last().WriteErrors, gc.Equals, 1)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 1)
}

func (s *engineSuite) TestResourceBinary(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return("/resources/script_exporter", nil)
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "/resources/script_exporter").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).Return(nil)

	s.reconcile(c, s.newEngine(c))
}

func (s *engineSuite) TestResourceErrorFallsBackToDownload(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return("", errors.New("boom"))
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).Return(nil)

	s.reconcile(c, s.newEngine(c))
	c.Check(s.logger.Messages(loggo.WARNING), jc.DeepEquals, []string{
		`cannot read resource "script-exporter-binary", falling back to download: boom`,
	})
}

func (s *engineSuite) TestWorkloadVersion(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()
	s.hookTools = NewMockHookTools(ctrl)
	s.supervisor = NewMockSupervisor(ctrl)
	s.state.WorkloadVersion = "2.15.1"

	s.hookTools.EXPECT().ConfigGet(gomock.Any()).Return(s.attrs, nil)
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), gomock.Any()).Return("", errors.NotFoundf("resource"))
	s.hookTools.EXPECT().ApplicationVersionSet(gomock.Any(), "2.15.1").Return(errors.New("no hook context"))
	s.supervisor.EXPECT().State().Return(s.state).AnyTimes()
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).Return(nil)

	s.reconcile(c, s.newEngine(c))
	c.Check(s.logger.Messages(loggo.WARNING), jc.DeepEquals, []string{
		"cannot set workload version: no hook context",
	})
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("network unreachable")
}

func (s *engineSuite) TestRestartOwedAfterFailedPass(c *gc.C) {
	ctrl := s.setupMocks(c)
	defer ctrl.Finish()
	svc := NewMockService(ctrl)
	sup, err := exporter.NewSupervisor(exporter.Config{
		Paths:   s.paths,
		Fetcher: failingFetcher{},
		NewService: func(string, common.Conf) (service.Service, error) {
			return svc, nil
		},
	})
	c.Assert(err, jc.ErrorIsNil)

	resource := filepath.Join(c.MkDir(), "script_exporter")
	c.Assert(os.WriteFile(resource, []byte("custom build"), 0644), jc.ErrorIsNil)
	missing := filepath.Join(c.MkDir(), "gone")

	gomock.InOrder(
		s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return(resource, nil),
		s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return(missing, nil),
		s.hookTools.EXPECT().ResourceGet(gomock.Any(), "script-exporter-binary").Return(resource, nil),
	)
	gomock.InOrder(
		svc.EXPECT().Exists().Return(true, nil),
		svc.EXPECT().Running().Return(false, nil),
		svc.EXPECT().Start().Return(nil),
		svc.EXPECT().Running().Return(true, nil),

		svc.EXPECT().Exists().Return(true, nil),
		svc.EXPECT().Running().Return(true, nil),
		svc.EXPECT().Restart().Return(nil),
		svc.EXPECT().Running().Return(true, nil),
	)

	e := s.newEngineWith(c, sup)
	info := s.reconcile(c, e)
	c.Check(info.Status, gc.Equals, status.Active)

	// The new config lands on disk but the binary step fails, so the
	// exporter is not restarted in this pass.
	s.attrs["config_file"] = helloConfig + "\n   timeout:\n     max_timeout: 10"
	info = s.reconcile(c, e)
	c.Check(info.Status, gc.Equals, status.Blocked)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 1)
	c.Check(s.metrics.last().Restarted, jc.IsFalse)

	info = s.reconcile(c, e)
	c.Check(info.Status, gc.Equals, status.Active)
	c.Check(s.metrics.last().FilesChanged, gc.Equals, 0)
	c.Check(s.metrics.last().Restarted, jc.IsTrue)
}

func (s *engineSuite) TestBinaryUnavailable(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), gomock.Any()).Return("", errors.NotFoundf("resource"))
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(
		fmt.Errorf("network unreachable: %w", exporter.BinaryUnavailable))

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{
		Status:  status.Blocked,
		Message: "network unreachable: exporter binary unavailable",
	})
	s.publisher.CheckCallNames(c, "Publish")
}

func (s *engineSuite) TestStartFailure(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), gomock.Any()).Return("", errors.NotFoundf("resource"))
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) error {
		s.state.State = exporter.Failed
		return fmt.Errorf("unit failed: %w", exporter.ProcessStartError)
	})

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{
		Status:  status.Error,
		Message: "unit failed: exporter failed to start",
	})
}

func (s *engineSuite) TestNotRunningWaits(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.hookTools.EXPECT().ResourceGet(gomock.Any(), gomock.Any()).Return("", errors.NotFoundf("resource"))
	s.supervisor.EXPECT().EnsureBinary(gomock.Any(), "").Return(nil)
	s.supervisor.EXPECT().EnsureRunning(gomock.Any(), gomock.Any()).Return(nil)

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{Status: status.Waiting, Message: "exporter not running"})
}

func (s *engineSuite) TestPublishError(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectConverge()
	s.publisher.SetErrors(errors.New("relation-set failed"))

	info := s.reconcile(c, s.newEngine(c))
	c.Check(info, gc.Equals, status.StatusInfo{Status: status.Error, Message: "relation-set failed"})
}

func (s *engineSuite) TestConfigGetError(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()
	s.hookTools = NewMockHookTools(ctrl)
	s.supervisor = NewMockSupervisor(ctrl)
	s.hookTools.EXPECT().ConfigGet(gomock.Any()).Return(nil, errors.New("config-get failed"))

	_, err := s.newEngine(c).Reconcile(context.Background(), "install")
	c.Check(err, gc.ErrorMatches, "reading charm config: config-get failed")
}

func (s *engineSuite) TestTeardown(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.supervisor.EXPECT().Stop().Return(nil)

	c.Assert(os.MkdirAll(s.paths.ExporterDir, 0755), jc.ErrorIsNil)
	info := s.newEngine(c).Teardown(context.Background(), "juju-info-relation-broken")
	c.Check(info, gc.Equals, status.StatusInfo{Status: status.Maintenance, Message: "exporter stopped"})
	_, err := os.Stat(s.paths.ExporterDir)
	c.Check(err, jc.ErrorIsNil)
}

func (s *engineSuite) TestTeardownError(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.supervisor.EXPECT().Stop().Return(errors.New("dbus gone"))

	info := s.newEngine(c).Teardown(context.Background(), "stop")
	c.Check(info, gc.Equals, status.StatusInfo{Status: status.Error, Message: "dbus gone"})
}

func (s *engineSuite) TestIsTeardown(c *gc.C) {
	for _, hook := range []string{"stop", "remove", "juju-info-relation-broken"} {
		c.Check(engine.IsTeardown(hook), jc.IsTrue, gc.Commentf("%s", hook))
	}
	for _, hook := range []string{"install", "config-changed", "cos-agent-relation-broken", "update-status"} {
		c.Check(engine.IsTeardown(hook), jc.IsFalse, gc.Commentf("%s", hook))
	}
}
