// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package exporter installs the script exporter binary and keeps its
// service running.
package exporter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/canonical/script-exporter-operator/internal/paths"
	"github.com/canonical/script-exporter-operator/service"
	"github.com/canonical/script-exporter-operator/service/common"
)

const (
	// BinaryUnavailable is returned when no exporter binary could be
	// installed.
	BinaryUnavailable = errors.ConstError("exporter binary unavailable")

	// ProcessStartError is returned when the exporter service could not be
	// started or restarted.
	ProcessStartError = errors.ConstError("exporter failed to start")
)

// Fetcher downloads a file and verifies its checksum.
type Fetcher interface {
	Fetch(ctx context.Context, url, sha256 string) ([]byte, error)
}

// Logger represents the logging methods used by the supervisor.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warningf(string, ...interface{})
}

// ServiceFactory returns the init system service for the exporter.
type ServiceFactory func(name string, conf common.Conf) (service.Service, error)

// Config holds the dependencies of a Supervisor.
type Config struct {
	Paths      paths.Paths
	Fetcher    Fetcher
	NewService ServiceFactory
	Logger     Logger
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Paths.BinaryPath == "" {
		return errors.NotValidf("empty Paths")
	}
	if c.Fetcher == nil {
		return errors.NotValidf("nil Fetcher")
	}
	if c.NewService == nil {
		return errors.NotValidf("nil NewService")
	}
	return nil
}

// Supervisor installs the exporter binary and drives its service through
// NotInstalled, Stopped, Running and Failed.
type Supervisor struct {
	cfg   Config
	state ProcessState
	svc   service.Service
}

// NewSupervisor returns a Supervisor whose initial state reflects the
// binary found on disk.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Logger == nil {
		cfg.Logger = loggo.GetLogger("script-exporter.exporter")
	}
	s := &Supervisor{cfg: cfg}
	if sum, present := s.installedSHA256(); present {
		s.state.BinaryPresent = true
		s.state.BinaryVersion = sum
		s.state.State = Stopped
	}
	return s, nil
}

// ServiceConf returns the init system definition of the exporter.
func ServiceConf(p paths.Paths) common.Conf {
	return common.Conf{
		Desc: "Prometheus script exporter",
		ExecStart: utils.CommandString(
			p.BinaryPath,
			"--config.file="+p.ConfigPath,
			"--web.listen-address=:"+strconv.Itoa(Port),
		),
		Limit: map[string]string{
			"NPROC":  "infinity",
			"NOFILE": "infinity",
		},
	}
}

// State returns a snapshot of the exporter's state.
func (s *Supervisor) State() ProcessState {
	return s.state
}

func (s *Supervisor) installedSHA256() (string, bool) {
	sum, _, err := utils.ReadFileSHA256(s.cfg.Paths.BinaryPath)
	if err != nil {
		return "", false
	}
	return sum, true
}

// EnsureBinary installs the exporter binary. A non-empty resource at
// resourcePath is copied verbatim; otherwise the pinned release is
// downloaded. Nothing is written when the installed binary already
// matches. On failure the previously installed binary is left in place.
func (s *Supervisor) EnsureBinary(ctx context.Context, resourcePath string) error {
	s.state.Restarted = false
	err := s.ensureBinary(ctx, resourcePath)
	if err != nil {
		s.state.Err = err
		if !s.state.BinaryPresent {
			s.state.State = NotInstalled
		}
		return fmt.Errorf("%v: %w", err, BinaryUnavailable)
	}
	return nil
}

func (s *Supervisor) ensureBinary(ctx context.Context, resourcePath string) error {
	var resource []byte
	if resourcePath != "" {
		data, err := os.ReadFile(resourcePath)
		if err != nil {
			return errors.Annotatef(err, "reading resource %q", paths.BinaryResourceName)
		}
		resource = data
	}

	target, workloadVersion := ReleaseSHA256, ReleaseVersion.String()
	if len(resource) > 0 {
		hash := sha256.Sum256(resource)
		target = hex.EncodeToString(hash[:])
		workloadVersion = target[:12]
	}

	if sum, present := s.installedSHA256(); present && sum == target {
		s.cfg.Logger.Debugf("exporter binary %s already installed", workloadVersion)
		s.recordBinary(target, workloadVersion)
		return nil
	}

	data := resource
	if len(data) == 0 {
		s.cfg.Logger.Infof("downloading script exporter %s", ReleaseVersion)
		fetched, err := s.cfg.Fetcher.Fetch(ctx, ReleaseURL(), ReleaseSHA256)
		if err != nil {
			return errors.Trace(err)
		}
		data = fetched
	} else {
		s.cfg.Logger.Infof("installing script exporter from resource %q", paths.BinaryResourceName)
	}

	binaryPath := s.cfg.Paths.BinaryPath
	if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(binaryPath, data, 0755); err != nil {
		return errors.Annotatef(err, "installing %q", binaryPath)
	}
	s.recordBinary(target, workloadVersion)
	return nil
}

func (s *Supervisor) recordBinary(sum, workloadVersion string) {
	s.state.BinaryPresent = true
	s.state.BinaryVersion = sum
	s.state.WorkloadVersion = workloadVersion
	s.state.Err = nil
	if s.state.State == NotInstalled {
		s.state.State = Stopped
	}
}

func (s *Supervisor) service() (service.Service, error) {
	if s.svc != nil {
		return s.svc, nil
	}
	svc, err := s.cfg.NewService(paths.ServiceName, ServiceConf(s.cfg.Paths))
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.svc = svc
	return svc, nil
}

// EnsureRunning installs or refreshes the service definition and makes
// sure the exporter runs. inputs identifies the configuration and scripts
// on disk. A running exporter is restarted when inputs or the installed
// binary differ from what it was last started with, or when the service
// definition changed. The applied record is only updated once the exporter
// is seen running, so a pass that fails part way leaves the restart owed.
// A failed start is not retried.
func (s *Supervisor) EnsureRunning(ctx context.Context, inputs string) error {
	if !s.state.BinaryPresent {
		return fmt.Errorf("cannot run exporter: %w", BinaryUnavailable)
	}
	svc, err := s.service()
	if err != nil {
		return s.failed(err)
	}

	same, err := svc.Exists()
	if err != nil {
		return s.failed(err)
	}
	if !same {
		if err := svc.Install(); err != nil {
			return s.failed(err)
		}
	}

	running, err := svc.Running()
	if err != nil {
		return s.failed(err)
	}
	desired := appliedRecord(s.state.BinaryVersion, inputs)
	applied := s.readApplied()
	s.state.Restarted = false
	switch {
	case !running:
		s.cfg.Logger.Infof("starting %s", paths.ServiceName)
		if err := svc.Start(); err != nil {
			return s.failed(err)
		}
		s.state.Restarted = true
	case applied != desired || !same:
		s.cfg.Logger.Infof("restarting %s (inputs changed: %v, unit changed: %v)",
			paths.ServiceName, applied != desired, !same)
		if err := svc.Restart(); err != nil {
			return s.failed(err)
		}
		s.state.Restarted = true
	default:
		s.cfg.Logger.Debugf("%s already running", paths.ServiceName)
	}

	running, err = svc.Running()
	if err != nil {
		return s.failed(err)
	}
	if !running {
		return s.failed(errors.Errorf("%s is not running after start", paths.ServiceName))
	}
	s.state.Running = true
	s.state.State = Running
	s.state.Err = nil
	if applied != desired {
		if err := s.writeApplied(desired); err != nil {
			s.cfg.Logger.Warningf("cannot record applied inputs: %v", err)
		}
	}
	return nil
}

func appliedRecord(binary, inputs string) string {
	return fmt.Sprintf("binary: %s\ninputs: %s\n", binary, inputs)
}

func (s *Supervisor) readApplied() string {
	data, err := os.ReadFile(s.cfg.Paths.AppliedPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.cfg.Logger.Warningf("cannot read applied inputs: %v", err)
		}
		return ""
	}
	return string(data)
}

func (s *Supervisor) writeApplied(record string) error {
	path := s.cfg.Paths.AppliedPath
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.AtomicWriteFile(path, []byte(record), 0644))
}

func (s *Supervisor) failed(err error) error {
	s.state.State = Failed
	s.state.Running = false
	s.state.Err = err
	return fmt.Errorf("%v: %w", err, ProcessStartError)
}

// Stop stops the exporter. Installed files are left in place.
func (s *Supervisor) Stop() error {
	svc, err := s.service()
	if err != nil {
		return errors.Trace(err)
	}
	if err := svc.Stop(); err != nil {
		return errors.Annotatef(err, "stopping %s", paths.ServiceName)
	}
	s.state.Running = false
	if s.state.BinaryPresent {
		s.state.State = Stopped
	} else {
		s.state.State = NotInstalled
	}
	return nil
}
