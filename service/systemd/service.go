// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/canonical/script-exporter-operator/service/common"
)

const (
	EtcSystemdDir = "/etc/systemd/system"

	// jobTimeout bounds how long a start, stop or restart job may take.
	jobTimeout = time.Minute
)

var (
	logger = loggo.GetLogger("script-exporter.service.systemd")

	isRunning = util.IsRunningSystemd
)

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return isRunning()
}

// Service provides visibility into and control over a systemd service.
type Service struct {
	common.Service

	UnitName string
	DirName  string

	newDBus DBusAPIFactory
	clock   clock.Clock
}

// NewServiceWithDefaults returns a new systemd service reference whose
// unit file lives under root.
func NewServiceWithDefaults(name string, conf common.Conf, root string) (*Service, error) {
	svc, err := NewService(name, conf, filepath.Join(root, EtcSystemdDir), NewDBusAPI, clock.WallClock)
	return svc, errors.Trace(err)
}

// NewService returns a new reference to an object that implements the Service
// interface for systemd.
func NewService(
	name string, conf common.Conf, dirName string, newDBus DBusAPIFactory, clock clock.Clock,
) (*Service, error) {
	service := &Service{
		Service: common.Service{
			Name: name,
			Conf: conf,
		},
		UnitName: name + ".service",
		DirName:  dirName,
		newDBus:  newDBus,
		clock:    clock,
	}
	if !conf.IsZero() {
		if err := service.Service.Validate(); err != nil {
			return nil, service.errorf(err, "invalid conf")
		}
	}
	return service, nil
}

func (s *Service) errorf(err error, msg string, args ...interface{}) error {
	msg += " for service %q"
	args = append(args, s.Service.Name)
	if err == nil {
		err = errors.Errorf(msg, args...)
	} else {
		err = errors.Annotatef(err, msg, args...)
	}
	logger.Errorf("%v", err)
	return err
}

// Name implements service.Service.
func (s *Service) Name() string {
	return s.Service.Name
}

// Conf implements service.Service.
func (s *Service) Conf() common.Conf {
	return s.Service.Conf
}

func (s *Service) unitPath() string {
	return filepath.Join(s.DirName, s.UnitName)
}

// Installed implements Service. A service is installed when its unit
// file is present.
func (s *Service) Installed() (bool, error) {
	_, err := os.Stat(s.unitPath())
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, s.errorf(err, "failed to stat unit file")
	}
	return true, nil
}

// Exists implements Service. It reports whether the installed unit file
// matches the current conf.
func (s *Service) Exists() (bool, error) {
	if s.NoConf() {
		return false, s.errorf(nil, "no conf expected")
	}
	want, err := serialize(s.Service.Conf)
	if err != nil {
		return false, s.errorf(err, "failed to serialize conf")
	}
	got, err := os.ReadFile(s.unitPath())
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, s.errorf(err, "failed to read unit file")
	}
	return bytes.Equal(got, want), nil
}

func (s *Service) newConn() (DBusAPI, error) {
	conn, err := s.newDBus()
	if err != nil {
		logger.Errorf("failed to connect to dbus for service %q: %v", s.Service.Name, err)
	}
	return conn, err
}

// Running implements Service.
func (s *Service) Running() (bool, error) {
	conn, err := s.newConn()
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNames([]string{s.UnitName})
	if err != nil {
		return false, s.errorf(err, "failed to query services from dbus")
	}
	for _, unit := range units {
		if unit.Name == s.UnitName {
			return unit.LoadState == "loaded" && unit.ActiveState == "active", nil
		}
	}
	return false, nil
}

// Start implements Service.
func (s *Service) Start() error {
	err := s.start()
	if errors.Is(err, errors.AlreadyExists) {
		logger.Debugf("service %q already running", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("service %q failed to start: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully started", s.Name())
	return nil
}

func (s *Service) start() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if !installed {
		return errors.NotFoundf("service %s", s.Service.Name)
	}
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		return errors.AlreadyExistsf("running service %s", s.Service.Name)
	}
	return s.runJob("start", DBusAPI.StartUnit)
}

// Stop implements Service.
func (s *Service) Stop() error {
	err := s.stop()
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("service %q not running", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("service %q failed to stop: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully stopped", s.Name())
	return nil
}

func (s *Service) stop() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		return errors.NotFoundf("running service %s", s.Service.Name)
	}
	return s.runJob("stop", DBusAPI.StopUnit)
}

// Restart implements Service. A stopped service is started.
func (s *Service) Restart() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if !installed {
		return errors.NotFoundf("service %s", s.Service.Name)
	}
	if err := s.runJob("restart", DBusAPI.RestartUnit); err != nil {
		logger.Errorf("service %q failed to restart: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully restarted", s.Name())
	return nil
}

type jobFunc func(conn DBusAPI, name, mode string, ch chan<- string) (int, error)

func (s *Service) runJob(op string, job jobFunc) error {
	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := job(conn, s.UnitName, "replace", statusCh); err != nil {
		return s.errorf(err, "dbus %s request failed", op)
	}
	select {
	case status := <-statusCh:
		if status != "done" {
			return s.errorf(nil, "failed to %s (job result %q)", op, status)
		}
	case <-s.clock.After(jobTimeout):
		return s.errorf(nil, "timed out waiting to %s", op)
	}
	return nil
}

// Remove implements Service.
func (s *Service) Remove() error {
	err := s.remove()
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("service %q not installed", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("failed to remove service %q: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully removed", s.Name())
	return nil
}

func (s *Service) remove() error {
	installed, err := s.Installed()
	if err != nil {
		return errors.Trace(err)
	}
	if !installed {
		return errors.NotFoundf("service %s", s.Service.Name)
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	if _, err := conn.DisableUnitFiles([]string{s.UnitName}, false); err != nil {
		return s.errorf(err, "dbus disable request failed")
	}
	if err := conn.Reload(); err != nil {
		return s.errorf(err, "dbus post-disable daemon reload request failed")
	}
	if err := os.Remove(s.unitPath()); err != nil {
		return s.errorf(err, "failed to delete service unit file")
	}
	return nil
}

// Install implements Service. Installing an unchanged unit is a no-op.
func (s *Service) Install() error {
	if s.NoConf() {
		return s.errorf(nil, "missing conf")
	}

	err := s.install()
	if errors.Is(err, errors.AlreadyExists) {
		logger.Debugf("service %q already installed", s.Name())
		return nil
	} else if err != nil {
		logger.Errorf("failed to install service %q: %v", s.Name(), err)
		return err
	}
	logger.Debugf("service %q successfully installed", s.Name())
	return nil
}

func (s *Service) install() error {
	same, err := s.Exists()
	if err != nil {
		return errors.Trace(err)
	}
	if same {
		return errors.AlreadyExistsf("service %s", s.Service.Name)
	}
	return s.WriteService()
}

// WriteService writes the unit file for the service and ensures that it
// is enabled by systemd.
func (s *Service) WriteService() error {
	data, err := serialize(s.Service.Conf)
	if err != nil {
		return s.errorf(err, "failed to serialize conf")
	}
	if err := os.MkdirAll(s.DirName, 0755); err != nil {
		return s.errorf(err, "failed to create %q", s.DirName)
	}
	filename := s.unitPath()
	if err := utils.AtomicWriteFile(filename, data, 0644); err != nil {
		return s.errorf(err, "failed to write conf file %q", filename)
	}

	// If systemd is not the running init system,
	// then do not attempt to use it for enabling unit files.
	if !IsRunning() {
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	if err := conn.Reload(); err != nil {
		return s.errorf(err, "dbus post-write daemon reload request failed")
	}
	const runtime, force = false, true
	if _, _, err := conn.EnableUnitFiles([]string{filename}, runtime, force); err != nil {
		return s.errorf(err, "dbus enable request failed")
	}
	return nil
}
