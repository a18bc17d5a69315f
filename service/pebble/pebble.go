// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pebble manages a service through a Pebble daemon, for units
// running inside a container.
package pebble

import (
	"time"

	"github.com/canonical/pebble/client"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v3"

	"github.com/canonical/script-exporter-operator/service/common"
)

var logger = loggo.GetLogger("script-exporter.service.pebble")

const changeTimeout = time.Minute

// Client is the subset of the Pebble client used by Service.
type Client interface {
	AddLayer(*client.AddLayerOptions) error
	PlanBytes(*client.PlanOptions) ([]byte, error)
	Services(*client.ServicesOptions) ([]*client.ServiceInfo, error)
	Start(*client.ServiceOptions) (string, error)
	Stop(*client.ServiceOptions) (string, error)
	Restart(*client.ServiceOptions) (string, error)
	WaitChange(string, *client.WaitChangeOptions) (*client.Change, error)
}

// NewClient connects to the Pebble daemon listening on socket.
func NewClient(socket string) (Client, error) {
	c, err := client.New(&client.Config{Socket: socket})
	if err != nil {
		return nil, errors.Annotatef(err, "connecting to pebble at %q", socket)
	}
	return c, nil
}

type layer struct {
	Summary  string                  `yaml:"summary"`
	Services map[string]layerService `yaml:"services"`
}

type layerService struct {
	Override    string            `yaml:"override,omitempty"`
	Summary     string            `yaml:"summary,omitempty"`
	Command     string            `yaml:"command"`
	Startup     string            `yaml:"startup,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// Service provides visibility into and control over a Pebble service.
type Service struct {
	common.Service

	client Client
}

// NewService returns a Service managed through client.
func NewService(name string, conf common.Conf, client Client) (*Service, error) {
	svc := &Service{
		Service: common.Service{Name: name, Conf: conf},
		client:  client,
	}
	if !conf.IsZero() {
		if err := svc.Service.Validate(); err != nil {
			return nil, errors.Annotatef(err, "invalid conf for service %q", name)
		}
	}
	return svc, nil
}

// Name implements service.Service.
func (s *Service) Name() string {
	return s.Service.Name
}

// Conf implements service.Service.
func (s *Service) Conf() common.Conf {
	return s.Service.Conf
}

// layerService renders the conf as a Pebble layer entry. Pebble layers
// have no resource limit settings, so Conf.Limit is not carried over.
func (s *Service) layerService() layerService {
	env := s.Service.Conf.Env
	if len(env) == 0 {
		env = nil
	}
	return layerService{
		Override:    "replace",
		Summary:     s.Service.Conf.Desc,
		Command:     s.Service.Conf.ExecStart,
		Startup:     "enabled",
		Environment: env,
	}
}

func (s *Service) plannedService() (*layerService, error) {
	data, err := s.client.PlanBytes(&client.PlanOptions{})
	if err != nil {
		return nil, errors.Annotate(err, "reading pebble plan")
	}
	var plan layer
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.Annotate(err, "parsing pebble plan")
	}
	svc, ok := plan.Services[s.Service.Name]
	if !ok {
		return nil, nil
	}
	return &svc, nil
}

// Installed implements Service.
func (s *Service) Installed() (bool, error) {
	svc, err := s.plannedService()
	if err != nil {
		return false, errors.Trace(err)
	}
	return svc != nil, nil
}

// Exists implements Service. It reports whether the plan runs the
// service as the current conf describes.
func (s *Service) Exists() (bool, error) {
	if s.NoConf() {
		return false, errors.Errorf("no conf expected for service %q", s.Service.Name)
	}
	svc, err := s.plannedService()
	if err != nil || svc == nil {
		return false, errors.Trace(err)
	}
	want := s.layerService()
	if svc.Command != want.Command || len(svc.Environment) != len(want.Environment) {
		return false, nil
	}
	for k, v := range want.Environment {
		if svc.Environment[k] != v {
			return false, nil
		}
	}
	return true, nil
}

// Install implements Service.
func (s *Service) Install() error {
	if s.NoConf() {
		return errors.Errorf("missing conf for service %q", s.Service.Name)
	}
	same, err := s.Exists()
	if err != nil {
		return errors.Trace(err)
	}
	if same {
		logger.Debugf("service %q already installed", s.Service.Name)
		return nil
	}
	data, err := yaml.Marshal(layer{
		Summary:  s.Service.Conf.Desc,
		Services: map[string]layerService{s.Service.Name: s.layerService()},
	})
	if err != nil {
		return errors.Trace(err)
	}
	err = s.client.AddLayer(&client.AddLayerOptions{
		Combine:   true,
		Label:     s.Service.Name,
		LayerData: data,
	})
	if err != nil {
		return errors.Annotatef(err, "adding pebble layer for service %q", s.Service.Name)
	}
	logger.Debugf("service %q successfully installed", s.Service.Name)
	return nil
}

// Running implements Service.
func (s *Service) Running() (bool, error) {
	infos, err := s.client.Services(&client.ServicesOptions{Names: []string{s.Service.Name}})
	if err != nil {
		return false, errors.Annotatef(err, "querying pebble service %q", s.Service.Name)
	}
	for _, info := range infos {
		if info.Name == s.Service.Name {
			return info.Current == client.StatusActive, nil
		}
	}
	return false, nil
}

// Start implements Service.
func (s *Service) Start() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		logger.Debugf("service %q already running", s.Service.Name)
		return nil
	}
	return s.change("start", s.client.Start)
}

// Stop implements Service.
func (s *Service) Stop() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		logger.Debugf("service %q not running", s.Service.Name)
		return nil
	}
	return s.change("stop", s.client.Stop)
}

// Restart implements Service.
func (s *Service) Restart() error {
	return s.change("restart", s.client.Restart)
}

// Remove implements Service. Pebble cannot drop a layer, so the service
// is only stopped.
func (s *Service) Remove() error {
	return errors.Trace(s.Stop())
}

func (s *Service) change(op string, do func(*client.ServiceOptions) (string, error)) error {
	id, err := do(&client.ServiceOptions{Names: []string{s.Service.Name}})
	if err != nil {
		return errors.Annotatef(err, "cannot %s service %q", op, s.Service.Name)
	}
	change, err := s.client.WaitChange(id, &client.WaitChangeOptions{Timeout: changeTimeout})
	if err != nil {
		return errors.Annotatef(err, "waiting to %s service %q", op, s.Service.Name)
	}
	if change.Err != "" {
		return errors.Errorf("cannot %s service %q: %s", op, s.Service.Name, change.Err)
	}
	logger.Debugf("service %q successfully %s", s.Service.Name, pastTense[op])
	return nil
}

var pastTense = map[string]string{
	"start":   "started",
	"stop":    "stopped",
	"restart": "restarted",
}
