// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package common

import (
	"sort"

	"github.com/juju/errors"
)

// Conf is responsible for defining services. Its fields
// represent elements of a service configuration.
type Conf struct {
	// Desc is the service's description.
	Desc string
	// Env holds the environment variables that will be set when the command runs.
	Env map[string]string
	// Limit holds the resource limits applied to the process, keyed by
	// systemd directive name without the "Limit" prefix (e.g. "NOFILE").
	Limit map[string]string
	// ExecStart is the command (with arguments) that will be run.
	// The command is restarted whenever it exits.
	ExecStart string
}

// IsZero determines whether or not the conf is a zero value.
func (c Conf) IsZero() bool {
	return c.Desc == "" && c.ExecStart == "" && len(c.Env) == 0 && len(c.Limit) == 0
}

// Validate checks the conf's values for correctness.
func (c Conf) Validate() error {
	if c.Desc == "" {
		return errors.NotValidf("missing Desc")
	}
	if c.ExecStart == "" {
		return errors.NotValidf("missing ExecStart")
	}
	for key := range c.Env {
		if key == "" {
			return errors.NotValidf("empty environment variable name")
		}
	}
	return nil
}

// EnvKeys returns the environment variable names in sorted order.
func (c Conf) EnvKeys() []string {
	return sortedKeys(c.Env)
}

// LimitKeys returns the limit names in sorted order.
func (c Conf) LimitKeys() []string {
	return sortedKeys(c.Limit)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Service is the base type for application.Service implementations.
type Service struct {
	// Name is the name of the service.
	Name string

	// Conf holds the info used to build an init system conf.
	Conf Conf
}

// NoConf checks whether or not Conf has been set.
func (s Service) NoConf() bool {
	return s.Conf.IsZero()
}

// Validate checks the service for invalid values.
func (s Service) Validate() error {
	if s.Name == "" {
		return errors.NotValidf("missing Name")
	}
	return errors.Trace(s.Conf.Validate())
}
