// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"github.com/juju/loggo/v2"

	"github.com/canonical/script-exporter-operator/service/common"
)

var logger = loggo.GetLogger("script-exporter.service")

// These are the names of the supported init systems.
const (
	InitSystemSystemd = "systemd"
	InitSystemPebble  = "pebble"
)

// Service represents a service in the init system running on a host.
type Service interface {
	// Name returns the service's name.
	Name() string

	// Conf returns the service's conf data.
	Conf() common.Conf

	// Install installs the service's conf. Installing an unchanged
	// conf does nothing.
	Install() error

	// Installed returns whether the service is installed.
	Installed() (bool, error)

	// Exists returns whether the installed service matches Conf.
	Exists() (bool, error)

	// Running returns whether the service is running.
	Running() (bool, error)

	// Start starts the service. Starting a running service does nothing.
	Start() error

	// Stop stops the service. Stopping a stopped service does nothing.
	Stop() error

	// Restart restarts the service, starting it if it is stopped.
	Restart() error

	// Remove removes the service.
	Remove() error
}
