// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"os"

	"github.com/juju/errors"

	"github.com/canonical/script-exporter-operator/service/common"
	"github.com/canonical/script-exporter-operator/service/pebble"
	"github.com/canonical/script-exporter-operator/service/systemd"
)

// PebbleSocketEnvKey names the environment variable pointing at the
// Pebble daemon's socket in a container.
const PebbleSocketEnvKey = "PEBBLE_SOCKET"

// These exist to allow patching during tests.
var (
	getenv           = os.Getenv
	systemdIsRunning = systemd.IsRunning
	newPebbleClient  = pebble.NewClient
)

// DiscoverService returns an interface to a service appropriate
// for the current system. Systemd unit files are written under root.
func DiscoverService(name string, conf common.Conf, root string) (Service, error) {
	initName, err := discoverInitSystem()
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("discovered init system %q", initName)

	switch initName {
	case InitSystemPebble:
		client, err := newPebbleClient(getenv(PebbleSocketEnvKey))
		if err != nil {
			return nil, errors.Trace(err)
		}
		svc, err := pebble.NewService(name, conf, client)
		return svc, errors.Trace(err)
	default:
		svc, err := systemd.NewServiceWithDefaults(name, conf, root)
		return svc, errors.Trace(err)
	}
}

func discoverInitSystem() (string, error) {
	if getenv(PebbleSocketEnvKey) != "" {
		return InitSystemPebble, nil
	}
	if systemdIsRunning() {
		return InitSystemSystemd, nil
	}
	return "", errors.NotFoundf("init system (based on local host)")
}
