// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"github.com/coreos/go-systemd/v22/dbus"
)

// DBusAPI describes the systemd dbus calls made by Service.
// *dbus.Conn satisfies it.
type DBusAPI interface {
	Close()
	ListUnitsByNames([]string) ([]dbus.UnitStatus, error)
	StartUnit(string, string, chan<- string) (int, error)
	StopUnit(string, string, chan<- string) (int, error)
	RestartUnit(string, string, chan<- string) (int, error)
	EnableUnitFiles([]string, bool, bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFiles([]string, bool) ([]dbus.DisableUnitFileChange, error)
	Reload() error
}

// DBusAPIFactory opens a connection to systemd.
type DBusAPIFactory = func() (DBusAPI, error)

// NewDBusAPI connects to the system bus.
func NewDBusAPI() (DBusAPI, error) {
	return dbus.New()
}
