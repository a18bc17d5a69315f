// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// The service package provides abstractions and helpers for interacting
// with the exporter's service in a host's init system.
package service
