// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package unitstatus maps the outcome of a reconciliation pass to the
// single workload status published for the unit.
package unitstatus

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/canonical/script-exporter-operator/core/status"
	"github.com/canonical/script-exporter-operator/internal/archive"
	"github.com/canonical/script-exporter-operator/internal/artifact"
	"github.com/canonical/script-exporter-operator/internal/charmconfig"
	"github.com/canonical/script-exporter-operator/internal/exporter"
	"github.com/canonical/script-exporter-operator/internal/exporterconfig"
	"github.com/canonical/script-exporter-operator/internal/scrape"
)

// Outcome is what a pass learned about the unit.
type Outcome struct {
	// Errors holds every error recorded during the pass.
	Errors []error

	// Process is the supervisor's state at the end of the pass.
	Process exporter.ProcessState

	// Port is the port the exporter listens on.
	Port int
}

type rule struct {
	status status.Status
	match  func(error) bool
	render func(error) string
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

func message(err error) string {
	return err.Error()
}

func writeMessage(err error) string {
	var pathErrs artifact.PathErrors
	if errors.As(err, &pathErrs) {
		return fmt.Sprintf("cannot write %s", strings.Join(pathErrs.Paths(), ", "))
	}
	return err.Error()
}

// rules are ordered from the highest priority down.
var rules = []rule{{
	status: status.Blocked,
	match:  is(charmconfig.ConflictError),
	render: message,
}, {
	status: status.Waiting,
	match:  is(charmconfig.MissingError),
	render: message,
}, {
	status: status.Blocked,
	match: is(
		charmconfig.InvalidConfigError,
		exporterconfig.ParseError,
		scrape.InvalidScrapeConfigError,
		archive.EncodingError,
		archive.FormatError,
		archive.PathTraversalError,
	),
	render: message,
}, {
	status: status.Blocked,
	match:  is(artifact.WriteError),
	render: writeMessage,
}, {
	status: status.Blocked,
	match:  is(exporter.BinaryUnavailable),
	render: message,
}, {
	status: status.Error,
	match:  is(exporter.ProcessStartError),
	render: message,
}, {
	status: status.Error,
	match:  func(error) bool { return true },
	render: message,
}}

// Compute returns the status for outcome. Exactly one status is returned:
// the one for the highest priority error, then waiting when the exporter
// is not running, else active.
func Compute(outcome Outcome) status.StatusInfo {
	for _, r := range rules {
		for _, err := range outcome.Errors {
			if err != nil && r.match(err) {
				return status.StatusInfo{Status: r.status, Message: r.render(err)}
			}
		}
	}
	if !outcome.Process.Running {
		return status.StatusInfo{Status: status.Waiting, Message: "exporter not running"}
	}
	return status.StatusInfo{
		Status:  status.Active,
		Message: fmt.Sprintf("exporter listening on :%d", outcome.Port),
	}
}
