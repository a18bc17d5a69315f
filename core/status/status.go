// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"fmt"
)

// Status represents the workload status of the unit, as reported to the
// controller through status-set.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status
	Message string
}

// String returns the status and message in the form juju status renders them.
func (i StatusInfo) String() string {
	if i.Message == "" {
		return i.Status.String()
	}
	return fmt.Sprintf("%s: %s", i.Status, i.Message)
}

const (
	// Error is reported when the exporter cannot be brought up and
	// retrying the hook may help. A charm cannot set it directly.
	Error Status = "error"

	// Maintenance is set while the operator is changing the workload,
	// or after it stopped the exporter on teardown.
	Maintenance Status = "maintenance"

	// Waiting means an input the unit needs has not been provided yet.
	Waiting Status = "waiting"

	// Blocked means the operator cannot make progress until someone
	// fixes the configuration or the machine.
	Blocked Status = "blocked"

	// Active means the exporter is running with the desired configuration.
	Active Status = "active"
)

// ValidWorkloadStatus reports whether a charm may set status through
// status-set.
func ValidWorkloadStatus(status Status) bool {
	switch status {
	case
		Blocked,
		Maintenance,
		Waiting,
		Active:
		return true
	default:
		return false
	}
}
