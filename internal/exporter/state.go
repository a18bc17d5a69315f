// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package exporter

// State is the lifecycle state of the exporter process.
type State int

const (
	NotInstalled State = iota
	Stopped
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case NotInstalled:
		return "not-installed"
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ProcessState is a snapshot of what the supervisor knows about the
// exporter.
type ProcessState struct {
	State State

	// BinaryPresent is true once an executable is installed.
	BinaryPresent bool

	// BinaryVersion is the SHA-256 of the installed binary.
	BinaryVersion string

	// WorkloadVersion is the human readable version of the installed
	// binary.
	WorkloadVersion string

	// Running reports whether the service was running when last checked.
	Running bool

	// Restarted is set when the last EnsureRunning started or restarted
	// the service.
	Restarted bool

	// Err holds the last binary or process failure, if any.
	Err error
}
