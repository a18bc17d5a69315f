// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package paths

import (
	"path/filepath"
	"strings"
)

const (
	// ServiceName is the name of the init system service running the
	// exporter.
	ServiceName = "script-exporter"

	// BinaryResourceName is the name of the charm resource that may carry a
	// pre-supplied exporter binary.
	BinaryResourceName = "script-exporter-binary"
)

// Paths represents the set of filesystem paths the operator has reason to
// care about. Every path is absolute and lives under Root, which is "/" on a
// real machine.
type Paths struct {
	// Root is the directory every other path is relative to.
	Root string

	// BinaryPath is where the exporter executable is installed.
	BinaryPath string

	// ExporterDir holds the exporter configuration and the scripts
	// directory.
	ExporterDir string

	// ScriptsDir is the root under which archive scripts are materialised,
	// preserving their relative paths.
	ScriptsDir string

	// SingleScriptPath is where the script_file option is written.
	SingleScriptPath string

	// ConfigPath is the exporter's own YAML configuration.
	ConfigPath string

	// ScrapeConfigPath holds the generated Prometheus scrape jobs.
	ScrapeConfigPath string

	// StateDir holds operator owned state, such as the metrics textfile.
	StateDir string

	// MetricsPath is the Prometheus textfile the operator writes its own
	// reconciliation metrics to.
	MetricsPath string

	// AppliedPath records the inputs the running exporter was last started
	// with.
	AppliedPath string
}

// New returns the set of filesystem paths rooted at the supplied directory.
func New(root string) Paths {
	if root == "" {
		root = "/"
	}
	join := func(elem ...string) string {
		return filepath.Join(append([]string{root}, elem...)...)
	}
	exporterDir := join("etc", "script-exporter")
	stateDir := join("var", "lib", "script-exporter-operator")
	return Paths{
		Root:             root,
		BinaryPath:       join("usr", "local", "bin", "script_exporter"),
		ExporterDir:      exporterDir,
		ScriptsDir:       filepath.Join(exporterDir, "scripts"),
		SingleScriptPath: join("etc", "script-exporter-script"),
		ConfigPath:       filepath.Join(exporterDir, "config.yaml"),
		ScrapeConfigPath: filepath.Join(exporterDir, "prometheus.yaml"),
		StateDir:         stateDir,
		MetricsPath:      filepath.Join(stateDir, "metrics.prom"),
		AppliedPath:      filepath.Join(stateDir, "applied"),
	}
}

// Rel returns p relative to Root, in slash form, as expected by the
// artifact writer. Paths outside Root are returned unchanged.
func (p Paths) Rel(path string) string {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// Script returns the absolute path of an archive script given its path
// relative to the scripts directory.
func (p Paths) Script(rel string) string {
	return filepath.Join(p.ScriptsDir, filepath.FromSlash(rel))
}
