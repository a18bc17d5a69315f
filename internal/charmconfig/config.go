// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charmconfig validates the charm's configuration options.
package charmconfig

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

const (
	ScriptFileKey           = "script_file"
	ConfigFileKey           = "config_file"
	PrometheusConfigFileKey = "prometheus_config_file"
	ScriptsArchiveKey       = "scripts_archive"

	// legacyScriptsArchiveKey is the name scripts_archive had in early
	// revisions of the charm.
	legacyScriptsArchiveKey = "compressed_script_files"
)

const (
	// ConflictError is returned when mutually exclusive options are set
	// together.
	ConflictError = errors.ConstError("conflicting config options")

	// MissingError is returned when a required option is not set.
	MissingError = errors.ConstError("missing required config")

	// InvalidConfigError is returned when an option has the wrong type.
	InvalidConfigError = errors.ConstError("invalid charm config")
)

var configSchema = environschema.Fields{
	ScriptFileKey: {
		Description: "A single script, written to a fixed path and made executable.",
		Type:        environschema.Tstring,
	},
	ConfigFileKey: {
		Description: "The script exporter configuration file, in YAML.",
		Type:        environschema.Tstring,
	},
	PrometheusConfigFileKey: {
		Description: "Prometheus scrape jobs to run against the exporter, in YAML.",
		Type:        environschema.Tstring,
	},
	ScriptsArchiveKey: {
		Description: "A base64 encoded, LZMA compressed tar archive of scripts.",
		Type:        environschema.Tstring,
	},
}

var configDefaults = schema.Defaults{
	ScriptFileKey:           "",
	ConfigFileKey:           "",
	PrometheusConfigFileKey: "",
	ScriptsArchiveKey:       "",
}

var configFields = func() schema.Fields {
	fs, _, err := configSchema.ValidationSchema()
	if err != nil {
		panic(err)
	}
	return fs
}()

// Schema returns the configuration schema of the charm.
func Schema() environschema.Fields {
	return configSchema
}

// RawConfig holds the configuration options as received.
type RawConfig struct {
	ScriptFile           string
	ConfigFile           string
	PrometheusConfigFile string
	ScriptsArchive       string
}

// Parse coerces the attributes returned by config-get into a RawConfig.
// Unknown attributes are ignored.
func Parse(attrs map[string]any) (RawConfig, error) {
	in := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if v == nil {
			continue
		}
		in[k] = v
	}
	if legacy, ok := in[legacyScriptsArchiveKey].(string); ok && legacy != "" {
		if current, _ := in[ScriptsArchiveKey].(string); current == "" {
			in[ScriptsArchiveKey] = legacy
		}
	}
	delete(in, legacyScriptsArchiveKey)

	coerced, err := schema.FieldMap(configFields, configDefaults).Coerce(in, nil)
	if err != nil {
		return RawConfig{}, fmt.Errorf("%v: %w", err, InvalidConfigError)
	}
	valid := coerced.(map[string]any)
	return RawConfig{
		ScriptFile:           valid[ScriptFileKey].(string),
		ConfigFile:           valid[ConfigFileKey].(string),
		PrometheusConfigFile: valid[PrometheusConfigFileKey].(string),
		ScriptsArchive:       valid[ScriptsArchiveKey].(string),
	}, nil
}

// HasScriptFile reports whether the single script option is set.
func (c RawConfig) HasScriptFile() bool {
	return strings.TrimSpace(c.ScriptFile) != ""
}

// HasScriptsArchive reports whether the scripts archive option is set.
func (c RawConfig) HasScriptsArchive() bool {
	return strings.TrimSpace(c.ScriptsArchive) != ""
}

// HasConfigFile reports whether the exporter configuration is set.
func (c RawConfig) HasConfigFile() bool {
	return strings.TrimSpace(c.ConfigFile) != ""
}

// HasPrometheusConfigFile reports whether scrape jobs are configured.
func (c RawConfig) HasPrometheusConfigFile() bool {
	return strings.TrimSpace(c.PrometheusConfigFile) != ""
}

// Validate checks the relationships between options. A conflict takes
// precedence over missing options.
func (c RawConfig) Validate() error {
	if c.HasScriptFile() && c.HasScriptsArchive() {
		return fmt.Errorf("%q and %q are mutually exclusive: %w", ScriptFileKey, ScriptsArchiveKey, ConflictError)
	}
	var missing []string
	if !c.HasConfigFile() {
		missing = append(missing, fmt.Sprintf("%q", ConfigFileKey))
	}
	if !c.HasScriptFile() && !c.HasScriptsArchive() {
		missing = append(missing, fmt.Sprintf("%q or %q", ScriptFileKey, ScriptsArchiveKey))
	}
	if len(missing) > 0 {
		return fmt.Errorf("please set %s: %w", strings.Join(missing, " and "), MissingError)
	}
	return nil
}
