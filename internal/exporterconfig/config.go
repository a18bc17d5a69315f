// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package exporterconfig parses and renders the script exporter's own
// configuration file.
package exporterconfig

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("script-exporter.exporterconfig")

const (
	// ParseError is returned when the config_file option is not a valid
	// exporter configuration.
	ParseError = errors.ConstError("invalid exporter config")
)

// Config is the exporter configuration. Only the scripts list is
// interpreted; the other top level sections understood by the exporter are
// carried through untouched.
type Config struct {
	Scripts []Script `yaml:"scripts"`

	TLS        any `yaml:"tls,omitempty"`
	BasicAuth  any `yaml:"basicAuth,omitempty"`
	BearerAuth any `yaml:"bearerAuth,omitempty"`
	Discovery  any `yaml:"discovery,omitempty"`
}

// Script is a single script definition. Keys other than name, command and
// args (timeouts, env, sudo and so on) are preserved in Extra.
type Script struct {
	Name    string         `yaml:"name"`
	Command string         `yaml:"command"`
	Args    []string       `yaml:"args,omitempty"`
	Extra   map[string]any `yaml:",inline"`
}

// Parse decodes and validates text as an exporter configuration.
func Parse(text string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(text) == "" {
		return cfg, fmt.Errorf("empty document: %w", ParseError)
	}
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%v: %w", err, ParseError)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return Config{}, fmt.Errorf("multiple documents: %w", ParseError)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Validate checks the structural invariants of the configuration. It does
// not check that commands exist or that their arguments make sense.
func (c Config) Validate() error {
	if len(c.Scripts) == 0 {
		return fmt.Errorf("no scripts defined: %w", ParseError)
	}
	seen := set.NewStrings()
	for i, s := range c.Scripts {
		if s.Name == "" {
			return fmt.Errorf("script %d has no name: %w", i, ParseError)
		}
		if s.Command == "" {
			return fmt.Errorf("script %q has no command: %w", s.Name, ParseError)
		}
		if seen.Contains(s.Name) {
			return fmt.Errorf("script %q defined more than once: %w", s.Name, ParseError)
		}
		seen.Add(s.Name)
	}
	return nil
}

// ResolveCommands returns a copy of the configuration in which every
// command naming one of the uploaded archive scripts, by its path relative
// to the archive root, is rewritten to the absolute path of that script
// under scriptsDir. Other commands are left as they are.
func ResolveCommands(cfg Config, scriptsDir string, scriptNames []string) Config {
	names := set.NewStrings(scriptNames...)
	out := cfg
	out.Scripts = make([]Script, len(cfg.Scripts))
	for i, s := range cfg.Scripts {
		out.Scripts[i] = s
		if filepath.IsAbs(s.Command) {
			continue
		}
		rel := path.Clean(s.Command)
		if !names.Contains(rel) {
			logger.Debugf("%s is not part of the uploaded scripts", s.Command)
			continue
		}
		out.Scripts[i].Command = filepath.Join(scriptsDir, filepath.FromSlash(rel))
	}
	return out
}

// Render serialises the configuration. The output is stable for equal
// configurations so that it can be compared by content hash.
func Render(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Annotate(err, "rendering exporter config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}
