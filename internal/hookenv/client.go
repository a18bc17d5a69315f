// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hookenv runs the Juju hook tools available to a charm.
package hookenv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"github.com/juju/utils/v4/exec"
	"gopkg.in/yaml.v3"

	"github.com/canonical/script-exporter-operator/core/status"
)

// Runner runs shell commands.
type Runner interface {
	RunCommands(exec.RunParams) (*exec.ExecResponse, error)
}

type execRunner struct{}

func (execRunner) RunCommands(params exec.RunParams) (*exec.ExecResponse, error) {
	return exec.RunCommands(params)
}

// DefaultRunner runs commands in a local shell.
var DefaultRunner Runner = execRunner{}

// Client runs hook tools.
type Client struct {
	runner Runner
}

// NewClient returns a Client running tools through runner.
func NewClient(runner Runner) *Client {
	return &Client{runner: runner}
}

func (c *Client) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := c.runner.RunCommands(exec.RunParams{
		Commands: utils.CommandString(append([]string{tool}, args...)...),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "running %s", tool)
	}
	if resp.Code != 0 {
		return nil, errors.Errorf("%s failed (exit %d): %s", tool, resp.Code, strings.TrimSpace(string(resp.Stderr)))
	}
	return resp.Stdout, nil
}

// ConfigGet returns the charm configuration.
func (c *Client) ConfigGet(ctx context.Context) (map[string]any, error) {
	out, err := c.run(ctx, "config-get", "--format=json")
	if err != nil {
		return nil, errors.Trace(err)
	}
	attrs := make(map[string]any)
	if err := json.Unmarshal(out, &attrs); err != nil {
		return nil, errors.Annotate(err, "parsing config-get output")
	}
	return attrs, nil
}

// StatusSet sets the unit's workload status. Juju only accepts the
// workload statuses a charm may set.
func (c *Client) StatusSet(ctx context.Context, st status.Status, msg string) error {
	if !status.ValidWorkloadStatus(st) {
		return errors.NotValidf("workload status %q", st)
	}
	_, err := c.run(ctx, "status-set", string(st), msg)
	return errors.Trace(err)
}

// ResourceGet returns the local path of the named resource. A resource
// that was never attached is reported as not found.
func (c *Client) ResourceGet(ctx context.Context, name string) (string, error) {
	out, err := c.run(ctx, "resource-get", name)
	if err != nil {
		return "", errors.NewNotFound(err, "resource "+name)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", errors.NotFoundf("resource %s", name)
	}
	return path, nil
}

// RelationIDs returns the ids of the relations established on the
// named endpoint.
func (c *Client) RelationIDs(ctx context.Context, endpoint string) ([]string, error) {
	out, err := c.run(ctx, "relation-ids", "--format=json", endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ids []string
	if err := json.Unmarshal(out, &ids); err != nil {
		return nil, errors.Annotate(err, "parsing relation-ids output")
	}
	return ids, nil
}

// RelationSet sets key to value in the unit's databag of the given
// relation. The settings go through a file so that large values are not
// limited by the command line.
func (c *Client) RelationSet(ctx context.Context, relationID, key, value string) error {
	data, err := yaml.Marshal(map[string]string{key: value})
	if err != nil {
		return errors.Trace(err)
	}
	dir, err := os.MkdirTemp("", "relation-set-")
	if err != nil {
		return errors.Trace(err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(file, data, 0600); err != nil {
		return errors.Trace(err)
	}
	_, err = c.run(ctx, "relation-set", "-r", relationID, "--file", file)
	return errors.Trace(err)
}

// ApplicationVersionSet records the workload version.
func (c *Client) ApplicationVersionSet(ctx context.Context, version string) error {
	_, err := c.run(ctx, "application-version-set", version)
	return errors.Trace(err)
}

// JujuLog writes msg to the unit's log at the given level.
func (c *Client) JujuLog(ctx context.Context, level, msg string) error {
	_, err := c.run(ctx, "juju-log", "-l", level, msg)
	return errors.Trace(err)
}
