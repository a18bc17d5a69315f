// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"path"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
)

const (
	envUnitName     = "JUJU_UNIT_NAME"
	envDispatchPath = "JUJU_DISPATCH_PATH"
	envHookName     = "JUJU_HOOK_NAME"
	envCharmDir     = "JUJU_CHARM_DIR"
	envRelation     = "JUJU_RELATION"
)

// Env describes the hook invocation, as read from the environment the
// unit agent runs the charm in.
type Env struct {
	Unit         names.UnitTag
	HookName     string
	CharmDir     string
	RelationName string
}

// ReadEnv builds an Env using getenv, usually os.Getenv.
func ReadEnv(getenv func(string) string) (Env, error) {
	unitName := getenv(envUnitName)
	if !names.IsValidUnit(unitName) {
		return Env{}, errors.NotValidf("%s %q", envUnitName, unitName)
	}
	hook := getenv(envHookName)
	if dispatch := getenv(envDispatchPath); dispatch != "" {
		hook = path.Base(dispatch)
	}
	if hook == "" {
		return Env{}, errors.NotFoundf("%s", envDispatchPath)
	}
	return Env{
		Unit:         names.NewUnitTag(unitName),
		HookName:     hook,
		CharmDir:     getenv(envCharmDir),
		RelationName: getenv(envRelation),
	}, nil
}
