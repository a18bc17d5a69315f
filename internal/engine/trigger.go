// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package engine

// PrincipalRelationName is the subordinate relation to the principal
// application.
const PrincipalRelationName = "juju-info"

// IsTeardown reports whether the hook means the exporter should stop:
// the unit is stopping or its principal has gone away.
func IsTeardown(hook string) bool {
	switch hook {
	case "stop", "remove", PrincipalRelationName + "-relation-broken":
		return true
	}
	return false
}
