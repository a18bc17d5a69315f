// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"io"
	"strconv"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/juju/errors"

	"github.com/canonical/script-exporter-operator/service/common"
)

func unitOptions(conf common.Conf) []*unit.UnitOption {
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", conf.Desc),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
	}
	for _, key := range conf.EnvKeys() {
		opts = append(opts, unit.NewUnitOption("Service", "Environment", strconv.Quote(key+"="+conf.Env[key])))
	}
	opts = append(opts,
		unit.NewUnitOption("Service", "ExecStart", conf.ExecStart),
		unit.NewUnitOption("Service", "Restart", "always"),
	)
	for _, key := range conf.LimitKeys() {
		opts = append(opts, unit.NewUnitOption("Service", "Limit"+key, conf.Limit[key]))
	}
	return append(opts, unit.NewUnitOption("Install", "WantedBy", "multi-user.target"))
}

// serialize renders conf as the content of a systemd unit file.
func serialize(conf common.Conf) ([]byte, error) {
	data, err := io.ReadAll(unit.Serialize(unitOptions(conf)))
	return data, errors.Trace(err)
}
