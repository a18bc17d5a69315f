// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package exporter

import (
	"fmt"

	"github.com/juju/version/v2"
)

const (
	// Port is the port the exporter listens on.
	Port = 9469

	// Address is the host scrape jobs reach the exporter on. The metrics
	// agent runs on the same machine.
	Address = "localhost"

	releaseURLFormat = "https://github.com/ricoberger/script_exporter/releases/download/v%s/script_exporter-linux-amd64"

	// ReleaseSHA256 is the checksum of the pinned release binary.
	ReleaseSHA256 = "e7962a9863c015f721e3cec9af24c85e6b93be79ff992230d9d12029c89f456f"
)

// ReleaseVersion is the exporter release downloaded when no binary is
// supplied as a resource.
var ReleaseVersion = version.MustParse("2.15.1")

// ReleaseURL returns the download location of the pinned release.
func ReleaseURL() string {
	return fmt.Sprintf(releaseURLFormat, ReleaseVersion)
}
