// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package constants

import "time"

// CommitSHA and BuildTime are overridden at build time via -ldflags.
var (
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

const (
	Version        = "v0.1.0"
	ConfigFileName = "preclear-ng.yml"
	SystemConfigDir = "/etc/preclear-ng"
	UserConfigDir   = "~/.preclear-ng"

	DefaultStateDir   = "/var/lib/preclear-ng"
	DefaultReportsDir = "/var/lib/preclear-ng/reports"

	// Tick granularities and timing defaults, all per spec §4.
	DefaultTempIntervalS  = 5
	DefaultSMARTRefreshS  = 300
	DefaultHangWarnS      = 600
	DefaultHangKillS      = 1200
	HealthCaptureTimeout  = 30 * time.Second
	TerminationGrace      = 2 * time.Second

	// CertificateExitThermal is the dedicated exit code reserved for a
	// thermal abort so callers can distinguish it from a generic failure.
	CertificateExitThermal = 75

	DefaultBadblocksPatterns = "0xAA,0x55,0xFF,0x00"

	// DefaultCycleCooldown lets a device settle thermally between
	// consecutive --cycles runs.
	DefaultCycleCooldown = 2 * time.Minute
)

// DefaultToolPaths are the absolute paths preclear-ng expects its external
// collaborators at, overridable via configuration.
var DefaultToolPaths = map[string]string{
	"dd":       "/bin/dd",
	"smartctl": "/usr/sbin/smartctl",
	"hdparm":   "/sbin/hdparm",
	"fio":      "/usr/bin/fio",
	"lsblk":    "/bin/lsblk",
	"blockdev": "/sbin/blockdev",
	"findmnt":  "/bin/findmnt",
}
