// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package health implements the Health Sampler: bounded-time SMART
// capture against a text blob, temperature/attribute extraction, and a
// minimum-refresh-interval cache. The sampler treats the device's health
// report as opaque text, to survive vendor/firmware output deviations
// that a fixed JSON shape rarely absorbs consistently across smartctl
// versions, and extracts only the small set of named attributes the
// pipeline and certificate need.
package health

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// Sampler captures and caches SMART snapshots for one device. capture()
// never raises: a timed-out or unreadable probe yields an Empty snapshot,
// and callers treat temperature/attributes as "unknown" rather than fatal.
type Sampler struct {
	log          logger.Logger
	smartctlPath string
	devicePath   string
	smartType    string // optional transport hint, e.g. "sat", "nvme"
	refresh      time.Duration

	mu       sync.Mutex
	last     *types.HealthSnapshot
	lastTime time.Time
}

// NewSampler builds a Sampler for one device. smartType may be empty.
func NewSampler(log logger.Logger, smartctlPath, devicePath, smartType string, refresh time.Duration) *Sampler {
	if refresh <= 0 {
		refresh = 300 * time.Second
	}
	return &Sampler{
		log:          log,
		smartctlPath: smartctlPath,
		devicePath:   devicePath,
		smartType:    smartType,
		refresh:      refresh,
	}
}

// Capture runs smartctl -a against the device with a 30 s bound and
// parses its text output. On timeout or an unreadable result it returns
// an empty snapshot rather than an error — a transient probe miss is
// never fatal to the pipeline (spec §7 TransientProbeMiss).
func (s *Sampler) Capture(ctx context.Context) *types.HealthSnapshot {
	args := []string{"-a"}
	if s.smartType != "" {
		args = append(args, "-d", s.smartType)
	}
	args = append(args, s.devicePath)

	out, err := cmdexec.Run(ctx, s.log, 30*time.Second, s.smartctlPath, args...)
	snap := &types.HealthSnapshot{CapturedAt: time.Now()}

	if len(out) == 0 {
		if err != nil {
			s.log.Warn("SMART capture failed, treating as unknown", "device", s.devicePath, "err", err)
		}
		snap.Empty = true
		s.remember(snap)
		return snap
	}

	// smartctl frequently exits non-zero even when it produced a usable
	// report (bit flags for predictive-failure, etc.); parse whatever text
	// came back regardless of exit status.
	snap.RawText = string(out)
	snap.Attributes = ParseSMARTText(snap.RawText)
	s.remember(snap)
	return snap
}

func (s *Sampler) remember(snap *types.HealthSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = snap
	s.lastTime = time.Now()
}

// RefreshIfStale calls Capture iff the cached snapshot is older than the
// configured refresh interval (default 300 s), returning the cached or
// freshly captured snapshot.
func (s *Sampler) RefreshIfStale(ctx context.Context, now time.Time) *types.HealthSnapshot {
	s.mu.Lock()
	last := s.last
	lastTime := s.lastTime
	s.mu.Unlock()

	if last != nil && now.Sub(lastTime) < s.refresh {
		return last
	}
	return s.Capture(ctx)
}

// Last returns the most recently captured snapshot, or nil if none yet.
func (s *Sampler) Last() *types.HealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SmartctlPath returns the configured smartctl binary path, for callers
// that need to issue a related request (e.g. the long self-test) outside
// of Capture itself.
func (s *Sampler) SmartctlPath() string {
	return s.smartctlPath
}

// namedTemperatureAttrs lists the attribute names this sampler treats as
// a temperature reading, in preference order.
var namedTemperatureAttrs = []string{
	"Temperature_Celsius",
	"Airflow_Temperature_Cel",
	"Temperature",
}

// Temperature extracts the current temperature from a snapshot, trying
// named SMART attributes first and falling back to a generic
// "Temperature:" field present in some smartctl -a banners.
func Temperature(snap *types.HealthSnapshot) (int, bool) {
	if snap == nil || snap.Empty {
		return 0, false
	}
	for _, name := range namedTemperatureAttrs {
		if attr, ok := snap.Attributes[name]; ok && attr.IsNumeric {
			return int(attr.Numeric), true
		}
	}
	return 0, false
}

// Attribute returns a named attribute from a snapshot.
func Attribute(snap *types.HealthSnapshot, name string) (types.SMARTAttribute, bool) {
	if snap == nil || snap.Attributes == nil {
		return types.SMARTAttribute{}, false
	}
	attr, ok := snap.Attributes[name]
	return attr, ok
}

// ParseSMARTText extracts named attributes from a raw smartctl text
// report. It recognizes two shapes: the tabular "-A" attribute list
// (ID, NAME, ... RAW_VALUE as the last whitespace-delimited field) and a
// generic "Temperature:" banner line some transports (NVMe, some SAS
// arrays) emit instead of the ATA attribute table.
func ParseSMARTText(raw string) map[string]types.SMARTAttribute {
	attrs := make(map[string]types.SMARTAttribute)

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if name, attr, ok := parseAttributeTableRow(line); ok {
			attrs[name] = attr
			continue
		}

		if name, attr, ok := parseGenericField(line); ok {
			if _, exists := attrs[name]; !exists {
				attrs[name] = attr
			}
		}
	}

	return attrs
}

// parseAttributeTableRow parses one ATA SMART attribute table row. The
// first field must be a numeric attribute ID and there must be at least
// 10 whitespace-delimited fields (the standard smartctl -A column count).
func parseAttributeTableRow(line string) (string, types.SMARTAttribute, bool) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return "", types.SMARTAttribute{}, false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return "", types.SMARTAttribute{}, false
	}

	name := fields[1]
	raw := fields[len(fields)-1]

	attr := types.SMARTAttribute{Name: name, RawValue: raw}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		attr.Numeric = n
		attr.IsNumeric = true
	}
	return name, attr, true
}

// parseGenericField parses a "Key: value" style banner line, keeping
// only the handful of keys the pipeline and certificate care about.
func parseGenericField(line string) (string, types.SMARTAttribute, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", types.SMARTAttribute{}, false
	}
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])

	var name string
	switch key {
	case "Temperature", "Current Drive Temperature", "Temperature Sensor 1":
		name = "Temperature"
	case "Power_On_Hours", "Power On Hours", "Accumulated power on time, hours:minutes":
		name = "Power_On_Hours"
	default:
		return "", types.SMARTAttribute{}, false
	}

	numeric := firstInt(value)
	attr := types.SMARTAttribute{Name: name, RawValue: value}
	if numeric != nil {
		attr.Numeric = *numeric
		attr.IsNumeric = true
	}
	return name, attr, true
}

// firstInt extracts the first run of ASCII digits in s as an int64.
func firstInt(s string) *int64 {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[start:end], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
