// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package device implements the Device Probe: it resolves a raw device
// path into an immutable DeviceDescriptor, picks default thermal
// thresholds by media class, and refuses devices that are mounted or
// back the running root filesystem. Identity comes from lsblk, mount
// detection from findmnt, scoped to exactly one device rather than a
// system-wide scan.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// Prober identifies and validates a candidate device before any
// destructive work against it is permitted.
type Prober struct {
	log            logger.Logger
	lsblkPath      string
	blockdevPath   string
	findmntPath    string
}

// NewProber builds a Prober using the configured tool paths.
func NewProber(log logger.Logger, lsblkPath, blockdevPath, findmntPath string) *Prober {
	return &Prober{
		log:          log,
		lsblkPath:    lsblkPath,
		blockdevPath: blockdevPath,
		findmntPath:  findmntPath,
	}
}

// lsblkRow mirrors the subset of lsblk's --json output this probe reads.
type lsblkRow struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Type       string     `json:"type"`
	Model      string     `json:"model"`
	Serial     string     `json:"serial"`
	Size       string     `json:"size"`
	LogSec     string     `json:"log-sec"`
	Rota       string     `json:"rota"`
	Mountpoint *string    `json:"mountpoint"`
	Children   []lsblkRow `json:"children,omitempty"`
}

type lsblkOutput struct {
	BlockDevices []lsblkRow `json:"blockdevices"`
}

// Identify resolves path into a DeviceDescriptor, or a ProbeError if the
// device is unusable: not a block device, unreadable size, mounted
// (directly or via a partition), or backing the running root filesystem.
func (p *Prober) Identify(ctx context.Context, path string) (*types.DeviceDescriptor, error) {
	row, err := p.lsblkDevice(ctx, path)
	if err != nil {
		return nil, err
	}
	if row.Type != "disk" {
		return nil, preclearerrors.New(preclearerrors.ProbeNotBlockDevice, path).
			WithMetadata("reported_type", row.Type)
	}

	total, err := parseSize(row.Size)
	if err != nil || total == 0 {
		return nil, preclearerrors.New(preclearerrors.ProbeSizeUnreadable, path)
	}

	sector, err := strconv.ParseUint(strings.TrimSpace(row.LogSec), 10, 64)
	if err != nil || sector < 512 || !isPowerOfTwo(sector) {
		sector = 512
	}

	if err := p.refuseIfMounted(row); err != nil {
		return nil, err
	}
	if err := p.refuseIfRootBackingStore(ctx, path); err != nil {
		return nil, err
	}

	desc := &types.DeviceDescriptor{
		Path:              path,
		Model:             strings.TrimSpace(row.Model),
		Serial:            strings.TrimSpace(row.Serial),
		TotalBytes:        total,
		LogicalSectorSize: sector,
		Rotational:        row.Rota == "1",
	}

	p.log.Info("device identified", "path", path, "model", desc.Model, "serial", desc.Serial,
		"size_bytes", desc.TotalBytes, "rotational", desc.Rotational)

	return desc, nil
}

// DefaultThermal returns the media-class default thresholds (spec §4.1).
func (p *Prober) DefaultThermal(desc *types.DeviceDescriptor) types.ThermalThresholds {
	return types.DefaultThermalThresholds(desc.Rotational)
}

func (p *Prober) lsblkDevice(ctx context.Context, path string) (*lsblkRow, error) {
	out, err := cmdexec.Run(ctx, p.log, 0, p.lsblkPath,
		"-J", "-b", "-O", "-p", path)
	if err != nil {
		return nil, preclearerrors.Wrap(err, preclearerrors.ProbeFailed).WithMetadata("path", path)
	}

	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, preclearerrors.Wrap(err, preclearerrors.ProbeFailed).WithMetadata("parse_error", err.Error())
	}
	if len(parsed.BlockDevices) == 0 {
		return nil, preclearerrors.New(preclearerrors.ProbeNotBlockDevice, path)
	}
	return &parsed.BlockDevices[0], nil
}

// refuseIfMounted walks the device and its children (partitions) for any
// populated mountpoint.
func (p *Prober) refuseIfMounted(row *lsblkRow) error {
	if row.Mountpoint != nil && *row.Mountpoint != "" {
		return preclearerrors.New(preclearerrors.ProbeMounted, row.Path).
			WithMetadata("mountpoint", *row.Mountpoint)
	}
	for _, child := range row.Children {
		if err := p.refuseIfMounted(&child); err != nil {
			return err
		}
	}
	return nil
}

// refuseIfRootBackingStore asks findmnt what device backs "/" and
// compares it, by kernel name, against the candidate.
func (p *Prober) refuseIfRootBackingStore(ctx context.Context, path string) error {
	out, err := cmdexec.Run(ctx, p.log, 0, p.findmntPath, "-n", "-o", "SOURCE", "/")
	if err != nil {
		// Unable to determine; fail closed is wrong here (findmnt is
		// near-universally present), but a missing binary must not crash
		// the probe — log and proceed without this guard rather than
		// silently skip it.
		p.log.Warn("could not determine root backing device, skipping root-disk guard", "err", err)
		return nil
	}

	rootSource := strings.TrimSpace(string(out))
	rootDisk := strings.TrimRight(rootSource, "0123456789")
	rootDisk = strings.TrimSuffix(rootDisk, "p")

	if rootDisk == path || strings.HasPrefix(rootSource, path) {
		return preclearerrors.New(preclearerrors.ProbeRootBackingStore, path).
			WithMetadata("root_source", rootSource)
	}
	return nil
}

func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	return strconv.ParseUint(s, 10, 64)
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
