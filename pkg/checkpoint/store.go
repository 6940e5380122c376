// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint implements the Checkpoint Store: an atomically
// replaced key=value step-boundary file, owner- and permission-gated on
// read so that a tampered or foreign-owned checkpoint is silently
// treated as absent rather than trusted. Saves go through an atomic
// temp-file-then-rename, and reads use a strict literal key=value format
// rather than an eval-style loader.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/privilege"
	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/types"
)

var numericField = regexp.MustCompile(`^[0-9]+$`)

// Store manages the checkpoint file for one device, keyed by serial.
type Store struct {
	log  logger.Logger
	path string
}

// NewStore builds a Store at <stateDir>/<serial>.ng.state.
func NewStore(log logger.Logger, stateDir, serial string) *Store {
	path := filepath.Join(stateDir, serial+".ng.state")
	return &Store{log: log, path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Write atomically replaces the checkpoint file with rec's fields, one
// key=value per line, permissions 0600.
func (s *Store) Write(rec types.CheckpointRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return preclearerrors.Wrap(err, preclearerrors.CheckpointWriteFailed).WithMetadata("path", s.path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "step=%d\n", int(rec.Step))
	fmt.Fprintf(&b, "cycle=%d\n", rec.Cycle)
	fmt.Fprintf(&b, "paused_seconds_total=%d\n", int64(rec.PausedSecondsTotal))
	fmt.Fprintf(&b, "above_pause_seconds_total=%d\n", int64(rec.AbovePauseSecondsTotal))
	fmt.Fprintf(&b, "temp_min=%d\n", rec.TempMin)
	fmt.Fprintf(&b, "temp_max=%d\n", rec.TempMax)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0600); err != nil {
		return preclearerrors.Wrap(err, preclearerrors.CheckpointWriteFailed).WithMetadata("path", s.path)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return preclearerrors.Wrap(err, preclearerrors.CheckpointWriteFailed).WithMetadata("path", s.path)
	}

	s.log.Debug("checkpoint written", "path", s.path, "step", rec.Step, "cycle", rec.Cycle)
	return nil
}

// Read applies the strict validation of spec §4.5: the file must exist,
// be a regular file, be owned by the invoking user, and carry no group-
// or world-write bit. Any failure at any stage — including a malformed
// field — is reported as "no checkpoint" (ok=false), never as an error;
// the caller starts from step 1.
func (s *Store) Read() (rec types.CheckpointRecord, ok bool) {
	info, err := os.Lstat(s.path)
	if err != nil {
		return types.CheckpointRecord{}, false
	}
	if !info.Mode().IsRegular() {
		s.log.Warn("checkpoint rejected: not a regular file", "path", s.path)
		return types.CheckpointRecord{}, false
	}
	if !privilege.OwnedByInvoker(info) {
		s.log.Warn("checkpoint rejected: not owned by invoker", "path", s.path)
		return types.CheckpointRecord{}, false
	}
	if !privilege.NoGroupOrWorldWrite(info) {
		s.log.Warn("checkpoint rejected: group- or world-writable", "path", s.path)
		return types.CheckpointRecord{}, false
	}

	f, err := os.Open(s.path)
	if err != nil {
		return types.CheckpointRecord{}, false
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := scanner.Err(); err != nil {
		return types.CheckpointRecord{}, false
	}

	step, ok := parseStep(fields["step"])
	if !ok {
		return types.CheckpointRecord{}, false
	}
	cycle, ok := parseNumeric(fields["cycle"])
	if !ok {
		return types.CheckpointRecord{}, false
	}
	paused, ok := parseNumeric(fields["paused_seconds_total"])
	if !ok {
		return types.CheckpointRecord{}, false
	}
	abovePause, ok := parseNumeric(fields["above_pause_seconds_total"])
	if !ok {
		return types.CheckpointRecord{}, false
	}
	tempMin, ok := parseNumeric(fields["temp_min"])
	if !ok {
		return types.CheckpointRecord{}, false
	}
	tempMax, ok := parseNumeric(fields["temp_max"])
	if !ok {
		return types.CheckpointRecord{}, false
	}

	return types.CheckpointRecord{
		Step:                   step,
		Cycle:                  int(cycle),
		PausedSecondsTotal:     float64(paused),
		AbovePauseSecondsTotal: float64(abovePause),
		TempMin:                int(tempMin),
		TempMax:                int(tempMax),
	}, true
}

// Delete removes the checkpoint file after the last step of the last
// cycle completes successfully. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return preclearerrors.Wrap(err, preclearerrors.CheckpointWriteFailed).WithMetadata("path", s.path)
	}
	return nil
}

func parseStep(v string) (types.StepID, bool) {
	n, ok := parseNumeric(v)
	if !ok {
		return 0, false
	}
	step := types.StepID(n)
	if !step.Valid() {
		return 0, false
	}
	return step, true
}

func parseNumeric(v string) (int64, bool) {
	if v == "" || !numericField.MatchString(v) {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
