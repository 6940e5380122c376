// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// percentLine matches a bare percent-complete token, e.g. "37%" or
// "progress: 37% done", as a destructive pattern-write tool typically
// reports instead of a byte count.
var percentLine = regexp.MustCompile(`(\d{1,3})%`)

// PatternWorker spawns a destructive full-device write of one repeating
// byte pattern (0xAA, 0x55, 0xFF, 0x00, ...) via dd with a pre-built
// input block, reporting progress as a derived byte count from the
// tool's percent-complete output (spec §4.4: "bytes-done is derived
// (percent × expected_bytes / 100)").
type PatternWorker struct {
	log        logger.Logger
	ddPath     string
	devicePath string
	stateDir   string
	blockSize  uint64
	pattern    byte
}

// NewPatternWorker builds a PatternWorker for one destructive pass.
// stateDir must match the directory the caller materialized the pattern
// source file under (see pkg/pipeline's materializePatternFile).
func NewPatternWorker(log logger.Logger, ddPath, devicePath, stateDir string, blockSize uint64, pattern byte) *PatternWorker {
	if blockSize == 0 {
		blockSize = 512
	}
	return &PatternWorker{log: log, ddPath: ddPath, devicePath: devicePath, stateDir: stateDir, blockSize: blockSize, pattern: pattern}
}

// Spawn starts the pattern-write child: dd reads the block-sized pattern
// source file the caller already materialized (located by
// patternSourcePath) and writes it to the device with status=progress.
// Progress is parsed from dd's byte-count line, as DDWorker does; a line
// that carries only a percent token is converted to bytes as
// percent × expected bytes / 100.
func (w *PatternWorker) Spawn(ctx context.Context, expectedBytes uint64) (Handle, error) {
	args := []string{
		"if=" + patternSourcePath(w.stateDir, w.pattern),
		"of=" + w.devicePath,
		fmt.Sprintf("bs=%d", w.blockSize),
		"status=progress",
		"conv=fsync",
	}

	sup, err := cmdexec.NewSupervised(ctx, w.log, w.ddPath, args...)
	if err != nil {
		return nil, err
	}

	h := &patternHandle{sup: sup, expected: expectedBytes}
	if err := sup.Start(h.onLine); err != nil {
		return nil, err
	}
	return h, nil
}

// patternSourcePath returns the path to a pre-materialized block-sized
// file of repeated pattern bytes. Callers create this once per pattern
// before the step begins (see pkg/pipeline).
func patternSourcePath(stateDir string, pattern byte) string {
	return filepath.Join(stateDir, fmt.Sprintf("pattern_%02x.bin", pattern))
}

type patternHandle struct {
	sup      *cmdexec.Supervised
	expected uint64

	mu     sync.Mutex
	sample types.ProgressSample
}

func (h *patternHandle) onLine(line string) {
	if m := ddProgressLine.FindStringSubmatch(line); m != nil {
		if bytesDone, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			h.update(bytesDone, m[2])
			return
		}
	}
	if m := percentLine.FindStringSubmatch(line); m != nil {
		pct, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return
		}
		if pct > 100 {
			pct = 100
		}
		bytesDone := pct * h.expected / 100
		h.update(bytesDone, "")
	}
}

func (h *patternHandle) update(bytesDone uint64, rate string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bytesDone >= h.sample.BytesDone {
		h.sample = types.ProgressSample{BytesDone: bytesDone, InstantaneousRate: rate, ObservedAt: time.Now()}
	}
}

func (h *patternHandle) Progress() types.ProgressSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sample
}

func (h *patternHandle) Stop() error                        { return h.sup.Stop() }
func (h *patternHandle) Continue() error                     { return h.sup.Continue() }
func (h *patternHandle) Terminate(grace time.Duration) error { return h.sup.Terminate(grace) }
func (h *patternHandle) Exited() (bool, error)                { return h.sup.Exited() }
