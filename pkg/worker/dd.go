// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// ddProgressLine matches dd's status=progress output lines, of the form:
// "123456789 bytes (123 MB, 118 MiB) copied, 4.2 s, 29.4 MB/s".
// Extracts the byte count and the trailing rate string verbatim, per
// spec §4.4's "extract bytes and rate strings verbatim" requirement.
var ddProgressLine = regexp.MustCompile(`^(\d+)\s+bytes.*copied,\s*[\d.]+\s*s,\s*(.+)$`)

// DDWorker spawns dd as a SurfaceRead (if=device, of=/dev/null) or
// ZeroWrite (if=/dev/zero, of=device) worker, with an optional
// direct-I/O flag. It satisfies Spawner.
type DDWorker struct {
	log        logger.Logger
	ddPath     string
	devicePath string
	blockSize  uint64
	kind       types.WorkerKind // WorkerSurfaceRead or WorkerZeroWrite
	directIO   bool
}

// NewDDWorker builds a DDWorker. kind must be WorkerSurfaceRead or
// WorkerZeroWrite.
func NewDDWorker(log logger.Logger, ddPath, devicePath string, blockSize uint64, kind types.WorkerKind, directIO bool) *DDWorker {
	if blockSize == 0 {
		blockSize = 512
	}
	return &DDWorker{log: log, ddPath: ddPath, devicePath: devicePath, blockSize: blockSize, kind: kind, directIO: directIO}
}

// Spawn starts the dd child with status=progress for live byte/rate
// reporting.
func (w *DDWorker) Spawn(ctx context.Context, expectedBytes uint64) (Handle, error) {
	var args []string
	flagKey := "oflag"
	switch w.kind {
	case types.WorkerSurfaceRead:
		args = []string{
			"if=" + w.devicePath,
			"of=/dev/null",
			fmt.Sprintf("bs=%d", w.blockSize),
			"status=progress",
		}
		flagKey = "iflag"
	case types.WorkerZeroWrite:
		args = []string{
			"if=/dev/zero",
			"of=" + w.devicePath,
			fmt.Sprintf("bs=%d", w.blockSize),
			"status=progress",
			"conv=fsync",
		}
	default:
		return nil, fmt.Errorf("dd worker does not support kind %s", w.kind)
	}
	if w.directIO {
		args = append(args, flagKey+"=direct")
	}

	sup, err := cmdexec.NewSupervised(ctx, w.log, w.ddPath, args...)
	if err != nil {
		return nil, err
	}

	h := &ddHandle{sup: sup}
	if err := sup.Start(h.onLine); err != nil {
		return nil, err
	}
	return h, nil
}

type ddHandle struct {
	sup *cmdexec.Supervised

	mu      sync.Mutex
	sample  types.ProgressSample
	started time.Time
}

func (h *ddHandle) onLine(line string) {
	m := ddProgressLine.FindStringSubmatch(line)
	if m == nil {
		return
	}
	bytesDone, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if bytesDone >= h.sample.BytesDone {
		h.sample = types.ProgressSample{BytesDone: bytesDone, InstantaneousRate: m[2], ObservedAt: time.Now()}
	}
}

func (h *ddHandle) Progress() types.ProgressSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sample
}

func (h *ddHandle) Stop() error                        { return h.sup.Stop() }
func (h *ddHandle) Continue() error                     { return h.sup.Continue() }
func (h *ddHandle) Terminate(grace time.Duration) error { return h.sup.Terminate(grace) }
func (h *ddHandle) Exited() (bool, error)                { return h.sup.Exited() }
