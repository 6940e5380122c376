// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"time"

	"github.com/stratastor/preclear-ng/pkg/types"
)

// HealthProbeWorker supervises the long self-test request at step 3.
// Per spec §4.6, the executor does not block on the self-test's
// completion inside the device; this worker only issues the request via
// the health sampler's underlying smartctl call and reports immediately,
// carrying no progress (WorkerHealthProbe expects none).
type HealthProbeWorker struct {
	smartctlPath string
	devicePath   string
	smartType    string
	runner       func(ctx context.Context) error
}

// NewHealthProbeWorker builds a HealthProbeWorker that requests a long
// self-test via smartctl -t long.
func NewHealthProbeWorker(smartctlPath, devicePath, smartType string, runner func(ctx context.Context) error) *HealthProbeWorker {
	return &HealthProbeWorker{smartctlPath: smartctlPath, devicePath: devicePath, smartType: smartType, runner: runner}
}

// Spawn issues the self-test request synchronously (it returns almost
// immediately; the test itself proceeds inside the device) and returns
// an already-exited handle.
func (w *HealthProbeWorker) Spawn(ctx context.Context, expectedBytes uint64) (Handle, error) {
	err := w.runner(ctx)
	return &completedHandle{err: err}, nil
}

// completedHandle is a Handle for a worker that has already finished by
// the time Spawn returns (the health-probe worker never runs live).
type completedHandle struct {
	err error
}

func (h *completedHandle) Progress() types.ProgressSample { return types.ProgressSample{} }
func (h *completedHandle) Stop() error                     { return nil }
func (h *completedHandle) Continue() error                 { return nil }
func (h *completedHandle) Terminate(time.Duration) error    { return nil }
func (h *completedHandle) Exited() (bool, error)             { return true, h.err }
