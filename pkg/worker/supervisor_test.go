// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratastor/preclear-ng/pkg/types"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.worker")
	require.NoError(t, err)
	return log
}

// fakeHandle is an in-process worker.Handle: it advances bytesDone by
// step on every Progress() call while running, and never exits until told
// to, letting tests script exact tick-by-tick behavior without spawning a
// real subprocess (spec §9's recommended harness for the supervisor).
type fakeHandle struct {
	mu        sync.Mutex
	bytesDone uint64
	step      uint64
	paused    bool
	exited    bool
	exitErr   error
	stopCalls int
	contCalls int
	termCalls int
}

func (h *fakeHandle) Progress() types.ProgressSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused && !h.exited {
		h.bytesDone += h.step
	}
	return types.ProgressSample{BytesDone: h.bytesDone}
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
	h.stopCalls++
	return nil
}

func (h *fakeHandle) Continue() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = false
	h.contCalls++
	return nil
}

func (h *fakeHandle) Terminate(time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.termCalls++
	h.exited = true
	return nil
}

func (h *fakeHandle) Exited() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited, h.exitErr
}

func (h *fakeHandle) finishAfter(n int) {
	go func() {
		for i := 0; i < n; i++ {
			time.Sleep(5 * time.Millisecond)
		}
		h.mu.Lock()
		h.exited = true
		h.mu.Unlock()
	}()
}

type fakeSpawner struct {
	handle *fakeHandle
	err    error
}

func (s *fakeSpawner) Spawn(ctx context.Context, expectedBytes uint64) (Handle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.handle, nil
}

// scriptedGovernor returns a fixed sequence of directives, one per Tick
// call, repeating the last entry once exhausted.
type scriptedGovernor struct {
	directives []types.GovernorDirective
	calls      int
}

func (g *scriptedGovernor) Tick(currentC int, known bool, dt float64) types.GovernorDirective {
	if g.calls >= len(g.directives) {
		return g.directives[len(g.directives)-1]
	}
	d := g.directives[g.calls]
	g.calls++
	return d
}

func TestSupervisorRunCompletesOnExit(t *testing.T) {
	h := &fakeHandle{step: 10, exited: true}
	sup := NewSupervisor(testLogger(t), 5*time.Millisecond, 600, 1200)
	gov := &scriptedGovernor{directives: []types.GovernorDirective{types.DirectiveContinue}}

	outcome := sup.Run(context.Background(), &fakeSpawner{handle: h}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeCompleted, outcome)
}

func TestSupervisorRunPausesAndResumesOnDirective(t *testing.T) {
	h := &fakeHandle{step: 10}
	h.finishAfter(6)
	sup := NewSupervisor(testLogger(t), 5*time.Millisecond, 600, 1200)
	gov := &scriptedGovernor{directives: []types.GovernorDirective{
		types.DirectiveContinue,
		types.DirectivePause,
		types.DirectiveContinue,
		types.DirectiveResume,
		types.DirectiveContinue,
	}}

	outcome := sup.Run(context.Background(), &fakeSpawner{handle: h}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeCompleted, outcome)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.GreaterOrEqual(t, h.stopCalls, 1)
	assert.GreaterOrEqual(t, h.contCalls, 1)
}

func TestSupervisorRunAbortsOverTemp(t *testing.T) {
	h := &fakeHandle{step: 10}
	sup := NewSupervisor(testLogger(t), 5*time.Millisecond, 600, 1200)
	gov := &scriptedGovernor{directives: []types.GovernorDirective{types.DirectiveAbortOverTemp}}

	outcome := sup.Run(context.Background(), &fakeSpawner{handle: h}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeAbortedOverTemp, outcome)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, h.termCalls)
}

func TestSupervisorRunDetectsStall(t *testing.T) {
	h := &fakeHandle{step: 0} // never advances bytesDone
	sup := NewSupervisor(testLogger(t), 2*time.Millisecond, 0.004, 0.008) // 4ms warn, 8ms kill
	gov := &scriptedGovernor{directives: []types.GovernorDirective{types.DirectiveContinue}}

	outcome := sup.Run(context.Background(), &fakeSpawner{handle: h}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeAbortedStall, outcome)
}

func TestSupervisorRunCancelledOnContextDone(t *testing.T) {
	h := &fakeHandle{step: 0}
	sup := NewSupervisor(testLogger(t), 5*time.Millisecond, 600, 1200)
	gov := &scriptedGovernor{directives: []types.GovernorDirective{types.DirectiveContinue}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	outcome := sup.Run(ctx, &fakeSpawner{handle: h}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeCancelled, outcome)
}

func TestSupervisorRunSpawnFailureIsWorkerFailed(t *testing.T) {
	sup := NewSupervisor(testLogger(t), 5*time.Millisecond, 600, 1200)
	gov := &scriptedGovernor{directives: []types.GovernorDirective{types.DirectiveContinue}}

	outcome := sup.Run(context.Background(), &fakeSpawner{err: assertErr{}}, types.WorkerSurfaceRead, 1000, gov, nil)
	assert.Equal(t, types.OutcomeWorkerFailed, outcome)
}

type assertErr struct{}

func (assertErr) Error() string { return "spawn failed" }

func TestClampPercentBounds(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(0, 0))
	assert.Equal(t, 50.0, clampPercent(50, 100))
	assert.Equal(t, 100.0, clampPercent(150, 100))
}
