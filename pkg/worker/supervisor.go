// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the Worker Supervisor: it runs one external
// worker against the device for one pipeline step, streams its progress,
// obeys pause/resume/kill directives from the thermal governor, detects
// stalls, and classifies the worker's exit: a long-running child piping
// line-oriented output into a parser loop, context-cancellable, driven by
// a cooperative tick loop with process-group signal control.
package worker

import (
	"context"
	"time"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/internal/constants"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// Governor is the subset of the thermal governor's contract the
// supervisor consumes each tick. Implemented by *thermal.Governor; kept
// as an interface here so worker package tests can inject a scripted
// sequence of directives without spawning real subprocesses.
type Governor interface {
	Tick(currentC int, known bool, dtSeconds float64) types.GovernorDirective
}

// Spawner starts a worker subprocess for one step and kind, returning a
// handle the supervisor drives through its lifecycle. Implemented by the
// concrete command builders in this package for real workers, and by a
// test-only in-process fake for deterministic coverage of spec §8.
type Spawner interface {
	Spawn(ctx context.Context, expectedBytes uint64) (Handle, error)
}

// Handle is the polymorphic "supervised worker" capability spec §9
// describes: spawn, stream-progress, signal, wait. Real workers satisfy
// it via *cmdexec.Supervised plus a kind-specific progress parser; the
// in-process test worker satisfies it directly.
type Handle interface {
	// Progress returns the most recently observed sample.
	Progress() types.ProgressSample
	// Stop pauses the worker in place.
	Stop() error
	// Continue resumes a paused worker.
	Continue() error
	// Terminate runs the graceful-then-forceful termination discipline.
	Terminate(grace time.Duration) error
	// Exited reports whether the worker process has exited and, if so,
	// its classification error (nil on success).
	Exited() (bool, error)
}

// TemperatureSource supplies the supervisor's governor tick with the
// latest known temperature, decoupling it from the health sampler's
// refresh cadence.
type TemperatureSource func() (celsius int, known bool)

// Supervisor runs one step's worker to completion or abort.
type Supervisor struct {
	log        logger.Logger
	tickPeriod time.Duration
	hangWarnS  float64
	hangKillS  float64

	// OnTick, if set, is called once per tick with the step's live
	// progress — wired by cmd/ to drive the HUD. Never required for
	// correctness; a nil OnTick simply means no display.
	OnTick func(kind types.WorkerKind, percent float64, rate string, temperatureC int, temperatureKnown, paused bool)
}

// NewSupervisor builds a Supervisor. tickPeriod is the REFRESH_S interval
// (default 5s); hangWarn/hangKill are the stall-detection windows in
// seconds (defaults 600/1200, spec §4.4).
func NewSupervisor(log logger.Logger, tickPeriod time.Duration, hangWarnS, hangKillS float64) *Supervisor {
	if tickPeriod <= 0 {
		tickPeriod = time.Duration(constants.DefaultTempIntervalS) * time.Second
	}
	if hangWarnS <= 0 {
		hangWarnS = float64(constants.DefaultHangWarnS)
	}
	if hangKillS <= 0 {
		hangKillS = float64(constants.DefaultHangKillS)
	}
	return &Supervisor{log: log, tickPeriod: tickPeriod, hangWarnS: hangWarnS, hangKillS: hangKillS}
}

// Run drives one worker through to completion or abort. expectedBytes is
// zero for HealthProbe workers (no progress expected). It implements the
// supervision loop of spec §4.4 in order: read progress, compute
// percent/rate, consult the governor, dispatch its directive, stall
// check, exit check.
func (s *Supervisor) Run(ctx context.Context, spawner Spawner, kind types.WorkerKind, expectedBytes uint64, gov Governor, temp TemperatureSource) types.WorkerOutcome {
	handle, err := spawner.Spawn(ctx, expectedBytes)
	if err != nil {
		s.log.Error("failed to spawn worker", "kind", kind, "err", err)
		return types.OutcomeWorkerFailed
	}

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	var (
		lastBytes      uint64
		stallAgeS      float64
		warnedStall    bool
		lastTickTime   = time.Now()
		paused         bool
	)

	finish := func(outcome types.WorkerOutcome) types.WorkerOutcome {
		// A paused worker must be resumed before interrupt, on every exit
		// path, or it survives as a stopped orphan (spec §9).
		if paused {
			if err := handle.Continue(); err != nil {
				s.log.Warn("failed to resume paused worker before exit", "err", err)
			}
		}
		if outcome != types.OutcomeCompleted {
			if err := handle.Terminate(constants.TerminationGrace); err != nil {
				s.log.Warn("failed to terminate worker", "err", err)
			}
		}
		return outcome
	}

	for {
		select {
		case <-ctx.Done():
			return finish(types.OutcomeCancelled)
		case now := <-ticker.C:
			dt := now.Sub(lastTickTime).Seconds()
			lastTickTime = now

			sample := handle.Progress()
			percent := clampPercent(sample.BytesDone, expectedBytes)

			celsius, known := 0, false
			if temp != nil {
				celsius, known = temp()
			}

			directive := gov.Tick(celsius, known, dt)
			switch directive {
			case types.DirectivePause:
				if err := handle.Stop(); err != nil {
					s.log.Warn("failed to pause worker", "err", err)
				}
				paused = true
			case types.DirectiveResume:
				if err := handle.Continue(); err != nil {
					s.log.Warn("failed to resume worker", "err", err)
				}
				paused = false
			case types.DirectiveAbortOverTemp:
				return finish(types.OutcomeAbortedOverTemp)
			case types.DirectiveAbortSustained:
				return finish(types.OutcomeAbortedSustained)
			}

			if !paused {
				if sample.BytesDone <= lastBytes {
					stallAgeS += dt
				} else {
					stallAgeS = 0
					warnedStall = false
					lastBytes = sample.BytesDone
				}

				if stallAgeS >= s.hangKillS {
					s.log.Error("worker stalled, terminating", "kind", kind, "stall_age_s", stallAgeS)
					return finish(types.OutcomeAbortedStall)
				}
				if stallAgeS >= s.hangWarnS && !warnedStall {
					s.log.Warn("worker progress stalled", "kind", kind, "stall_age_s", stallAgeS)
					warnedStall = true
				}
			}

			if s.OnTick != nil {
				s.OnTick(kind, percent, sample.InstantaneousRate, celsius, known, paused)
			}

			if exited, exitErr := handle.Exited(); exited {
				if exitErr != nil {
					s.log.Warn("worker exited with failure", "kind", kind, "err", exitErr)
					return finish(types.OutcomeWorkerFailed)
				}
				return finish(types.OutcomeCompleted)
			}
		}
	}
}

// clampPercent computes bytesDone/expected as a percentage clamped to
// [0, 100], matching the display invariant of spec §3/§8. expected == 0
// (HealthProbe workers) always reports 0.
func clampPercent(bytesDone, expected uint64) float64 {
	if expected == 0 {
		return 0
	}
	pct := float64(bytesDone) / float64(expected) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
