// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package thermal implements the Thermal Governor: a per-tick state
// machine that consumes a temperature reading and issues one of
// {Continue, Pause, Resume, AbortOverTemp, AbortSustained} to the worker
// supervisor. Grounded on the ticker-driven monitor loop shape common to
// hardware thermal monitors in the retrieval pack (a fixed-interval
// sample-then-decide loop), generalized from GPIO fan control to
// supervisor directives.
package thermal

import (
	"github.com/stratastor/logger"

	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// Governor evaluates thermal policy against one device's thresholds for
// the duration of a run. It is not concurrency-safe by design: the
// pipeline executor's single control loop is its only caller.
type Governor struct {
	log        logger.Logger
	thresholds types.ThermalThresholds
	record     types.ThermalRecord
	observed   bool // true once the first known temperature reading has been folded into min/max
}

// NewGovernor validates thresholds (resume < pause < abort, strict) and
// builds a Governor. An invalid ordering is a ConfigError caught before
// any device action, per spec §7.
func NewGovernor(log logger.Logger, thresholds types.ThermalThresholds) (*Governor, error) {
	if err := Validate(thresholds); err != nil {
		return nil, err
	}
	return &Governor{log: log, thresholds: thresholds}, nil
}

// Validate checks the hysteresis invariant resume_c < pause_c < abort_c
// and that sustained_fail_minutes is non-negative.
func Validate(t types.ThermalThresholds) error {
	if !(t.ResumeC < t.PauseC && t.PauseC < t.AbortC) {
		return preclearerrors.New(preclearerrors.ThermalConfigInvalid,
			"thresholds must satisfy resume_c < pause_c < abort_c")
	}
	if t.SustainedFailMinutes < 0 {
		return preclearerrors.New(preclearerrors.ThermalConfigInvalid,
			"sustained_fail_minutes must be >= 0")
	}
	return nil
}

// Record returns a copy of the governor's current thermal bookkeeping.
func (g *Governor) Record() types.ThermalRecord {
	return g.record
}

// ResetStep resets step-scoped min/max at a step transition, per spec
// §3 (run min/max and cumulative counters are never reset).
func (g *Governor) ResetStep() {
	g.record.ResetStep()
}

// Tick evaluates one poll cycle: currentC/known is the latest
// temperature reading, dtSeconds is the elapsed time since the last
// tick. It implements the eight-step algorithm of spec §4.3 exactly in
// order.
func (g *Governor) Tick(currentC int, known bool, dtSeconds float64) types.GovernorDirective {
	// 1. Unknown temperature: continue, counters untouched.
	if !known {
		g.record.CurrentKnown = false
		return types.DirectiveContinue
	}

	// 2. Update run and step min/max.
	g.record.CurrentC = currentC
	g.record.CurrentKnown = true
	if !g.observed {
		g.record.RunMinC = currentC
		g.record.RunMaxC = currentC
		g.observed = true
	} else {
		if currentC < g.record.RunMinC {
			g.record.RunMinC = currentC
		}
		if currentC > g.record.RunMaxC {
			g.record.RunMaxC = currentC
		}
	}
	if g.record.StepMinC == 0 || currentC < g.record.StepMinC {
		g.record.StepMinC = currentC
	}
	if currentC > g.record.StepMaxC {
		g.record.StepMaxC = currentC
	}

	// 3. Over abort threshold: abort immediately.
	if currentC >= g.thresholds.AbortC {
		g.log.Error("thermal abort: device over abort threshold", "temp_c", currentC, "abort_c", g.thresholds.AbortC)
		return types.DirectiveAbortOverTemp
	}

	directive := types.DirectiveContinue

	// 4. Over pause threshold: accrue above-pause-seconds, request pause
	// if not already paused.
	if currentC >= g.thresholds.PauseC {
		g.record.AbovePauseSeconds += dtSeconds
		if !g.record.Paused {
			g.record.Paused = true
			g.log.Warn("thermal pause: device over pause threshold", "temp_c", currentC, "pause_c", g.thresholds.PauseC)
			directive = types.DirectivePause
		}
	}

	// 5. If paused and cooled to resume threshold: resume.
	if g.record.Paused && currentC <= g.thresholds.ResumeC {
		g.record.Paused = false
		g.log.Info("thermal resume: device cooled to resume threshold", "temp_c", currentC, "resume_c", g.thresholds.ResumeC)
		directive = types.DirectiveResume
	}

	// 6. If still paused: accrue paused-seconds.
	if g.record.Paused {
		g.record.PausedSeconds += dtSeconds
	}

	// 7. Sustained-heat fail budget.
	if g.thresholds.SustainedFailMinutes > 0 {
		budget := float64(g.thresholds.SustainedFailMinutes) * 60
		if g.record.AbovePauseSeconds >= budget {
			g.log.Error("thermal abort: sustained heat budget exceeded",
				"above_pause_seconds", g.record.AbovePauseSeconds, "budget_seconds", budget)
			return types.DirectiveAbortSustained
		}
	}

	// 8. Otherwise, whatever directive step 4/5 produced (possibly
	// Continue if neither triggered this tick).
	return directive
}

// IsPaused reports the governor's current paused flag.
func (g *Governor) IsPaused() bool {
	return g.record.Paused
}

// ResetPauseFlag clears the paused flag without touching paused-seconds
// or above-pause-seconds. Used between patterns within the destructive
// step: spec §9 makes explicit that the flag resets per independently
// supervised pattern pass while the cumulative counters do not.
func (g *Governor) ResetPauseFlag() {
	g.record.Paused = false
}
