// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the Pipeline Executor: the top-level
// (cycle, step) state machine that drives pre-read, destructive
// pattern-write, optional long self-test, zero-fill, verify-read, and
// finalize in order, honoring skip flags, checkpoint resume, and thermal
// or stall aborts. Every transition is validated, applied, then logged,
// following a linear ordered step sequence rather than a graph.
package pipeline

import (
	"fmt"

	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// Config is the immutable configuration record produced once by argument
// parsing (spec §9: "no global mutable configuration after startup").
type Config struct {
	DevicePath string
	Cycles     int

	Resume    bool
	NoPrompt  bool

	SkipPreRead  bool
	SkipBadblocks bool
	SkipZero     bool
	SkipPostRead bool

	BadblocksPatterns []byte // default 0xAA, 0x55, 0xFF, 0x00
	BadblocksBlockSize uint64 // 0 means "use logical sector size"

	SmartType string
	SmartLong bool

	ThermalDisabled  bool
	Thermal          types.ThermalThresholds
	ThermalInterval  int // seconds
	ThermalFailMin   int

	StateDir   string
	ReportsDir string
}

// Validate checks flag-derived invariants that must be caught before any
// device action (spec §7 ConfigError).
func (c *Config) Validate() error {
	if c.Cycles < 1 {
		return preclearerrors.New(preclearerrors.ConfigInvalid, fmt.Sprintf("cycles must be >= 1, got %d", c.Cycles))
	}
	if len(c.BadblocksPatterns) == 0 {
		c.BadblocksPatterns = []byte{0xAA, 0x55, 0xFF, 0x00}
	}
	if !c.ThermalDisabled {
		if !(c.Thermal.ResumeC < c.Thermal.PauseC && c.Thermal.PauseC < c.Thermal.AbortC) {
			return preclearerrors.New(preclearerrors.ConfigInvalid, fmt.Sprintf(
				"thermal thresholds must satisfy resume_c(%d) < pause_c(%d) < abort_c(%d)",
				c.Thermal.ResumeC, c.Thermal.PauseC, c.Thermal.AbortC))
		}
	}
	if c.ThermalFailMin < 0 {
		return preclearerrors.New(preclearerrors.ConfigInvalid, "temp-fail-min must be >= 0")
	}
	return nil
}

// activeSteps returns, in order, the steps this run will execute given
// the skip flags — used by the certificate to name all active steps. The
// executor loop applies the same flags step by step through skipStep.
func (c *Config) activeSteps() []types.StepID {
	var steps []types.StepID
	if !c.SkipPreRead {
		steps = append(steps, types.StepPreRead)
	}
	if !c.SkipBadblocks {
		steps = append(steps, types.StepDestructive)
	}
	if c.SmartLong {
		steps = append(steps, types.StepLongSelfTest)
	}
	if !c.SkipZero {
		steps = append(steps, types.StepZeroFill)
	}
	if !c.SkipPostRead {
		steps = append(steps, types.StepVerifyRead)
	}
	steps = append(steps, types.StepFinalize)
	return steps
}
