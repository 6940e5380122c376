// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package thermal

import (
	"testing"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratastor/preclear-ng/pkg/types"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.thermal")
	require.NoError(t, err)
	return log
}

func TestValidateThresholdOrdering(t *testing.T) {
	tests := []struct {
		name    string
		t       types.ThermalThresholds
		wantErr bool
	}{
		{"valid", types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55}, false},
		{"resume_equals_pause", types.ThermalThresholds{ResumeC: 50, PauseC: 50, AbortC: 55}, true},
		{"pause_equals_abort", types.ThermalThresholds{ResumeC: 45, PauseC: 55, AbortC: 55}, true},
		{"reversed", types.ThermalThresholds{ResumeC: 55, PauseC: 50, AbortC: 45}, true},
		{"negative_budget", types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55, SustainedFailMinutes: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.t)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTickUnknownTemperatureContinues(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55})
	require.NoError(t, err)

	directive := g.Tick(0, false, 5)
	assert.Equal(t, types.DirectiveContinue, directive)
	assert.False(t, g.Record().CurrentKnown)
}

func TestTickOverAbortAbortsImmediately(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55})
	require.NoError(t, err)

	directive := g.Tick(55, true, 5)
	assert.Equal(t, types.DirectiveAbortOverTemp, directive)
}

func TestTickPauseThenResumeHysteresis(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55})
	require.NoError(t, err)

	assert.Equal(t, types.DirectiveContinue, g.Tick(40, true, 5))
	assert.Equal(t, types.DirectivePause, g.Tick(50, true, 5))
	assert.True(t, g.IsPaused())

	// Still above pause but below abort: stays paused, no repeat Pause directive.
	assert.Equal(t, types.DirectiveContinue, g.Tick(52, true, 5))
	assert.True(t, g.IsPaused())

	// Between resume and pause: neither cooled to resume, nor still triggering pause.
	assert.Equal(t, types.DirectiveContinue, g.Tick(48, true, 5))
	assert.True(t, g.IsPaused())

	// Cooled to resume threshold.
	assert.Equal(t, types.DirectiveResume, g.Tick(45, true, 5))
	assert.False(t, g.IsPaused())
}

func TestTickSustainedBudgetAborts(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{
		ResumeC: 45, PauseC: 50, AbortC: 55, SustainedFailMinutes: 1,
	})
	require.NoError(t, err)

	// Accrue above-pause-seconds at 52C, 30s per tick: budget is 60s.
	assert.Equal(t, types.DirectivePause, g.Tick(52, true, 30))
	assert.Equal(t, types.DirectiveAbortSustained, g.Tick(52, true, 30))
}

func TestTickRunMinMaxNeverReset(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55})
	require.NoError(t, err)

	g.Tick(30, true, 5)
	g.Tick(48, true, 5)
	g.ResetStep()
	g.Tick(35, true, 5)

	rec := g.Record()
	assert.Equal(t, 30, rec.RunMinC)
	assert.Equal(t, 48, rec.RunMaxC)
}

func TestResetPauseFlagClearsPauseButNotCounters(t *testing.T) {
	g, err := NewGovernor(testLogger(t), types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55})
	require.NoError(t, err)

	g.Tick(52, true, 10)
	require.True(t, g.IsPaused())
	before := g.Record().AbovePauseSeconds

	g.ResetPauseFlag()
	assert.False(t, g.IsPaused())
	assert.Equal(t, before, g.Record().AbovePauseSeconds)
}
