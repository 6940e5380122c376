// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/types"
)

func baseConfig() *Config {
	return &Config{
		Cycles: 1,
		Thermal: types.ThermalThresholds{ResumeC: 45, PauseC: 50, AbortC: 55},
	}
}

func TestValidateRejectsZeroCycles(t *testing.T) {
	cfg := baseConfig()
	cfg.Cycles = 0
	err := cfg.Validate()
	require.Error(t, err)
	var pe *preclearerrors.PreclearError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, preclearerrors.ConfigInvalid, pe.Code)
}

func TestValidateFillsDefaultPatternList(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []byte{0xAA, 0x55, 0xFF, 0x00}, cfg.BadblocksPatterns)
}

func TestValidatePreservesExplicitPatternList(t *testing.T) {
	cfg := baseConfig()
	cfg.BadblocksPatterns = []byte{0x11}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []byte{0x11}, cfg.BadblocksPatterns)
}

func TestValidateRejectsBadThermalOrdering(t *testing.T) {
	cfg := baseConfig()
	cfg.Thermal = types.ThermalThresholds{ResumeC: 55, PauseC: 50, AbortC: 45}
	assert.Error(t, cfg.Validate())
}

func TestValidateSkipsThermalCheckWhenDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.ThermalDisabled = true
	cfg.Thermal = types.ThermalThresholds{ResumeC: 55, PauseC: 50, AbortC: 45}
	assert.NoError(t, cfg.Validate())
}

func TestActiveStepsHonorsSkipFlags(t *testing.T) {
	cfg := baseConfig()
	cfg.SkipBadblocks = true
	cfg.SkipPostRead = true

	steps := cfg.activeSteps()
	assert.Equal(t, []types.StepID{types.StepPreRead, types.StepZeroFill, types.StepFinalize}, steps)
}

func TestActiveStepsIncludesLongSelfTestOnlyWhenRequested(t *testing.T) {
	cfg := baseConfig()
	cfg.SmartLong = true

	steps := cfg.activeSteps()
	assert.Contains(t, steps, types.StepLongSelfTest)
}
