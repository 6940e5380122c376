// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratastor/preclear-ng/pkg/types"
)

const sampleATAReport = `smartctl 7.3 2022-02-28 r5338 [x86_64-linux-6.1.0] (local build)
Copyright (C) 2002-22, Bruce Allen, Christian Franke, www.smartmontools.org

=== START OF READ SMART DATA SECTION ===
SMART Attributes Data Structure revision number: 16
Vendor Specific SMART Attributes with Thresholds:
ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0
  9 Power_On_Hours          0x0032   097   097   000    Old_age   Always       -       1234
190 Airflow_Temperature_Cel 0x0022   067   055   000    Old_age   Always       -       33
194 Temperature_Celsius     0x0022   067   055   000    Old_age   Always       -       33
197 Current_Pending_Sector  0x0012   100   100   000    Old_age   Always       -       0
198 Offline_Uncorrectable   0x0010   100   100   000    Old_age   Always       -       0
199 UDMA_CRC_Error_Count    0x003e   200   200   000    Old_age   Always       -       0
`

const sampleNVMeReport = `smartctl 7.3 2022-02-28 r5338 [x86_64-linux-6.1.0] (local build)

=== START OF SMART DATA SECTION ===
Temperature:                       41 Celsius
Power On Hours:                    2,001
Available Spare:                   100%
`

func TestParseSMARTTextATATable(t *testing.T) {
	attrs := ParseSMARTText(sampleATAReport)

	temp, ok := attrs["Temperature_Celsius"]
	require.True(t, ok)
	assert.True(t, temp.IsNumeric)
	assert.EqualValues(t, 33, temp.Numeric)

	hours, ok := attrs["Power_On_Hours"]
	require.True(t, ok)
	assert.EqualValues(t, 1234, hours.Numeric)
}

func TestParseSMARTTextGenericBanner(t *testing.T) {
	attrs := ParseSMARTText(sampleNVMeReport)

	temp, ok := attrs["Temperature"]
	require.True(t, ok)
	assert.True(t, temp.IsNumeric)
	assert.EqualValues(t, 41, temp.Numeric)
}

func TestTemperatureHelperPrefersNamedAttributes(t *testing.T) {
	snap := &types.HealthSnapshot{Attributes: ParseSMARTText(sampleATAReport)}
	c, ok := Temperature(snap)
	require.True(t, ok)
	assert.Equal(t, 33, c)
}

func TestTemperatureHelperUnknownOnEmptySnapshot(t *testing.T) {
	snap := &types.HealthSnapshot{Empty: true}
	_, ok := Temperature(snap)
	assert.False(t, ok)
}

func TestFirstIntExtractsLeadingDigits(t *testing.T) {
	n := firstInt("2,001 hours remaining")
	require.NotNil(t, n)
	assert.EqualValues(t, 2, *n)
}

func TestFirstIntNoDigitsReturnsNil(t *testing.T) {
	assert.Nil(t, firstInt("no numbers here"))
}
