// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mountpoint(s string) *string { return &s }

func TestParseSize(t *testing.T) {
	n, err := parseSize("  1000204886016  ")
	assert.NoError(t, err)
	assert.EqualValues(t, 1000204886016, n)

	_, err = parseSize("")
	assert.Error(t, err)

	_, err = parseSize("not-a-number")
	assert.Error(t, err)
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.True(t, isPowerOfTwo(512))
	assert.True(t, isPowerOfTwo(4096))
	assert.False(t, isPowerOfTwo(0))
	assert.False(t, isPowerOfTwo(513))
}

func TestRefuseIfMountedDirectMount(t *testing.T) {
	p := &Prober{}
	row := &lsblkRow{Path: "/dev/sdb", Mountpoint: mountpoint("/mnt/data")}
	err := p.refuseIfMounted(row)
	assert.Error(t, err)
}

func TestRefuseIfMountedUnmountedWithUnmountedChildren(t *testing.T) {
	p := &Prober{}
	row := &lsblkRow{
		Path: "/dev/sdb",
		Children: []lsblkRow{
			{Path: "/dev/sdb1"},
			{Path: "/dev/sdb2"},
		},
	}
	assert.NoError(t, p.refuseIfMounted(row))
}

func TestRefuseIfMountedDetectsMountedChild(t *testing.T) {
	p := &Prober{}
	row := &lsblkRow{
		Path: "/dev/sdb",
		Children: []lsblkRow{
			{Path: "/dev/sdb1"},
			{Path: "/dev/sdb2", Mountpoint: mountpoint("/boot")},
		},
	}
	err := p.refuseIfMounted(row)
	assert.Error(t, err)
}
