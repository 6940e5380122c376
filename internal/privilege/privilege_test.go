// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package privilege

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedByInvokerMatchesCurrentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owned")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, OwnedByInvoker(info))
}

func TestNoGroupOrWorldWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, NoGroupOrWorldWrite(info))

	require.NoError(t, os.Chmod(path, 0666))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.False(t, NoGroupOrWorldWrite(info))
}

func TestRequireRootReflectsEffectiveUID(t *testing.T) {
	err := RequireRoot()
	if os.Geteuid() == 0 {
		assert.NoError(t, err)
	} else {
		assert.Error(t, err)
	}
}
