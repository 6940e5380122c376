// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package cmdexec

import (
	"context"
	"testing"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
)

func TestRunRejectsRelativePath(t *testing.T) {
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.cmdexec")
	require.NoError(t, err)

	_, err = Run(context.Background(), log, 0, "smartctl", "-a", "/dev/sda")
	require.Error(t, err)
	var pe *preclearerrors.PreclearError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, preclearerrors.CommandInvalidInput, pe.Code)
}

func TestRunRejectsShellMetacharactersInCommand(t *testing.T) {
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.cmdexec")
	require.NoError(t, err)

	_, err = Run(context.Background(), log, 0, "/usr/bin/smartctl; rm -rf /")
	require.Error(t, err)
}

func TestRunRejectsShellMetacharactersInArgs(t *testing.T) {
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.cmdexec")
	require.NoError(t, err)

	_, err = Run(context.Background(), log, 0, "/bin/echo", "$(whoami)")
	require.Error(t, err)
}

func TestRunRejectsTooManyArgs(t *testing.T) {
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.cmdexec")
	require.NoError(t, err)

	args := make([]string, 300)
	for i := range args {
		args[i] = "x"
	}
	_, err = Run(context.Background(), log, 0, "/bin/echo", args...)
	require.Error(t, err)
}

func TestRunSucceedsOnValidAbsoluteCommand(t *testing.T) {
	log, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.cmdexec")
	require.NoError(t, err)

	out, err := Run(context.Background(), log, 0, "/bin/echo", "hello")
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
}

func TestScanLinesOrCRSplitsOnBothTerminators(t *testing.T) {
	data := []byte("first\rsecond\nthird")
	var tokens []string
	rest := data
	for {
		advance, token, err := scanLinesOrCR(rest, true)
		require.NoError(t, err)
		if advance == 0 {
			break
		}
		tokens = append(tokens, string(token))
		rest = rest[advance:]
		if len(rest) == 0 {
			break
		}
	}
	assert.Equal(t, []string{"first", "second", "third"}, tokens)
}
