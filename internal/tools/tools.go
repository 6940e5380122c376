// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package tools checks external collaborator availability and runs the
// optional hdparm/fio side-probes that enrich a certificate header
// (rotational re-confirmation, queue depth) without ever sitting on the
// pipeline's critical path.
package tools

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
)

// Status reports one tool's availability.
type Status struct {
	Name      string
	Path      string
	Available bool
}

// Checker caches availability checks for the tool paths configured for
// this run.
type Checker struct {
	log       logger.Logger
	toolPaths map[string]string

	mu    sync.Mutex
	cache map[string]Status
}

// NewChecker builds a Checker over the given name->path table.
func NewChecker(log logger.Logger, toolPaths map[string]string) *Checker {
	return &Checker{log: log, toolPaths: toolPaths, cache: make(map[string]Status)}
}

// IsAvailable reports whether the named tool's configured path exists
// and is executable, caching the result.
func (c *Checker) IsAvailable(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache[name]; ok {
		return s.Available
	}

	path, ok := c.toolPaths[name]
	status := Status{Name: name, Path: path}
	if ok {
		if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			status.Available = true
		}
	}
	c.cache[name] = status
	if !status.Available {
		c.log.Debug("tool not available", "name", name, "path", path)
	}
	return status.Available
}

// HdparmIdentify runs a best-effort "hdparm -I" enrichment probe,
// returning its raw text output. Never on the critical path: errors are
// logged and swallowed, the certificate simply omits the enrichment.
func HdparmIdentify(ctx context.Context, log logger.Logger, hdparmPath, devicePath string) string {
	out, err := cmdexec.Run(ctx, log, 10*time.Second, hdparmPath, "-I", devicePath)
	if err != nil {
		log.Debug("hdparm identify probe failed", "device", devicePath, "err", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// FioQueueDepthHint runs a tiny, read-only fio probe at a fixed
// --iodepth=1 and returns fio's raw --minimal result line for the
// certificate header; no queue depth is parsed out of it. It is bounded
// and strictly non-destructive (--rw=read, a few seconds, no write I/O).
func FioQueueDepthHint(ctx context.Context, log logger.Logger, fioPath, devicePath string) string {
	out, err := cmdexec.Run(ctx, log, 15*time.Second, fioPath,
		"--name=preclear-probe",
		"--filename="+devicePath,
		"--rw=read",
		"--bs=4k",
		"--iodepth=1",
		"--size=4k",
		"--runtime=1",
		"--readonly",
		"--minimal",
	)
	if err != nil {
		log.Debug("fio queue depth probe failed", "device", devicePath, "err", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}
