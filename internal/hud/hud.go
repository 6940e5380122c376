// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package hud renders a single-line, self-overwriting progress display
// to standard output: percent complete, rate, temperature, and paused
// state. It is external scaffolding (spec §2) with a minimal but real
// implementation so the CLI is usable end-to-end; it holds no pipeline
// state of its own and is driven entirely by Update calls.
package hud

import (
	"fmt"
	"io"
	"strings"
)

// HUD renders run progress to an io.Writer, typically os.Stdout.
type HUD struct {
	w       io.Writer
	lastLen int
}

// New builds a HUD writing to w.
func New(w io.Writer) *HUD {
	return &HUD{w: w}
}

// Update overwrites the previous line with a new progress summary.
func (h *HUD) Update(step string, percent float64, rate string, temperatureC int, temperatureKnown, paused bool) {
	temp := "unknown"
	if temperatureKnown {
		temp = fmt.Sprintf("%d C", temperatureC)
	}

	status := "running"
	if paused {
		status = "paused (thermal)"
	}

	line := fmt.Sprintf("[%-12s] %5.1f%%  rate=%-14s temp=%-8s %s", step, percent, displayRate(rate), temp, status)
	h.render(line)
}

// Done clears the progress line and prints a final message.
func (h *HUD) Done(message string) {
	h.render("")
	fmt.Fprintln(h.w, message)
}

func (h *HUD) render(line string) {
	pad := ""
	if len(line) < h.lastLen {
		pad = strings.Repeat(" ", h.lastLen-len(line))
	}
	fmt.Fprintf(h.w, "\r%s%s", line, pad)
	h.lastLen = len(line)
}

func displayRate(rate string) string {
	if rate == "" {
		return "-"
	}
	return rate
}
