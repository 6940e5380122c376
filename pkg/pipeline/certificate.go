// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stratastor/preclear-ng/internal/constants"
	"github.com/stratastor/preclear-ng/internal/tools"
	"github.com/stratastor/preclear-ng/pkg/health"
	"github.com/stratastor/preclear-ng/pkg/types"
)

// writeCertificate renders and saves the end-of-run text certificate
// (spec §6 Certificate format). finalSnapshot is nil on an aborted run —
// the certificate still names the responsible step and reports whatever
// thermal data was gathered up to the abort.
func (e *Executor) writeCertificate(ctx context.Context, cycle int, failedOrFinalStep types.StepID, outcome types.WorkerOutcome, finalSnapshot *types.HealthSnapshot) string {
	if finalSnapshot == nil {
		finalSnapshot = e.sampler.Last()
	}

	rec := e.governor.Record()
	now := time.Now()

	var b strings.Builder
	fmt.Fprintf(&b, "preclear-ng certificate %s\n", constants.Version)
	fmt.Fprintf(&b, "run_id: %s\n", e.runID)
	fmt.Fprintf(&b, "date: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "device: %s\n", e.desc.Path)
	fmt.Fprintf(&b, "model: %s\n", e.desc.Model)
	fmt.Fprintf(&b, "serial: %s\n", e.desc.Serial)
	fmt.Fprintf(&b, "size_bytes: %d\n", e.desc.TotalBytes)
	fmt.Fprintf(&b, "logical_sector_bytes: %d\n", e.desc.LogicalSectorSize)
	fmt.Fprintf(&b, "rotational: %t\n", e.desc.Rotational)
	fmt.Fprintf(&b, "cycle: %d/%d\n", cycle, e.cfg.Cycles)
	b.WriteString("\n")

	if outcome == types.OutcomeCompleted {
		b.WriteString("result: completed\n")
		steps := e.cfg.activeSteps()
		names := make([]string, 0, len(steps))
		for _, s := range steps {
			names = append(names, s.String())
		}
		fmt.Fprintf(&b, "steps: %s\n", strings.Join(names, ", "))
	} else {
		fmt.Fprintf(&b, "result: aborted at step %d (%s): %s\n", int(failedOrFinalStep), failedOrFinalStep, outcome)
	}
	b.WriteString("\n")

	b.WriteString("thermal:\n")
	fmt.Fprintf(&b, "  run_min_c: %d\n", rec.RunMinC)
	fmt.Fprintf(&b, "  run_max_c: %d\n", rec.RunMaxC)
	fmt.Fprintf(&b, "  paused_seconds_total: %.0f\n", rec.PausedSeconds)
	fmt.Fprintf(&b, "  above_pause_seconds_total: %.0f\n", rec.AbovePauseSeconds)
	if !e.cfg.ThermalDisabled {
		fmt.Fprintf(&b, "  thresholds: resume=%d pause=%d abort=%d\n", e.cfg.Thermal.ResumeC, e.cfg.Thermal.PauseC, e.cfg.Thermal.AbortC)
	} else {
		b.WriteString("  thresholds: disabled\n")
	}
	b.WriteString("\n")

	b.WriteString("health snapshots:\n")
	fmt.Fprintf(&b, "  initial: %s\n", initialSnapshotPath(e.desc.Serial))
	fmt.Fprintf(&b, "  final:   %s\n", finalSnapshotPath(e.desc.Serial))
	b.WriteString("\n")

	e.writeSideProbes(ctx, &b)

	b.WriteString("attribute deltas (initial | current | delta):\n")
	for _, name := range types.ReportedAttributes {
		initAttr, initOK := health.Attribute(e.initialSnapshot, name)
		curAttr, curOK := health.Attribute(finalSnapshot, name)
		fmt.Fprintf(&b, "  %-26s %10s | %10s | %s\n",
			name, attrDisplay(initAttr, initOK), attrDisplay(curAttr, curOK), attrDelta(initAttr, initOK, curAttr, curOK))
	}

	e.persistSnapshots(finalSnapshot)

	path := certificatePath(e.cfg.ReportsDir, e.desc.Serial, now)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		e.log.Error("failed to create reports directory", "err", err)
		return ""
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		e.log.Error("failed to write certificate", "path", path, "err", err)
		return ""
	}
	e.log.Info("certificate written", "path", path)
	return path
}

// writeSideProbes appends the optional hdparm/fio enrichment block: a
// secondary rotational re-confirmation and a queue-depth hint, neither of
// which ever blocks certificate generation on failure or unavailability.
func (e *Executor) writeSideProbes(ctx context.Context, b *strings.Builder) {
	b.WriteString("side probes:\n")

	if e.toolChecker.IsAvailable("hdparm") {
		if out := tools.HdparmIdentify(ctx, e.log, e.hdparmPath, e.desc.Path); out != "" {
			fmt.Fprintf(b, "  hdparm_identify: captured (%d bytes)\n", len(out))
		} else {
			b.WriteString("  hdparm_identify: probe failed\n")
		}
	} else {
		b.WriteString("  hdparm_identify: tool unavailable\n")
	}

	if e.toolChecker.IsAvailable("fio") {
		if out := tools.FioQueueDepthHint(ctx, e.log, e.fioPath, e.desc.Path); out != "" {
			fmt.Fprintf(b, "  fio_queue_depth_hint: %s\n", out)
		} else {
			b.WriteString("  fio_queue_depth_hint: probe failed\n")
		}
	} else {
		b.WriteString("  fio_queue_depth_hint: tool unavailable\n")
	}
	b.WriteString("\n")
}

func (e *Executor) persistSnapshots(final *types.HealthSnapshot) {
	if e.initialSnapshot != nil && !e.initialSnapshot.Empty {
		os.WriteFile(initialSnapshotPath(e.desc.Serial), []byte(e.initialSnapshot.RawText), 0644)
	}
	if final != nil && !final.Empty {
		os.WriteFile(finalSnapshotPath(e.desc.Serial), []byte(final.RawText), 0644)
	}
}

func initialSnapshotPath(serial string) string {
	return fmt.Sprintf("%s/smart_%s_initial.txt", constants.DefaultStateDir, serial)
}

func finalSnapshotPath(serial string) string {
	return fmt.Sprintf("%s/smart_%s_last.txt", constants.DefaultStateDir, serial)
}

func certificatePath(reportsDir, serial string, at time.Time) string {
	return filepath.Join(reportsDir, fmt.Sprintf("preclear-ng_certificate_%s_%s.txt", serial, at.Format("2006.01.02_15.04.05")))
}

func attrDisplay(attr types.SMARTAttribute, ok bool) string {
	if !ok {
		return "-"
	}
	if attr.IsNumeric {
		return fmt.Sprintf("%d", attr.Numeric)
	}
	return attr.RawValue
}

func attrDelta(initAttr types.SMARTAttribute, initOK bool, curAttr types.SMARTAttribute, curOK bool) string {
	if !initOK || !curOK || !initAttr.IsNumeric || !curAttr.IsNumeric {
		return "-"
	}
	delta := curAttr.Numeric - initAttr.Numeric
	switch {
	case delta > 0:
		return fmt.Sprintf("up %d", delta)
	case delta < 0:
		return fmt.Sprintf("down %d", -delta)
	default:
		return "-"
	}
}
