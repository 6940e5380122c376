// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/cmd/list"
	"github.com/stratastor/preclear-ng/cmd/version"
	"github.com/stratastor/preclear-ng/internal/config"
	"github.com/stratastor/preclear-ng/internal/hud"
	"github.com/stratastor/preclear-ng/internal/lifecycle"
	"github.com/stratastor/preclear-ng/internal/privilege"
	"github.com/stratastor/preclear-ng/pkg/device"
	"github.com/stratastor/preclear-ng/pkg/health"
	"github.com/stratastor/preclear-ng/pkg/pipeline"
	"github.com/stratastor/preclear-ng/pkg/types"
)

type flags struct {
	cycles             int
	resume             bool
	noPrompt           bool
	skipPreRead        bool
	skipBadblocks      bool
	skipZero           bool
	skipPostRead       bool
	badblocksPatterns  string
	badblocksBlockSize uint64
	smartType          string
	smartLong          bool
	tempDisable        bool
	tempPause          int
	tempResume         int
	tempAbort          int
	tempInterval       int
	tempFailMin        int
}

// NewRootCmd builds the "preclear-ng <device>" command tree.
func NewRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "preclear-ng <device>",
		Short: "Destructively condition and certify a raw block device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], f)
		},
	}

	rootCmd.Flags().IntVar(&f.cycles, "cycles", 1, "run N full pipelines")
	rootCmd.Flags().BoolVar(&f.resume, "resume", false, "load checkpoint if valid; else start at step 1")
	rootCmd.Flags().BoolVar(&f.noPrompt, "no-prompt", false, "skip the interactive YES confirmation")
	rootCmd.Flags().BoolVar(&f.skipPreRead, "skip-preread", false, "omit the pre-read step")
	rootCmd.Flags().BoolVar(&f.skipBadblocks, "skip-badblocks", false, "omit the destructive pattern-write step")
	rootCmd.Flags().BoolVar(&f.skipZero, "skip-zero", false, "omit the zero-fill step")
	rootCmd.Flags().BoolVar(&f.skipPostRead, "skip-postread", false, "omit the verify-read step")
	rootCmd.Flags().StringVar(&f.badblocksPatterns, "badblocks-patterns", "", "override destructive pattern list (CSV of hex bytes)")
	rootCmd.Flags().Uint64Var(&f.badblocksBlockSize, "badblocks-blocksize", 0, "override write block size (>= logical sector)")
	rootCmd.Flags().StringVar(&f.smartType, "smart-type", "", "override health-interface transport hint")
	rootCmd.Flags().BoolVar(&f.smartLong, "smart-long", false, "schedule long self-test at step 3")
	rootCmd.Flags().BoolVar(&f.tempDisable, "temp-disable", false, "disable the thermal governor")
	rootCmd.Flags().IntVar(&f.tempPause, "temp-pause", 0, "override pause threshold, degrees C")
	rootCmd.Flags().IntVar(&f.tempResume, "temp-resume", 0, "override resume threshold, degrees C")
	rootCmd.Flags().IntVar(&f.tempAbort, "temp-abort", 0, "override abort threshold, degrees C")
	rootCmd.Flags().IntVar(&f.tempInterval, "temp-interval", 0, "governor tick granularity, seconds")
	rootCmd.Flags().IntVar(&f.tempFailMin, "temp-fail-min", 0, "sustained-heat fail budget in minutes; 0 disables")

	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(list.NewListCmd())

	return rootCmd
}

func run(cmd *cobra.Command, devicePath string, f *flags) error {
	code, err := runPipeline(cmd, devicePath, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// runPipeline does the actual work and returns the process exit code the
// caller should use, so every deferred cleanup (notably the signal
// handler release) still runs before exit.
func runPipeline(cmd *cobra.Command, devicePath string, f *flags) (int, error) {
	cfg := config.LoadConfig("")
	l, err := logger.NewTag(logger.Config{LogLevel: cfg.Logger.LogLevel, EnableSentry: cfg.Logger.EnableSentry, SentryDSN: cfg.Logger.SentryDSN}, "preclear")
	if err != nil {
		return 1, err
	}

	if err := privilege.RequireRoot(); err != nil {
		return 1, err
	}

	ctx, stop := lifecycle.WithSignalCancel(cmd.Context())
	defer stop()

	prober := device.NewProber(l, cfg.Tools.Lsblk, cfg.Tools.Blockdev, cfg.Tools.Findmnt)
	desc, err := prober.Identify(ctx, devicePath)
	if err != nil {
		return 1, err
	}

	pcfg, err := buildConfig(f, desc, cfg.StateDir, cfg.ReportsDir)
	if err != nil {
		return 1, err
	}
	if err := pcfg.Validate(); err != nil {
		return 1, err
	}

	if !f.noPrompt {
		if !confirm(devicePath, desc) {
			return 1, fmt.Errorf("aborted: confirmation not given")
		}
	}

	sampler := health.NewSampler(l, cfg.Tools.Smartctl, devicePath, f.smartType, 0)
	exec, err := pipeline.NewExecutor(l, pcfg, desc, cfg.Tools.DD, cfg.Tools.Hdparm, cfg.Tools.Fio, sampler)
	if err != nil {
		return 1, err
	}

	display := hud.New(os.Stdout)
	exec.SetOnTick(func(kind types.WorkerKind, percent float64, rate string, temperatureC int, temperatureKnown, paused bool) {
		display.Update(string(kind), percent, rate, temperatureC, temperatureKnown, paused)
	})

	result := exec.Run(ctx)
	display.Done(summaryLine(result))
	if result.CertificatePath != "" {
		fmt.Printf("certificate: %s\n", result.CertificatePath)
	}
	return result.ExitCode, nil
}

func summaryLine(r pipeline.Result) string {
	if r.ExitCode == 0 {
		return "completed"
	}
	return fmt.Sprintf("%s at step %s", r.Outcome, r.FailedStep)
}

func confirm(devicePath string, desc *types.DeviceDescriptor) bool {
	fmt.Printf("About to destructively condition %s (%s, serial %s, %d bytes).\n", devicePath, desc.Model, desc.Serial, desc.TotalBytes)
	fmt.Print("Type YES to proceed: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "YES"
}

func buildConfig(f *flags, desc *types.DeviceDescriptor, stateDir, reportsDir string) (*pipeline.Config, error) {
	thresholds := types.DefaultThermalThresholds(desc.Rotational)
	if f.tempPause != 0 {
		thresholds.PauseC = f.tempPause
	}
	if f.tempResume != 0 {
		thresholds.ResumeC = f.tempResume
	}
	if f.tempAbort != 0 {
		thresholds.AbortC = f.tempAbort
	}
	thresholds.SustainedFailMinutes = f.tempFailMin

	patterns, err := parsePatterns(f.badblocksPatterns)
	if err != nil {
		return nil, err
	}

	return &pipeline.Config{
		DevicePath:         desc.Path,
		Cycles:             f.cycles,
		Resume:             f.resume,
		NoPrompt:           f.noPrompt,
		SkipPreRead:        f.skipPreRead,
		SkipBadblocks:      f.skipBadblocks,
		SkipZero:           f.skipZero,
		SkipPostRead:       f.skipPostRead,
		BadblocksPatterns:  patterns,
		BadblocksBlockSize: f.badblocksBlockSize,
		SmartType:          f.smartType,
		SmartLong:          f.smartLong,
		ThermalDisabled:    f.tempDisable,
		Thermal:            thresholds,
		ThermalInterval:    f.tempInterval,
		ThermalFailMin:     f.tempFailMin,
		StateDir:           stateDir,
		ReportsDir:         reportsDir,
	}, nil
}

func parsePatterns(csv string) ([]byte, error) {
	if csv == "" {
		return nil, nil // Config.Validate fills in the default list.
	}
	parts := strings.Split(csv, ",")
	patterns := make([]byte, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(strings.ToLower(p), "0x")
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid badblocks pattern %q: %w", p, err)
		}
		patterns = append(patterns, byte(n))
	}
	return patterns, nil
}
