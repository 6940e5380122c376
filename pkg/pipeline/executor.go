// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/internal/constants"
	"github.com/stratastor/preclear-ng/internal/tools"
	"github.com/stratastor/preclear-ng/pkg/checkpoint"
	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
	"github.com/stratastor/preclear-ng/pkg/health"
	"github.com/stratastor/preclear-ng/pkg/thermal"
	"github.com/stratastor/preclear-ng/pkg/types"
	"github.com/stratastor/preclear-ng/pkg/worker"
)

// Result is what Run returns: the exit code the caller's main() should
// use and the certificate path, if one was written.
type Result struct {
	ExitCode        int
	CertificatePath string
	FailedStep      types.StepID
	Outcome         types.WorkerOutcome
}

// Executor is the top-level (cycle, step) state machine. It is the sole
// writer of thermal counters, the checkpoint file, and the certificate
// (spec §3 Ownership).
type Executor struct {
	log    logger.Logger
	cfg    *Config
	desc   *types.DeviceDescriptor
	ddPath string

	sampler    *health.Sampler
	governor   *thermal.Governor
	supervisor *worker.Supervisor
	store      *checkpoint.Store
	scheduler  gocron.Scheduler

	// toolChecker, hdparmPath, and fioPath back the certificate's optional
	// side-probe enrichment (rotational re-confirmation, queue depth).
	// Neither probe ever sits on the pipeline's critical path.
	toolChecker *tools.Checker
	hdparmPath  string
	fioPath     string

	// runID correlates every log line and the certificate to one
	// invocation of Run, independent of the resumable (cycle, step)
	// checkpoint key.
	runID string

	cycleCooldown   time.Duration
	initialSnapshot *types.HealthSnapshot

	// Spawner factories are indirected through fields, defaulted to the
	// real worker constructors, so package tests can substitute in-process
	// fakes without spawning subprocesses (the same seam worker package
	// tests use for the supervisor).
	newDDSpawner      func(kind types.WorkerKind, directIO bool) worker.Spawner
	newPatternSpawner func(pattern byte) worker.Spawner
	newHealthSpawner  func() worker.Spawner

	// temperatureOverride, when set, replaces the sampler-backed
	// temperature source entirely — used by tests to drive the thermal
	// governor deterministically.
	temperatureOverride worker.TemperatureSource
}

// NewExecutor wires the components for one run against desc.
func NewExecutor(log logger.Logger, cfg *Config, desc *types.DeviceDescriptor, ddPath, hdparmPath, fioPath string, sampler *health.Sampler) (*Executor, error) {
	thresholds := cfg.Thermal
	if cfg.ThermalDisabled {
		// A disabled governor still needs a valid, permissive
		// configuration: set thresholds to the device's defaults so
		// NewGovernor's invariant check succeeds. The supervisor still
		// calls Tick every tick, but the temperature source reports
		// "unknown" while thermal is disabled, so Tick always returns
		// Continue and advances no counter.
		thresholds = types.DefaultThermalThresholds(desc.Rotational)
	}
	gov, err := thermal.NewGovernor(log, thresholds)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.ThermalInterval) * time.Second
	if interval <= 0 {
		interval = time.Duration(constants.DefaultTempIntervalS) * time.Second
	}
	sup := worker.NewSupervisor(log, interval, float64(constants.DefaultHangWarnS), float64(constants.DefaultHangKillS))

	store := checkpoint.NewStore(log, cfg.StateDir, desc.Serial)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, preclearerrors.Wrap(err, preclearerrors.ConfigLoadFailed)
	}

	toolChecker := tools.NewChecker(log, map[string]string{"hdparm": hdparmPath, "fio": fioPath})

	e := &Executor{
		log:           log,
		cfg:           cfg,
		desc:          desc,
		ddPath:        ddPath,
		sampler:       sampler,
		governor:      gov,
		supervisor:    sup,
		store:         store,
		scheduler:     scheduler,
		toolChecker:   toolChecker,
		hdparmPath:    hdparmPath,
		fioPath:       fioPath,
		runID:         uuid.NewString(),
		cycleCooldown: constants.DefaultCycleCooldown,
	}

	e.newDDSpawner = func(kind types.WorkerKind, directIO bool) worker.Spawner {
		return worker.NewDDWorker(e.log, e.ddPath, e.desc.Path, e.blockSize(), kind, directIO)
	}
	e.newPatternSpawner = func(pattern byte) worker.Spawner {
		return worker.NewPatternWorker(e.log, e.ddPath, e.desc.Path, e.cfg.StateDir, e.blockSize(), pattern)
	}
	e.newHealthSpawner = func() worker.Spawner {
		runner := func(ctx context.Context) error {
			args := []string{"-t", "long"}
			if e.cfg.SmartType != "" {
				args = append(args, "-d", e.cfg.SmartType)
			}
			args = append(args, e.desc.Path)
			_, err := cmdexec.Run(ctx, e.log, constants.HealthCaptureTimeout, e.sampler.SmartctlPath(), args...)
			return err
		}
		return worker.NewHealthProbeWorker(e.sampler.SmartctlPath(), e.desc.Path, e.cfg.SmartType, runner)
	}

	return e, nil
}

// RunID returns the correlation ID stamped into this run's log lines and
// certificate.
func (e *Executor) RunID() string {
	return e.runID
}

// Run drives the configured number of cycles to completion, abort, or
// cancellation.
func (e *Executor) Run(ctx context.Context) Result {
	e.log.Info("starting pipeline run", "run_id", e.runID, "device", e.desc.Path, "cycles", e.cfg.Cycles)

	e.startBackgroundHealthRefresh(ctx)
	defer func() {
		if err := e.scheduler.Shutdown(); err != nil {
			e.log.Warn("failed to shut down background scheduler", "run_id", e.runID, "err", err)
		}
	}()

	e.initialSnapshot = e.sampler.Capture(ctx)

	startCycle, startStep := 1, types.StepPreRead
	if e.cfg.Resume {
		if rec, ok := e.store.Read(); ok {
			startCycle, startStep = rec.Cycle, rec.Step
			e.log.Info("resuming from checkpoint", "run_id", e.runID, "cycle", startCycle, "step", startStep)
		} else {
			e.log.Info("resume requested but no valid checkpoint found, starting at (1,1)", "run_id", e.runID)
		}
	}

	for cycle := startCycle; cycle <= e.cfg.Cycles; cycle++ {
		if cycle > startCycle {
			if outcome, ok := e.awaitCycleCooldown(ctx); !ok {
				return Result{ExitCode: 1, FailedStep: types.StepPreRead, Outcome: outcome}
			}
		}

		firstStep := types.StepPreRead
		if cycle == startCycle {
			firstStep = startStep
		}

		for step := firstStep; step <= types.StepFinalize; step++ {
			if e.skipStep(step) {
				continue
			}

			e.governor.ResetStep()
			if err := e.store.Write(e.checkpointFor(step, cycle)); err != nil {
				e.log.Warn("failed to write checkpoint at step entry", "run_id", e.runID, "err", err)
			}

			outcome := e.runStep(ctx, step, cycle)

			switch {
			case outcome == types.OutcomeCompleted:
				continue
			case outcome.IsThermalAbort():
				e.store.Write(e.checkpointFor(step, cycle))
				path := e.writeCertificate(ctx, cycle, step, outcome, nil)
				return Result{ExitCode: constants.CertificateExitThermal, CertificatePath: path, FailedStep: step, Outcome: outcome}
			case outcome == types.OutcomeCancelled:
				e.store.Write(e.checkpointFor(step, cycle))
				return Result{ExitCode: 1, FailedStep: step, Outcome: outcome}
			default: // AbortedStall, WorkerFailed
				path := e.writeCertificate(ctx, cycle, step, outcome, nil)
				return Result{ExitCode: 1, CertificatePath: path, FailedStep: step, Outcome: outcome}
			}
		}
	}

	e.store.Delete()
	finalSnapshot := e.sampler.Capture(ctx)
	path := e.writeCertificate(ctx, e.cfg.Cycles, types.StepFinalize, types.OutcomeCompleted, finalSnapshot)
	return Result{ExitCode: 0, CertificatePath: path, Outcome: types.OutcomeCompleted}
}

// startBackgroundHealthRefresh schedules a recurring SMART re-probe
// independent of worker tick cadence, so a long-running step's cached
// snapshot (used for the thermal source and the eventual certificate)
// does not go stale even if the active step never calls RefreshIfStale
// itself (e.g. the destructive step's pattern passes).
func (e *Executor) startBackgroundHealthRefresh(ctx context.Context) {
	interval := time.Duration(constants.DefaultSMARTRefreshS) * time.Second
	_, err := e.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			e.sampler.RefreshIfStale(ctx, time.Now())
		}),
	)
	if err != nil {
		e.log.Warn("failed to schedule background SMART refresh, falling back to on-demand capture only", "run_id", e.runID, "err", err)
		return
	}
	e.scheduler.Start()
}

// awaitCycleCooldown lets the device settle thermally between cycles. It
// returns (outcome, false) if the wait was interrupted by cancellation.
func (e *Executor) awaitCycleCooldown(ctx context.Context) (types.WorkerOutcome, bool) {
	e.log.Info("cooling down between cycles", "run_id", e.runID, "cooldown", e.cycleCooldown)

	done := make(chan struct{})
	_, err := e.scheduler.NewJob(
		gocron.DurationJob(e.cycleCooldown),
		gocron.NewTask(func() { close(done) }),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		// Scheduling the cooldown itself failed: proceed without the
		// pause rather than blocking the pipeline on a scheduler bug.
		e.log.Warn("failed to schedule inter-cycle cooldown, proceeding immediately", "run_id", e.runID, "err", err)
		return types.OutcomeCompleted, true
	}

	select {
	case <-done:
		return types.OutcomeCompleted, true
	case <-ctx.Done():
		return types.OutcomeCancelled, false
	}
}

func (e *Executor) skipStep(step types.StepID) bool {
	switch step {
	case types.StepPreRead:
		return e.cfg.SkipPreRead
	case types.StepDestructive:
		return e.cfg.SkipBadblocks
	case types.StepLongSelfTest:
		return !e.cfg.SmartLong
	case types.StepZeroFill:
		return e.cfg.SkipZero
	case types.StepVerifyRead:
		return e.cfg.SkipPostRead
	case types.StepFinalize:
		return false
	}
	return false
}

func (e *Executor) checkpointFor(step types.StepID, cycle int) types.CheckpointRecord {
	rec := e.governor.Record()
	return types.CheckpointRecord{
		Step:                   step,
		Cycle:                  cycle,
		PausedSecondsTotal:     rec.PausedSeconds,
		AbovePauseSecondsTotal: rec.AbovePauseSeconds,
		TempMin:                rec.RunMinC,
		TempMax:                rec.RunMaxC,
	}
}

func (e *Executor) temperatureSource(ctx context.Context) worker.TemperatureSource {
	if e.temperatureOverride != nil {
		return e.temperatureOverride
	}
	return func() (int, bool) {
		if e.cfg.ThermalDisabled {
			return 0, false
		}
		snap := e.sampler.RefreshIfStale(ctx, time.Now())
		return health.Temperature(snap)
	}
}

// SetOnTick wires a progress callback invoked once per supervisor tick,
// driven by the caller's HUD.
func (e *Executor) SetOnTick(fn func(kind types.WorkerKind, percent float64, rate string, temperatureC int, temperatureKnown, paused bool)) {
	e.supervisor.OnTick = fn
}

func (e *Executor) blockSize() uint64 {
	if e.cfg.BadblocksBlockSize == 0 {
		return e.desc.LogicalSectorSize
	}
	if e.cfg.BadblocksBlockSize < e.desc.LogicalSectorSize {
		return e.desc.LogicalSectorSize
	}
	return e.cfg.BadblocksBlockSize
}

// runStep dispatches one step to its worker(s), applying the direct-I/O
// fallback retry for the three I/O-heavy steps (spec §4.4/§5).
func (e *Executor) runStep(ctx context.Context, step types.StepID, cycle int) types.WorkerOutcome {
	switch step {
	case types.StepPreRead, types.StepVerifyRead:
		return e.runWithDirectIOFallback(ctx, types.WorkerSurfaceRead)
	case types.StepDestructive:
		return e.runDestructive(ctx)
	case types.StepLongSelfTest:
		return e.runLongSelfTest(ctx)
	case types.StepZeroFill:
		return e.runWithDirectIOFallback(ctx, types.WorkerZeroWrite)
	case types.StepFinalize:
		return types.OutcomeCompleted
	}
	return types.OutcomeCompleted
}

func (e *Executor) runWithDirectIOFallback(ctx context.Context, kind types.WorkerKind) types.WorkerOutcome {
	spawner := e.newDDSpawner(kind, true)
	outcome := e.supervisor.Run(ctx, spawner, kind, e.desc.TotalBytes, e.governor, e.temperatureSource(ctx))
	if outcome != types.OutcomeWorkerFailed {
		return outcome
	}

	e.log.Warn("worker failed with direct I/O, retrying with buffered I/O", "kind", kind)
	bufferedSpawner := e.newDDSpawner(kind, false)
	return e.supervisor.Run(ctx, bufferedSpawner, kind, e.desc.TotalBytes, e.governor, e.temperatureSource(ctx))
}

// runDestructive executes the configured pattern list in order, each as
// an independently supervised worker. The step is Completed only when
// every pattern completes.
func (e *Executor) runDestructive(ctx context.Context) types.WorkerOutcome {
	for _, pattern := range e.cfg.BadblocksPatterns {
		if err := materializePatternFile(e.cfg.StateDir, pattern, e.blockSize()); err != nil {
			e.log.Error("failed to materialize pattern source file", "pattern", fmt.Sprintf("0x%02X", pattern), "err", err)
			return types.OutcomeWorkerFailed
		}

		e.governor.ResetPauseFlag()
		spawner := e.newPatternSpawner(pattern)
		outcome := e.supervisor.Run(ctx, spawner, types.WorkerPatternWrite, e.desc.TotalBytes, e.governor, e.temperatureSource(ctx))
		if outcome != types.OutcomeCompleted {
			return outcome
		}
	}
	return types.OutcomeCompleted
}

// runLongSelfTest requests the device's long internal self-test and does
// not block on its completion (spec §4.6).
func (e *Executor) runLongSelfTest(ctx context.Context) types.WorkerOutcome {
	spawner := e.newHealthSpawner()
	return e.supervisor.Run(ctx, spawner, types.WorkerHealthProbe, 0, e.governor, e.temperatureSource(ctx))
}

// materializePatternFile writes a block-sized file of repeated pattern
// bytes that dd streams as its input for a destructive pass.
func materializePatternFile(stateDir string, pattern byte, blockSize uint64) error {
	if stateDir == "" {
		stateDir = constants.DefaultStateDir
	}
	path := filepath.Join(stateDir, fmt.Sprintf("pattern_%02x.bin", pattern))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return preclearerrors.Wrap(err, preclearerrors.CommandExecution).WithMetadata("path", path)
	}
	buf := bytes.Repeat([]byte{pattern}, int(blockSize))
	return os.WriteFile(path, buf, 0600)
}
