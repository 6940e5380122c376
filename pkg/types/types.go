// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package types holds the shared, dependency-free data model for the
// pre-clear pipeline: the device descriptor, step/worker identifiers,
// progress samples, thermal records and thresholds, checkpoint records,
// and health snapshots. Every other package in this module consumes these
// types; none of them import back into the components that produce values
// of these types.
package types

import "time"

// StepID identifies one phase of the pipeline, in execution order.
type StepID int

const (
	StepPreRead StepID = 1 + iota
	StepDestructive
	StepLongSelfTest
	StepZeroFill
	StepVerifyRead
	StepFinalize
)

func (s StepID) String() string {
	switch s {
	case StepPreRead:
		return "pre-read"
	case StepDestructive:
		return "destructive"
	case StepLongSelfTest:
		return "long-self-test"
	case StepZeroFill:
		return "zero-fill"
	case StepVerifyRead:
		return "verify-read"
	case StepFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a recognized step in 1..6.
func (s StepID) Valid() bool {
	return s >= StepPreRead && s <= StepFinalize
}

// WorkerKind identifies the external worker variant a step supervises.
type WorkerKind string

const (
	WorkerSurfaceRead  WorkerKind = "surface-read"
	WorkerZeroWrite    WorkerKind = "zero-write"
	WorkerPatternWrite WorkerKind = "pattern-write"
	WorkerHealthProbe  WorkerKind = "health-probe"
)

// DeviceDescriptor is the immutable identity of the device under
// conditioning for the lifetime of a run. Produced once by the Device
// Probe and consumed read-only by every other component.
type DeviceDescriptor struct {
	Path             string
	Model            string
	Serial           string
	TotalBytes       uint64
	LogicalSectorSize uint64
	Rotational       bool
}

// ThermalThresholds configures the Thermal Governor. Resume < Pause < Abort
// is a hard invariant, validated at configuration time by thermal.Validate
// (called from thermal.NewGovernor).
type ThermalThresholds struct {
	PauseC             int
	ResumeC            int
	AbortC             int
	SustainedFailMinutes int // 0 disables the sustained-heat check
}

// DefaultThermalThresholds returns the media-class defaults from spec §4.1.
func DefaultThermalThresholds(rotational bool) ThermalThresholds {
	if rotational {
		return ThermalThresholds{PauseC: 50, ResumeC: 45, AbortC: 55}
	}
	return ThermalThresholds{PauseC: 60, ResumeC: 55, AbortC: 70}
}

// GovernorDirective is the discrete command issued by the Thermal Governor
// on each tick.
type GovernorDirective int

const (
	DirectiveContinue GovernorDirective = iota
	DirectivePause
	DirectiveResume
	DirectiveAbortOverTemp
	DirectiveAbortSustained
)

func (d GovernorDirective) String() string {
	switch d {
	case DirectiveContinue:
		return "continue"
	case DirectivePause:
		return "pause"
	case DirectiveResume:
		return "resume"
	case DirectiveAbortOverTemp:
		return "abort-overtemp"
	case DirectiveAbortSustained:
		return "abort-sustained"
	default:
		return "unknown"
	}
}

// ThermalRecord is the per-run thermal bookkeeping the Pipeline Executor
// owns and the Thermal Governor mutates through Tick.
type ThermalRecord struct {
	CurrentC         int
	CurrentKnown     bool
	RunMinC          int
	RunMaxC          int
	StepMinC         int
	StepMaxC         int
	PausedSeconds    float64
	AbovePauseSeconds float64
	Paused           bool
}

// ResetStep resets step-scoped min/max at every step transition. Run
// min/max and the cumulative counters are never reset.
func (t *ThermalRecord) ResetStep() {
	t.StepMinC = 0
	t.StepMaxC = 0
}

// ProgressSample is one observation of a supervised worker's progress.
type ProgressSample struct {
	BytesDone        uint64
	InstantaneousRate string // verbatim rate string as reported by the worker
	ObservedAt       time.Time
}

// WorkerOutcome classifies how a supervised worker's step ended.
type WorkerOutcome int

const (
	OutcomeCompleted WorkerOutcome = iota
	OutcomeAbortedOverTemp
	OutcomeAbortedSustained
	OutcomeAbortedStall
	OutcomeWorkerFailed
	OutcomeCancelled
)

func (o WorkerOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAbortedOverTemp:
		return "aborted-thermal-overtemp"
	case OutcomeAbortedSustained:
		return "aborted-thermal-sustained"
	case OutcomeAbortedStall:
		return "aborted-stall"
	case OutcomeWorkerFailed:
		return "worker-failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsThermalAbort reports whether the outcome is one of the two thermal
// abort variants the executor must special-case (checkpoint + exit 75).
func (o WorkerOutcome) IsThermalAbort() bool {
	return o == OutcomeAbortedOverTemp || o == OutcomeAbortedSustained
}

// CheckpointRecord is the persisted step-boundary state that lets a
// partially complete run resume after process death.
type CheckpointRecord struct {
	Step              StepID
	Cycle             int
	PausedSecondsTotal float64
	AbovePauseSecondsTotal float64
	TempMin           int
	TempMax           int
}

// SMARTAttribute is one named, parsed attribute from a health snapshot.
type SMARTAttribute struct {
	Name     string
	RawValue string
	Numeric  int64
	IsNumeric bool
}

// HealthSnapshot is a captured, timestamped SMART report: the opaque text
// blob plus whatever attributes the parser could extract from it.
type HealthSnapshot struct {
	CapturedAt time.Time
	RawText    string
	Attributes map[string]SMARTAttribute
	Empty      bool // true when capture failed or timed out; never fatal downstream
}

// ReportedAttributes lists the named attributes that make up a
// certificate's before/after delta block, in display order.
var ReportedAttributes = []string{
	"Reallocated_Sector_Ct",
	"Current_Pending_Sector",
	"Offline_Uncorrectable",
	"UDMA_CRC_Error_Count",
	"Power_On_Hours",
	"Power_Cycle_Count",
	"Temperature_Celsius",
}
