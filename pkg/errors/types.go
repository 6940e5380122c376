// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import "net/http"

// Domain represents the subsystem where the error originated.
type Domain string

const (
	DomainConfig     Domain = "CONFIG"
	DomainCommand    Domain = "CMD"
	DomainProbe      Domain = "PROBE"
	DomainHealth     Domain = "HEALTH"
	DomainThermal    Domain = "THERMAL"
	DomainWorker     Domain = "WORKER"
	DomainCheckpoint Domain = "CHECKPOINT"
	DomainPipeline   Domain = "PIPELINE"
	DomainMisc       Domain = "MISC"
)

// ErrorCode is a unique error identifier within a Domain.
type ErrorCode int

// PreclearError is the typed error returned by every component in this
// module. It carries enough structure for both human-readable logging and
// certificate annotation.
type PreclearError struct {
	Code       ErrorCode         `json:"code"`
	Domain     Domain            `json:"domain"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Error code ranges:
// 1000-1099: configuration
// 1100-1199: command execution
// 1200-1299: device probe
// 1300-1399: health sampler
// 1400-1499: thermal governor
// 1500-1599: worker supervisor
// 1600-1699: checkpoint store
// 1700-1799: pipeline executor
const (
	ConfigInvalid ErrorCode = 1000 + iota
	ConfigLoadFailed
	ConfigValidationFailed
)

const (
	CommandInvalidInput ErrorCode = 1100 + iota
	CommandNotFound
	CommandExecution
	CommandTimeout
	CommandPipe
)

const (
	ProbeNotBlockDevice ErrorCode = 1200 + iota
	ProbeSizeUnreadable
	ProbeMounted
	ProbeRootBackingStore
	ProbeFailed
)

const (
	HealthCaptureTimeout ErrorCode = 1300 + iota
	HealthCaptureFailed
	HealthParseFailed
)

const (
	ThermalConfigInvalid ErrorCode = 1400 + iota
)

const (
	WorkerSpawnFailed ErrorCode = 1500 + iota
	WorkerFailedExit
	WorkerStalled
	WorkerKillFailed
)

const (
	CheckpointWriteFailed ErrorCode = 1600 + iota
	CheckpointReadRejected
)

const (
	PipelineAbortedThermal ErrorCode = 1700 + iota
	PipelineAbortedStall
	PipelineWorkerFailure
	PipelineCancelled
)

type errDef struct {
	message    string
	domain     Domain
	httpStatus int
}

var errorDefinitions = map[ErrorCode]errDef{
	ConfigInvalid:          {"invalid configuration value", DomainConfig, http.StatusBadRequest},
	ConfigLoadFailed:       {"failed to load configuration", DomainConfig, http.StatusInternalServerError},
	ConfigValidationFailed: {"configuration validation failed", DomainConfig, http.StatusBadRequest},

	CommandInvalidInput: {"command input rejected by security checks", DomainCommand, http.StatusBadRequest},
	CommandNotFound:     {"command binary not found", DomainCommand, http.StatusNotFound},
	CommandExecution:    {"command execution failed", DomainCommand, http.StatusInternalServerError},
	CommandTimeout:      {"command execution timed out", DomainCommand, http.StatusGatewayTimeout},
	CommandPipe:         {"failed to set up command pipe", DomainCommand, http.StatusInternalServerError},

	ProbeNotBlockDevice:   {"path is not a block device", DomainProbe, http.StatusBadRequest},
	ProbeSizeUnreadable:   {"device size could not be read", DomainProbe, http.StatusInternalServerError},
	ProbeMounted:          {"device or a partition is mounted", DomainProbe, http.StatusConflict},
	ProbeRootBackingStore: {"device backs the running root filesystem", DomainProbe, http.StatusConflict},
	ProbeFailed:           {"device probe failed", DomainProbe, http.StatusInternalServerError},

	HealthCaptureTimeout: {"SMART capture timed out", DomainHealth, http.StatusGatewayTimeout},
	HealthCaptureFailed:  {"SMART capture failed", DomainHealth, http.StatusInternalServerError},
	HealthParseFailed:    {"SMART output could not be parsed", DomainHealth, http.StatusInternalServerError},

	ThermalConfigInvalid: {"thermal thresholds are invalid", DomainThermal, http.StatusBadRequest},

	WorkerSpawnFailed: {"failed to spawn worker", DomainWorker, http.StatusInternalServerError},
	WorkerFailedExit:  {"worker exited with a failure status", DomainWorker, http.StatusInternalServerError},
	WorkerStalled:     {"worker made no progress within the stall window", DomainWorker, http.StatusRequestTimeout},
	WorkerKillFailed:  {"failed to terminate worker", DomainWorker, http.StatusInternalServerError},

	CheckpointWriteFailed:  {"failed to write checkpoint", DomainCheckpoint, http.StatusInternalServerError},
	CheckpointReadRejected: {"checkpoint rejected by validation", DomainCheckpoint, http.StatusOK},

	PipelineAbortedThermal: {"pipeline aborted by thermal governor", DomainPipeline, http.StatusOK},
	PipelineAbortedStall:   {"pipeline aborted due to stalled worker", DomainPipeline, http.StatusOK},
	PipelineWorkerFailure:  {"pipeline step failed", DomainPipeline, http.StatusOK},
	PipelineCancelled:      {"pipeline cancelled", DomainPipeline, http.StatusOK},
}
