// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"fmt"
	"net/http"
)

func (e *PreclearError) Error() string {
	msg := fmt.Sprintf("[%s-%d] %s", e.Domain, e.Code, e.Message)
	if e.Details != "" {
		msg += " - " + e.Details
	}
	if e.Metadata != nil {
		if output, ok := e.Metadata["output"]; ok && output != "" {
			msg += "\noutput: " + output
		}
	}
	return msg
}

// WithMetadata attaches a key/value pair and returns the error for chaining.
func (e *PreclearError) WithMetadata(key, value string) *PreclearError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// New creates a PreclearError for a known code.
func New(code ErrorCode, details string) *PreclearError {
	def, ok := errorDefinitions[code]
	if !ok {
		return &PreclearError{
			Code:       code,
			Domain:     DomainMisc,
			Message:    "unknown error",
			Details:    details,
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	return &PreclearError{
		Code:       code,
		Domain:     def.domain,
		Message:    def.message,
		Details:    details,
		HTTPStatus: def.httpStatus,
	}
}

// Is implements errors.Is matching by code and domain.
func (e *PreclearError) Is(target error) bool {
	t, ok := target.(*PreclearError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Domain == t.Domain
}

// Wrap wraps an existing error under a new code, preserving metadata.
func Wrap(err error, code ErrorCode) *PreclearError {
	if pe, ok := err.(*PreclearError); ok {
		wrapped := New(code, pe.Details)
		for k, v := range pe.Metadata {
			wrapped.WithMetadata(k, v)
		}
		wrapped.WithMetadata("wrapped_code", fmt.Sprintf("%d", pe.Code))
		wrapped.WithMetadata("wrapped_domain", string(pe.Domain))
		return wrapped
	}
	return New(code, err.Error())
}

// NewCommandError builds a PreclearError describing a failed external command.
func NewCommandError(cmd string, exitCode int, output string) *PreclearError {
	return New(CommandExecution, fmt.Sprintf("exit code %d", exitCode)).
		WithMetadata("command", cmd).
		WithMetadata("exit_code", fmt.Sprintf("%d", exitCode)).
		WithMetadata("output", output)
}
