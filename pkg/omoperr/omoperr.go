// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package omoperr defines the closed error taxonomy surfaced to MCP
// callers as {code, message, details?}.
package omoperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	InvalidRequest     Code = "InvalidRequest"
	NotFound           Code = "NotFound"
	VocabularyError    Code = "VocabularyError"
	BackendUnavailable Code = "BackendUnavailable"
	SecurityViolation  Code = "SecurityViolation"
	ValidationFailed   Code = "ValidationFailed"
	CostLimitExceeded  Code = "CostLimitExceeded"
	Timeout            Code = "Timeout"
	DialectError       Code = "DialectError"
	Unauthenticated    Code = "Unauthenticated"
	Unauthorized       Code = "Unauthorized"
)

// Error is the concrete error type carried through the core. It wraps an
// optional underlying cause so errors.Is/errors.As still work against
// driver and HTTP errors.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with no details and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that preserves cause for errors.Is/As chains.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails attaches a details map and returns the same Error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, and ok=true.
// Otherwise it returns ("", false).
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
