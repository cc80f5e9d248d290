// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a malformed program or invalid user input.
// Use this for broken block pairing, missing step ids, or bad parameter values.
type ValidationError struct {
	// Field identifies which field or step failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
// Use this when a requested program, step, or action does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "program", "action", "step")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "engine.retry_count")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Reason }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	switch e.Key {
	case "config_file":
		return "check the path given to --config"
	case "validation":
		return "fix the listed keys in the configuration file"
	}
	return ""
}

// TimeoutError represents operation timeouts.
// Use this when an action or query exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "jq query", "shell command")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }

// RecursionError is returned when a program calls a program that is already
// on the active call chain.
type RecursionError struct {
	// Chain is the call chain at the point of the call, outermost first
	Chain []string

	// Target is the program id that was about to be invoked
	Target string
}

// Error implements the error interface.
func (e *RecursionError) Error() string {
	return fmt.Sprintf("recursion detected: %s -> %s", strings.Join(e.Chain, " -> "), e.Target)
}

// ErrorType implements ErrorClassifier.
func (e *RecursionError) ErrorType() string { return "recursion" }

// IsRetryable implements ErrorClassifier. A recursive call fails the same way every time.
func (e *RecursionError) IsRetryable() bool { return false }
