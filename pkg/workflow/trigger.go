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

package workflow

import (
	"fmt"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
)

// TriggerConfig describes how a program is started. At most one trigger
// type may be configured; a program with no trigger is manual.
type TriggerConfig struct {
	// Manual marks the program as started on request only
	Manual *ManualTrigger `yaml:"manual,omitempty" json:"manual,omitempty"`

	// Interval starts the program periodically while the server runs
	Interval *IntervalTrigger `yaml:"interval,omitempty" json:"interval,omitempty"`

	// File starts the program when matching files change
	File *FileTrigger `yaml:"file,omitempty" json:"file,omitempty"`
}

// TriggerType represents the type of trigger.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeInterval TriggerType = "interval"
	TriggerTypeFile     TriggerType = "file"
)

// ManualTrigger carries static data exposed to the manual trigger action.
type ManualTrigger struct {
	Data map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
}

// IntervalTrigger runs the program every Every (a Go duration string).
type IntervalTrigger struct {
	Every string         `yaml:"every" json:"every"`
	Data  map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
}

// FileTrigger runs the program when files under Paths change.
type FileTrigger struct {
	// Paths are the directories to watch
	Paths []string `yaml:"paths" json:"paths"`

	// Patterns are doublestar globs matched against the changed file's base
	// name; empty matches everything
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`

	// MaxPerMinute limits how often the program is started; zero means no limit
	MaxPerMinute int `yaml:"max_per_minute,omitempty" json:"max_per_minute,omitempty"`
}

// Type returns the configured trigger type. A nil or empty config is manual.
func (t *TriggerConfig) Type() TriggerType {
	switch {
	case t == nil:
		return TriggerTypeManual
	case t.Interval != nil:
		return TriggerTypeInterval
	case t.File != nil:
		return TriggerTypeFile
	}
	return TriggerTypeManual
}

// Data returns the static trigger data for the configured trigger.
func (t *TriggerConfig) Data() map[string]any {
	switch {
	case t == nil:
		return nil
	case t.Manual != nil:
		return t.Manual.Data
	case t.Interval != nil:
		return t.Interval.Data
	}
	return nil
}

// Validate checks the trigger configuration for errors.
func (t *TriggerConfig) Validate() error {
	count := 0
	if t.Manual != nil {
		count++
	}
	if t.Interval != nil {
		count++
	}
	if t.File != nil {
		count++
	}

	if count > 1 {
		return &errors.ValidationError{
			Field:      "trigger",
			Message:    "only one trigger type can be configured per program",
			Suggestion: "remove all but one trigger type (manual, interval or file)",
		}
	}

	if t.Interval != nil {
		if _, err := t.Interval.Duration(); err != nil {
			return err
		}
	}

	if t.File != nil {
		if len(t.File.Paths) == 0 {
			return &errors.ValidationError{
				Field:   "trigger.file.paths",
				Message: "file trigger requires at least one path",
			}
		}
		if t.File.MaxPerMinute < 0 {
			return &errors.ValidationError{
				Field:   "trigger.file.max_per_minute",
				Message: "max_per_minute must not be negative",
			}
		}
	}

	return nil
}

// MinInterval is the shortest interval trigger accepted.
const MinInterval = time.Second

// Duration parses Every.
func (i *IntervalTrigger) Duration() (time.Duration, error) {
	d, err := time.ParseDuration(i.Every)
	if err != nil {
		return 0, &errors.ValidationError{
			Field:      "trigger.interval.every",
			Message:    fmt.Sprintf("invalid interval: %q", i.Every),
			Suggestion: "use a duration such as 30s, 5m or 1h",
		}
	}
	if d < MinInterval {
		return 0, &errors.ValidationError{
			Field:   "trigger.interval.every",
			Message: fmt.Sprintf("interval must be at least %s", MinInterval),
		}
	}
	return d, nil
}
