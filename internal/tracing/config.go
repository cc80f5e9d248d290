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

package tracing

import (
	"fmt"
	"time"
)

// Exporter types.
const (
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SamplingRate is the fraction of runs traced (0.0 - 1.0).
	SamplingRate float64

	// Exporters configures span export destinations.
	Exporters []ExporterConfig

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is the exporter type: "console", "otlp" or "otlp-http".
	Type string

	// Endpoint is the receiver address.
	Endpoint string

	// Headers are added to every export request.
	Headers map[string]string

	// Insecure disables TLS.
	Insecure bool

	// CACertPath is an optional CA bundle for TLS.
	CACertPath string
}

// DefaultConfig returns configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		ServiceName:   "stepflow",
		SamplingRate:  1.0,
		BatchInterval: 5 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %v", c.SamplingRate)
	}
	for i, e := range c.Exporters {
		switch e.Type {
		case ExporterConsole:
		case ExporterOTLP, ExporterOTLPHTTP:
			if e.Endpoint == "" {
				return fmt.Errorf("exporter %d (%s): endpoint is required", i, e.Type)
			}
		default:
			return fmt.Errorf("exporter %d: unknown type %q", i, e.Type)
		}
	}
	return nil
}
