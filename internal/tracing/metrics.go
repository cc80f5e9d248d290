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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records run and step instruments. It satisfies the executor's
// step metrics interface and the runner's run metrics interface.
type Metrics struct {
	runsTotal    metric.Int64Counter
	stepsTotal   metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram

	mu     sync.Mutex
	active map[string]int
}

// NewMetrics creates the instruments on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("stepflow")
	m := &Metrics{active: make(map[string]int)}

	var err error
	m.runsTotal, err = meter.Int64Counter(
		"stepflow_runs_total",
		metric.WithDescription("Total number of finished program runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.stepsTotal, err = meter.Int64Counter(
		"stepflow_steps_total",
		metric.WithDescription("Total number of step attempts"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	m.runDuration, err = meter.Float64Histogram(
		"stepflow_run_duration_seconds",
		metric.WithDescription("Program run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.stepDuration, err = meter.Float64Histogram(
		"stepflow_step_duration_seconds",
		metric.WithDescription("Step attempt duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"stepflow_active_runs",
		metric.WithDescription("Number of currently active program runs"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.ActiveRuns()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RunStarted marks a run of the program as active.
func (m *Metrics) RunStarted(_ context.Context, programID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[programID]++
}

// RunCompleted records a finished run.
func (m *Metrics) RunCompleted(ctx context.Context, programID, state string, duration time.Duration) {
	m.mu.Lock()
	if m.active[programID] > 1 {
		m.active[programID]--
	} else {
		delete(m.active, programID)
	}
	m.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("program", programID),
		attribute.String("state", state),
	)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep records one step attempt.
func (m *Metrics) RecordStep(ctx context.Context, programID, moduleID, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("program", programID),
		attribute.String("module", moduleID),
		attribute.String("outcome", outcome),
	)
	m.stepsTotal.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// ActiveRuns returns the number of runs in progress.
func (m *Metrics) ActiveRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.active {
		n += c
	}
	return n
}
