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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// programReloads counts program directory loads by result
	programReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_program_reloads_total",
			Help: "Total program directory loads by result",
		},
		[]string{"result"},
	)

	// programsLoaded is the number of programs available after the last load
	programsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stepflow_programs_loaded",
			Help: "Number of programs loaded from the program directory",
		},
	)

	// triggerFires counts automatic run starts by trigger type
	triggerFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_trigger_fires_total",
			Help: "Total automatic run starts by trigger type and result",
		},
		[]string{"trigger", "result"},
	)
)

// RecordReload records one load of the program directory.
func RecordReload(loaded, failed int) {
	result := "ok"
	if failed > 0 {
		result = "partial"
	}
	programReloads.WithLabelValues(result).Inc()
	programsLoaded.Set(float64(loaded))
}

// RecordTrigger records an automatic start attempt. result is "started",
// "busy" or "error".
func RecordTrigger(trigger, result string) {
	triggerFires.WithLabelValues(trigger, result).Inc()
}
