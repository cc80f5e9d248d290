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

/*
Package tracing sets up OpenTelemetry for stepflow.

It builds the tracer provider used for run and step spans, the span
exporters selected by configuration, and the meter provider whose
instruments are exposed to Prometheus:

	provider, err := tracing.New(ctx, tracing.Config{
	    Enabled:     true,
	    ServiceName: "stepflow",
	    Exporters: []tracing.ExporterConfig{
	        {Type: "otlp", Endpoint: "localhost:4317", Insecure: true},
	    },
	})
	defer provider.Shutdown(ctx)

	exec := workflow.NewExecutor(reg, programs).
	    WithTracer(provider.Tracer("stepflow.engine")).
	    WithMetrics(provider.Metrics())

Metrics are served by MetricsHandler in the Prometheus text format.
*/
package tracing
