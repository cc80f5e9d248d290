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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the tracer and meter providers for the process.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	registry *prom.Registry
	metrics  *Metrics
}

// New creates a provider. When tracing is disabled, Tracer returns a no-op
// tracer but metrics are still collected. Console exporters write to
// consoleOut, or stderr when nil.
func New(ctx context.Context, cfg Config, consoleOut io.Writer) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stepflow"
	}
	if consoleOut == nil {
		consoleOut = os.Stderr
	}

	// An empty schema URL avoids conflicts when merging with the default resource
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{registry: prom.NewRegistry()}

	if cfg.Enabled {
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(NewSampler(cfg.SamplingRate)),
		}
		for _, ec := range cfg.Exporters {
			exp, err := CreateExporter(ctx, ec, consoleOut)
			if err != nil {
				return nil, err
			}
			var batch []sdktrace.BatchSpanProcessorOption
			if cfg.BatchInterval > 0 {
				batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchInterval))
			}
			opts = append(opts, sdktrace.WithBatcher(exp, batch...))
		}
		p.tp = sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(p.tp)
	}

	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	p.metrics, err = NewMetrics(p.mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	return p, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Metrics returns the run and step metrics recorder.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// MetricsHandler serves the provider's metrics together with the process
// collectors of the default Prometheus registry.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prom.Gatherers{p.registry, prom.DefaultGatherer}, promhttp.HandlerOpts{})
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	errs = append(errs, p.mp.Shutdown(ctx))
	return errors.Join(errs...)
}
