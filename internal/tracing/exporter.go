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
	"fmt"
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/stepflow/internal/tracing/export"
)

// CreateExporter creates a span exporter from configuration. Console
// output goes to w.
func CreateExporter(ctx context.Context, cfg ExporterConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Type {
	case ExporterConsole:
		return export.NewConsoleExporter(export.ConsoleConfig{Writer: w, PrettyPrint: true})

	case ExporterOTLP:
		tlsCfg, err := export.BuildTLSConfig(cfg.Insecure, cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		return export.NewOTLPExporter(ctx, export.OTLPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  cfg.Insecure,
			TLSConfig: tlsCfg,
			Headers:   cfg.Headers,
		})

	case ExporterOTLPHTTP:
		tlsCfg, err := export.BuildTLSConfig(cfg.Insecure, cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		return export.NewOTLPHTTPExporter(ctx, export.OTLPHTTPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  cfg.Insecure,
			TLSConfig: tlsCfg,
			Headers:   cfg.Headers,
		})
	}
	return nil, fmt.Errorf("unknown exporter type %q", cfg.Type)
}
