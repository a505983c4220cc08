// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider returns a provider that stamps real trace and span IDs
// on every request, so the logging handler can correlate a request's log
// lines. Exporters are attached with opts; none are required.
func NewTracerProvider(service, version string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)
}
