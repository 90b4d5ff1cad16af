// Copyright 2025 Kadir Pekel
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

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder receives per-turn measurements.
type Recorder interface {
	RecordTurn(ctx context.Context, path string, duration time.Duration, err error)
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, ok bool)
	RecordLLMError(ctx context.Context, provider, reason string)
}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noopRecorder{} }

type noopRecorder struct{}

func (noopRecorder) RecordTurn(context.Context, string, time.Duration, error)    {}
func (noopRecorder) RecordToolCall(context.Context, string, time.Duration, bool) {}
func (noopRecorder) RecordLLMError(context.Context, string, string)              {}

// PrometheusMetrics records into OpenTelemetry instruments exported to a
// Prometheus registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	turnDuration metric.Float64Histogram
	turnsTotal   metric.Int64Counter
	turnErrors   metric.Int64Counter
	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	llmErrors    metric.Int64Counter
}

var _ Recorder = (*PrometheusMetrics)(nil)

// InitMetrics builds the metrics pipeline. A disabled config yields the
// no-op recorder and a nil handler.
func InitMetrics(cfg MetricsConfig) (Recorder, http.Handler, error) {
	if !cfg.Enabled {
		return Noop(), nil, nil
	}

	m, err := NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}
	return m, m.Handler(), nil
}

// NewPrometheusMetrics registers the host instruments on registry.
func NewPrometheusMetrics(registry *prometheus.Registry) (*PrometheusMetrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)

	m := &PrometheusMetrics{registry: registry, provider: provider}

	if m.turnDuration, err = meter.Float64Histogram(
		"mcphost_turn_duration_seconds",
		metric.WithDescription("Chat turn duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turn duration histogram: %w", err)
	}
	if m.turnsTotal, err = meter.Int64Counter(
		"mcphost_turns_total",
		metric.WithDescription("Total chat turns"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}
	if m.turnErrors, err = meter.Int64Counter(
		"mcphost_turn_errors_total",
		metric.WithDescription("Total chat turns that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turn errors counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"mcphost_tool_call_duration_seconds",
		metric.WithDescription("Tool call duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}
	if m.toolCalls, err = meter.Int64Counter(
		"mcphost_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}
	if m.llmErrors, err = meter.Int64Counter(
		"mcphost_llm_errors_total",
		metric.WithDescription("Total classified LLM transport errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *PrometheusMetrics) RecordTurn(ctx context.Context, path string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("path", path))
	m.turnDuration.Record(ctx, duration.Seconds(), attrs)
	m.turnsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.turnErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, ok bool) {
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("ok", strconv.FormatBool(ok)),
	))
}

func (m *PrometheusMetrics) RecordLLMError(ctx context.Context, provider, reason string) {
	m.llmErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("reason", reason),
	))
}
