// Package observability wires the OpenTelemetry meter, the Prometheus
// exporter, and the scrape endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// MetricsCollector manages all metrics for the agent. The zero value (built
// with Enabled=false) records nothing.
type MetricsCollector struct {
	meter metric.Meter

	// request pipeline
	requests       metric.Int64Counter
	requestLatency metric.Float64Histogram

	// LLM calls
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram
	llmCost         metric.Float64Counter

	// record store calls
	backendCalls   metric.Int64Counter
	backendLatency metric.Float64Histogram

	// protocol surfaces
	callbacks        metric.Int64Counter
	dedupHits        metric.Int64Counter
	fieldFormats     metric.Int64Counter
	queryResolution  metric.Int64Counter
	semanticFallback metric.Int64Counter
	usageLogWrites   metric.Int64Counter

	// intent routing
	intentParse        metric.Float64Histogram
	semanticConfidence metric.Float64Histogram

	sessionsActive metric.Int64ObservableGauge

	prometheusServer *http.Server
	logger           logging.Logger
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// NewMetricsCollector creates the collector and, when a port is configured,
// starts the Prometheus scrape server.
func NewMetricsCollector(config MetricsConfig, logger logging.Logger) (*MetricsCollector, error) {
	c := &MetricsCollector{logger: logging.OrNop(logger)}
	if !config.Enabled {
		return c, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	c.meter = provider.Meter("omniagent")

	if err := c.createInstruments(); err != nil {
		return nil, err
	}

	if config.PrometheusPort > 0 {
		if err := c.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}
	return c, nil
}

func (c *MetricsCollector) createInstruments() error {
	var err error

	c.requests, err = c.meter.Int64Counter(
		"omniagent.requests.total",
		metric.WithDescription("Total number of handled chat requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create requests counter: %w", err)
	}

	c.requestLatency, err = c.meter.Float64Histogram(
		"omniagent.request.latency",
		metric.WithDescription("End-to-end request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request latency histogram: %w", err)
	}

	c.llmRequests, err = c.meter.Int64Counter(
		"omniagent.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	c.llmTokensInput, err = c.meter.Int64Counter(
		"omniagent.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}

	c.llmTokensOutput, err = c.meter.Int64Counter(
		"omniagent.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}

	c.llmLatency, err = c.meter.Float64Histogram(
		"omniagent.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	c.llmCost, err = c.meter.Float64Counter(
		"omniagent.cost.total",
		metric.WithDescription("Total cost of LLM requests"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return fmt.Errorf("failed to create llm_cost counter: %w", err)
	}

	c.backendCalls, err = c.meter.Int64Counter(
		"omniagent.backend.calls.total",
		metric.WithDescription("Total number of record store calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend_calls counter: %w", err)
	}

	c.backendLatency, err = c.meter.Float64Histogram(
		"omniagent.backend.latency",
		metric.WithDescription("Record store call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend_latency histogram: %w", err)
	}

	c.callbacks, err = c.meter.Int64Counter(
		"omniagent.callbacks.total",
		metric.WithDescription("Total number of card callbacks"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create callbacks counter: %w", err)
	}

	c.dedupHits, err = c.meter.Int64Counter(
		"omniagent.dedup.hits.total",
		metric.WithDescription("Suppressed duplicate events and callbacks"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create dedup_hits counter: %w", err)
	}

	c.fieldFormats, err = c.meter.Int64Counter(
		"omniagent.field.format.total",
		metric.WithDescription("Field value formatting outcomes"),
		metric.WithUnit("{field}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create field_format counter: %w", err)
	}

	c.queryResolution, err = c.meter.Int64Counter(
		"omniagent.query.resolution.total",
		metric.WithDescription("Query compilation outcomes per resolution path"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create query_resolution counter: %w", err)
	}

	c.semanticFallback, err = c.meter.Int64Counter(
		"omniagent.query.semantic.fallback.total",
		metric.WithDescription("Queries the semantic slot rung passed down the ladder"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create semantic_fallback counter: %w", err)
	}

	c.usageLogWrites, err = c.meter.Int64Counter(
		"omniagent.usage.log.writes.total",
		metric.WithDescription("Usage log write outcomes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create usage_log_writes counter: %w", err)
	}

	c.intentParse, err = c.meter.Float64Histogram(
		"omniagent.intent.parse.duration",
		metric.WithDescription("Intent routing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create intent_parse histogram: %w", err)
	}

	c.semanticConfidence, err = c.meter.Float64Histogram(
		"omniagent.query.semantic.confidence",
		metric.WithDescription("Planner confidence for accepted routes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create semantic_confidence histogram: %w", err)
	}

	c.sessionsActive, err = c.meter.Int64ObservableGauge(
		"omniagent.sessions.active",
		metric.WithDescription("Number of live conversation sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	return nil
}

// RegisterActiveSessions registers the session count source behind the
// sessions gauge; count is called on every scrape.
func (c *MetricsCollector) RegisterActiveSessions(count func() int64) error {
	if c.sessionsActive == nil {
		return nil
	}
	_, err := c.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(c.sessionsActive, count())
		return nil
	}, c.sessionsActive)
	if err != nil {
		return fmt.Errorf("failed to register sessions gauge callback: %w", err)
	}
	return nil
}

// StartPrometheusServer starts the scrape endpoint on /metrics.
func (c *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	c.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		c.logger.Info("prometheus metrics server listening on :%d", port)
		if err := c.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("prometheus server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the scrape server.
func (c *MetricsCollector) Shutdown(ctx context.Context) error {
	if c.prometheusServer != nil {
		return c.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records one handled chat request.
func (c *MetricsCollector) RecordRequest(ctx context.Context, skill, status string, latency time.Duration) {
	if c.requests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("skill", skill),
		attribute.String("status", status),
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.requestLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("skill", skill)))
}

// RecordLLMRequest records an LLM call.
func (c *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int, cost float64) {
	if c.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	c.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	c.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	c.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	if cost > 0 {
		c.llmCost.Add(ctx, cost, metric.WithAttributes(attribute.String("model", model)))
	}
}

// RecordBackendCall records a record store call keyed by operation and the
// failure kind ("" on success).
func (c *MetricsCollector) RecordBackendCall(ctx context.Context, op, errorKind string, latency time.Duration) {
	if c.backendCalls == nil {
		return
	}
	status := "ok"
	if errorKind != "" {
		status = errorKind
	}
	attrs := []attribute.KeyValue{
		attribute.String("op", op),
		attribute.String("status", status),
	}
	c.backendCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.backendLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

// RecordCallback records one card callback keyed by action and outcome.
func (c *MetricsCollector) RecordCallback(ctx context.Context, action, outcome string) {
	if c.callbacks == nil {
		return
	}
	c.callbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

// RecordDedupHit records one suppressed duplicate ("event", "callback", "business").
func (c *MetricsCollector) RecordDedupHit(ctx context.Context, kind string) {
	if c.dedupHits == nil {
		return
	}
	c.dedupHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFieldFormat records one field formatting outcome
// ("ok", "missing_meta", "malformed").
func (c *MetricsCollector) RecordFieldFormat(ctx context.Context, status string) {
	if c.fieldFormats == nil {
		return
	}
	c.fieldFormats.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordQueryResolution records which resolution path produced a query plan.
func (c *MetricsCollector) RecordQueryResolution(ctx context.Context, path, outcome string) {
	if c.queryResolution == nil {
		return
	}
	c.queryResolution.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome),
	))
}

// RecordIntentParse records one routing decision: how long it took per method
// ("planner", "keyword") and, for planner routes, the reported confidence.
func (c *MetricsCollector) RecordIntentParse(ctx context.Context, method string, duration time.Duration, confidence float64) {
	if c.intentParse == nil {
		return
	}
	c.intentParse.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("method", method)))
	if method == "planner" {
		c.semanticConfidence.Record(ctx, confidence)
	}
}

// RecordUsageLogWrite records a usage log write outcome ("ok", "fallback", "error").
func (c *MetricsCollector) RecordUsageLogWrite(ctx context.Context, status string) {
	if c.usageLogWrites == nil {
		return
	}
	c.usageLogWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSemanticFallback records the semantic slot rung declining a query,
// keyed by reason ("labeled_exact", "no_slots").
func (c *MetricsCollector) RecordSemanticFallback(ctx context.Context, reason string) {
	if c.semanticFallback == nil {
		return
	}
	c.semanticFallback.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
