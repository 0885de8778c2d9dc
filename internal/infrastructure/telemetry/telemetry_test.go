package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestPaymentMetrics_RecordWebhook(t *testing.T) {
	reader, provider := newTestMeter(t)
	m, err := NewPaymentMetrics(provider.Meter("test"), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordWebhook(ctx, "stripe", "payment_intent.succeeded", "applied", 15*time.Millisecond)
	m.RecordWebhook(ctx, "stripe", "payment_intent.succeeded", "already_applied", 5*time.Millisecond)
	m.RecordWebhook(ctx, "stripe", "payment_intent.succeeded", "applied", 10*time.Millisecond)

	metrics := collect(t, reader)
	events := metrics["webhook_events_total"]
	assert.Equal(t, int64(2), sumFor(t, events,
		AttrSource.String("stripe"),
		AttrEventType.String("payment_intent.succeeded"),
		AttrOutcome.String("applied")))
	assert.Equal(t, int64(1), sumFor(t, events,
		AttrSource.String("stripe"),
		AttrEventType.String("payment_intent.succeeded"),
		AttrOutcome.String("already_applied")))

	hist, ok := metrics["webhook_processing_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
}

func TestPaymentMetrics_GatewayAndIntents(t *testing.T) {
	reader, provider := newTestMeter(t)
	m, err := NewPaymentMetrics(provider.Meter("test"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordGatewayCall(ctx, "create_intent", "ok", 120*time.Millisecond)
	m.RecordGatewayCall(ctx, "refund", "timeout", 10*time.Second)
	m.RecordIntentCreated(ctx, "usd")
	m.RecordIntentCreated(ctx, "usd")
	m.RecordRefundRequested(ctx, "eur")

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, metrics["payment_intents_created_total"], AttrCurrency.String("usd")))
	assert.Equal(t, int64(1), sumFor(t, metrics["payment_refunds_requested_total"], AttrCurrency.String("eur")))
	assert.Equal(t, int64(1), sumFor(t, metrics["payment_gateway_calls_total"],
		AttrOperation.String("refund"), AttrOutcome.String("timeout")))

	latency, ok := metrics["payment_gateway_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, latency.DataPoints, 2)
}

type staticOutbox map[shared.OutboxStatus]int64

func (s staticOutbox) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	return s, nil
}

func TestPaymentMetrics_ObserveOutbox(t *testing.T) {
	reader, provider := newTestMeter(t)
	meter := provider.Meter("test")
	m, err := NewPaymentMetrics(meter, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.ObserveOutbox(meter, staticOutbox{
		shared.OutboxStatusPending: 4,
		shared.OutboxStatusDead:    1,
	}))
	t.Cleanup(func() { _ = m.Stop() })

	gauge, ok := collect(t, reader)["outbox_entries"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	got := make(map[string]int64)
	for _, dp := range gauge.DataPoints {
		status, _ := dp.Attributes.Value(AttrStatus)
		got[status.AsString()] = dp.Value
	}
	assert.Equal(t, int64(4), got["PENDING"])
	assert.Equal(t, int64(1), got["DEAD"])
	assert.Equal(t, int64(0), got["FAILED"])
}

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestEndSpan(t *testing.T) {
	recorder := withSpanRecorder(t)
	ctx := context.Background()

	_, ok := StartSpan(ctx, "ok", WithAttribute("order_id", "o-1"))
	EndSpan(ok, nil)

	_, conflict := StartSpan(ctx, "conflict")
	EndSpan(conflict, shared.NewConflictError("stale version"))

	_, gateway := StartSpan(ctx, "gateway")
	EndSpan(gateway, shared.NewGatewayError("refund", errors.New("boom")))

	_, plain := StartSpan(ctx, "plain")
	EndSpan(plain, errors.New("disk full"))

	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range recorder.Ended() {
		spans[s.Name()] = s
	}
	require.Len(t, spans, 4)

	assert.Equal(t, codes.Ok, spans["ok"].Status().Code)
	assert.Contains(t, spans["ok"].Attributes(), attribute.String("order_id", "o-1"))
	assert.Equal(t, codes.Unset, spans["conflict"].Status().Code)
	assert.Contains(t, spans["conflict"].Attributes(), attribute.String("error.code", shared.CodeConflict))
	assert.Equal(t, codes.Error, spans["gateway"].Status().Code)
	assert.Equal(t, codes.Error, spans["plain"].Status().Code)
}

func TestToAttribute(t *testing.T) {
	assert.Equal(t, attribute.Int64("n", 5), toAttribute("n", int64(5)))
	assert.Equal(t, attribute.Bool("b", true), toAttribute("b", true))
	assert.Equal(t, attribute.String("d", "1s"), toAttribute("d", time.Second))
	assert.Equal(t, attribute.String("s", "[1 2]"), toAttribute("s", []int{1, 2}))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), samplerFor(0.5).Description())
}

func TestDisabledProviders(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	tp, err := NewTracerProvider(ctx, Config{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.False(t, lp.NewZapCore("test", zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "SELECT", operationOf(" select * from orders"))
	assert.Equal(t, "INSERT", operationOf("INSERT INTO payments"))
	assert.Equal(t, "UPDATE", operationOf("update orders set version = 2"))
	assert.Equal(t, "DELETE", operationOf("DELETE FROM outbox_events"))
	assert.Equal(t, "OTHER", operationOf("BEGIN"))
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	reader, provider := newTestMeter(t)
	m := &DBMetrics{slowThreshold: 100 * time.Millisecond}
	meter := provider.Meter("test")
	var err error
	m.queryTotal, err = NewCounter(meter, "db_query_total", "", "{query}")
	require.NoError(t, err)
	m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "", "{query}")
	require.NoError(t, err)
	m.queryDuration, err = NewHistogram(meter, HistogramOpts{Name: "db_query_duration_seconds", Boundaries: DBDurationBuckets})
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordQuery(ctx, "SELECT", "orders", 5*time.Millisecond)
	m.RecordQuery(ctx, "SELECT", "orders", 300*time.Millisecond)
	m.RecordQuery(ctx, "UPDATE", "", 400*time.Millisecond)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, metrics["db_query_total"], AttrOperation.String("SELECT")))
	assert.Equal(t, int64(1), sumFor(t, metrics["db_slow_query_total"],
		AttrOperation.String("SELECT"), AttrDBTable.String("orders")))
	assert.Equal(t, int64(1), sumFor(t, metrics["db_slow_query_total"],
		AttrOperation.String("UPDATE"), AttrDBTable.String("unknown")))
}
