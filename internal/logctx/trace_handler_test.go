package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON log output")

	return entry
}

func validSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
}

// TestTraceHandler_NoCorrelation verifies that logs without span or request
// context carry no correlation fields.
func TestTraceHandler_NoCorrelation(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(context.Background(), "test message", "key", "value")

	entry := decodeEntry(t, &buf)

	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

// TestTraceHandler_WithSpanContext verifies trace and span ids are injected.
func TestTraceHandler_WithSpanContext(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
	ctx := trace.ContextWithSpanContext(context.Background(), validSpanContext(t))

	logger.InfoContext(ctx, "test message")

	entry := decodeEntry(t, &buf)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

// TestTraceHandler_WithRequestID verifies the request id is injected.
func TestTraceHandler_WithRequestID(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
	ctx := WithRequestID(context.Background(), "req-123")

	logger.InfoContext(ctx, "served range")

	entry := decodeEntry(t, &buf)

	assert.Equal(t, "req-123", entry["request_id"])
}

// TestTraceHandler_Enabled verifies that Enabled delegates to inner handler.
func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

// TestTraceHandler_WithAttrsAndGroup verifies derived handlers keep injecting.
func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	base := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := base.WithAttrs([]slog.Attr{slog.String("component", "rest")})
	_, ok := withAttrs.(*TraceHandler)
	require.True(t, ok, "WithAttrs should return *TraceHandler, got %T", withAttrs)

	withGroup := withAttrs.WithGroup("file")
	_, ok = withGroup.(*TraceHandler)
	require.True(t, ok, "WithGroup should return *TraceHandler, got %T", withGroup)

	slog.New(withGroup).InfoContext(WithRequestID(context.Background(), "req-1"), "test", "name", "demo.bin")

	out := buf.String()
	assert.Contains(t, out, `"component":"rest"`)
	assert.Contains(t, out, `"file":{`)
	assert.Contains(t, out, "demo.bin")
}

// TestTraceHandler_NilHandler verifies that NewTraceHandler panics with nil handler.
func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	var buf bytes.Buffer

	logger := NewLogger(&buf, slog.LevelDebug)
	ctx := With(WithLogger(context.Background(), logger), "file_name", "demo.bin")

	LoggerFromContext(ctx).DebugContext(ctx, "hello")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "demo.bin", entry["file_name"])
	assert.Equal(t, "DEBUG", entry["level"])
}
