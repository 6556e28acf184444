package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceHook(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "scan.task")

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(TraceHook{})
	logger.Error().Ctx(ctx).Msg("task failed")
	span.End()

	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
	assert.Contains(t, buf.String(), `"span_id"`)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "task failed", ended[0].Status().Description)
}

func TestTraceHook_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(TraceHook{})

	logger.Info().Msg("no context")
	logger.Info().Ctx(context.Background()).Msg("no span")

	assert.NotContains(t, buf.String(), "trace_id")
}
