package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.TraceLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerWithPath_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sf-flow.log")

	result := NewLoggerWithPath(Config{Level: "debug", Format: FormatConsole, Output: OutputFile, File: path})
	t.Cleanup(func() { _ = result.Close() })

	require.True(t, result.UsingFile)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, path, result.FilePath)

	result.Logger.Debug().Str("flow", "My_Flow").Msg("activated")
	require.NoError(t, result.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"flow":"My_Flow"`)
	assert.Contains(t, string(data), `"message":"activated"`)
}

func TestNewLoggerWithPath_Fallback(t *testing.T) {
	result := NewLoggerWithPath(Config{Output: OutputFile})

	assert.False(t, result.UsingFile)
	assert.True(t, result.FallbackUsed)
	assert.NotEmpty(t, result.FallbackReason)
	assert.NoError(t, result.Close())
}

func TestTraceID(t *testing.T) {
	id := GenerateTraceID()
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)

	ctx := ContextWithTraceID(context.Background(), id)
	assert.Equal(t, id, TraceIDFromContext(ctx))
	assert.Equal(t, id, GetOrGenerateTraceID(ctx))
	assert.Empty(t, TraceIDFromContext(context.Background()))
	assert.NotEmpty(t, GetOrGenerateTraceID(context.Background()))
}

func TestTraceHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(TraceHook{})
	ctx := ContextWithTraceID(context.Background(), "01TRACE")

	logger.Info().Ctx(ctx).Msg("with trace")
	assert.Contains(t, buf.String(), `"trace_id":"01TRACE"`)

	buf.Reset()
	logger.Info().Msg("without trace")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestComponentLoggerAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := ComponentLogger(zerolog.New(&buf), "engine")
	ctx := logger.WithContext(context.Background())

	FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"engine"`)

	assert.Equal(t, zerolog.Disabled, FromContext(context.Background()).GetLevel())
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	PrintLogPathMessage(&buf, "/tmp/x.log")
	PrintFallbackWarning(&buf, "permission denied")
	assert.Contains(t, buf.String(), "Logging to /tmp/x.log")
	assert.Contains(t, buf.String(), "permission denied")
}
