package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNew_DualOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "retryd.log")
	var console bytes.Buffer

	log := New(Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		FileLevel:    "debug",
		File:         logFile,
		App:          "retryd",
		Console:      &console,
	})

	log.Debug("retrying", slog.Int("attempt", 1))
	log.Info("retry succeeded")
	log.Warn("retries exhausted")
	require.NoError(t, Close(log))

	file := readLog(t, logFile)
	assert.Contains(t, file, "retrying")
	assert.Contains(t, file, "retry succeeded")
	assert.Contains(t, file, "retries exhausted")
	assert.Contains(t, file, `"level":"DEBUG"`)
	assert.Contains(t, file, `"app":"retryd"`)

	out := console.String()
	assert.NotContains(t, out, "retry succeeded")
	assert.Contains(t, out, "retries exhausted")
}

func TestNew_DefaultLevels(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "default.log")
	var console bytes.Buffer

	log := New(Options{Env: "dev", File: logFile, App: "retryd", Console: &console})
	log.Debug("debug message")
	log.Info("info message")
	require.NoError(t, Close(log))

	assert.Contains(t, readLog(t, logFile), "debug message")
	assert.NotContains(t, console.String(), "debug message")
	assert.Contains(t, console.String(), "info message")
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	log := New(Options{Env: "dev", App: "retryd", Console: &console})
	log.Info("console only message")

	assert.Contains(t, console.String(), "console only message")
	assert.NoError(t, Close(log), "closing without a file is a no-op")
}

func TestRedaction(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "redacted.log")
	log := New(Options{
		Env:     "prod",
		File:    logFile,
		App:     "retryd",
		Console: &bytes.Buffer{},
		Redact:  []string{"ticket"},
	})

	log.Info("catalog opened",
		slog.String("dsn", "file:catalog.db?_pragma=x"),
		slog.String("url", "https://example.test/?token=abcdef123456"),
		slog.String("ticket", "t-1"),
		slog.Group("executor", slog.String("secret", "s3cr3t"), slog.String("name", "aggressive")),
		slog.String("method", "store.Reader.Get(string)"),
	)
	require.NoError(t, Close(log))

	file := readLog(t, logFile)
	assert.NotContains(t, file, "catalog.db")
	assert.NotContains(t, file, "abcdef123456")
	assert.NotContains(t, file, "t-1")
	assert.NotContains(t, file, "s3cr3t")
	assert.Contains(t, file, "aggressive")
	assert.Contains(t, file, "store.Reader.Get(string)")
	assert.Contains(t, file, "[REDACTED]")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMultiHandler(t *testing.T) {
	var info, warn bytes.Buffer
	multi := NewMultiHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	ctx := context.Background()

	assert.True(t, multi.Enabled(ctx, slog.LevelInfo))
	assert.False(t, multi.Enabled(ctx, slog.LevelDebug))

	require.NoError(t, multi.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "only info", 0)))
	assert.Contains(t, info.String(), "only info")
	assert.Empty(t, warn.String())

	grouped := slog.New(multi.WithGroup("retry").WithAttrs([]slog.Attr{slog.String("mode", "fixed_delay")}))
	grouped.Warn("both")
	assert.Contains(t, info.String(), "retry.mode=fixed_delay")
	assert.Contains(t, warn.String(), "both")
}
