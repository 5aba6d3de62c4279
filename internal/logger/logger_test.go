package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	originalLevel := currentLevel.Load()
	originalFormat, _ := currentFormat.Load().(string)
	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		currentLevel.Store(originalLevel)
		currentFormat.Store(originalFormat)
		reconfigure()
	}
	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf, cleanup := captureOutput()
			defer cleanup()

			SetLevel(tt.level)
			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	SetLevel("WARN")
	SetLevel("verbose")
	assert.Equal(t, LevelWarn, GetLevel())

	SetLevel("warning")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestTextFormatting(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("text")

	Info("GC: pruned aliases", KeyCount, 12, KeyBackend, "local", "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "[INFO] GC: pruned aliases")
	assert.Contains(t, out, "count=12")
	assert.Contains(t, out, "backend=local")
	assert.Contains(t, out, `note="two words"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTextGroups(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("text")

	With("component", "sweep").WithGroup("stats").Info("done", "deleted", 3)

	out := buf.String()
	assert.Contains(t, out, "component=sweep")
	assert.Contains(t, out, "stats.deleted=3")
}

func TestErrAttr(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("text")

	Warn("with error", Err(errors.New("boom")))
	Warn("without error", Err(nil))

	out := buf.String()
	assert.Contains(t, out, "error=boom")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[1], "error=")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("json")

	Info("GC: merged duplicates", KeyCount, 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GC: merged duplicates", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(4), entry[KeyCount])
}

func TestSetFormatIgnoresUnknown(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("json")
	SetFormat("xml")

	Info("still json")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestContextLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("text")

	ctx := WithContext(context.Background(), NewLogContext("run-1"))
	ctx = PhaseContext(ctx, "expire")

	InfoCtx(ctx, "GC: expired aliases", KeyCount, 2)
	DebugCtx(context.Background(), "no context")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "run_id=run-1")
	assert.Contains(t, lines[0], "phase=expire")
	assert.Less(t, strings.Index(lines[0], "run_id"), strings.Index(lines[0], "count"))
	assert.NotContains(t, lines[1], "run_id")
}

func TestLogContext(t *testing.T) {
	lc := NewLogContext("abc")
	phased := lc.WithPhase("sweep").WithTrace("t1", "s1")

	assert.Empty(t, lc.Phase)
	assert.Equal(t, "sweep", phased.Phase)
	assert.Equal(t, "abc", phased.RunID)
	assert.Equal(t, "t1", phased.TraceID)
	assert.GreaterOrEqual(t, lc.DurationMs(), 0.0)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
	assert.Nil(t, FromContext(context.Background()))
}

func TestPhaseContextWithoutLogContext(t *testing.T) {
	ctx := PhaseContext(context.Background(), "merge")
	lc := FromContext(ctx)
	require.NotNil(t, lc)
	assert.Equal(t, "merge", lc.Phase)
	assert.Empty(t, lc.RunID)
}

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("INFO")
	SetFormat("text")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				Info("concurrent", "worker", n, "iter", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 200)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "["), "interleaved line: %q", l)
	}
}

func TestInitFileOutput(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "gc.log")
	require.NoError(t, Init(Config{Level: "INFO", Format: "json", Output: path}))
	Info("to file")

	// release the file handle before reading it back
	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	mu.Unlock()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInitBadPath(t *testing.T) {
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "gc.log")})
	assert.Error(t, err)
}

func TestColorHandlerEnabled(t *testing.T) {
	h := NewColorTextHandler(new(bytes.Buffer), &slog.HandlerOptions{Level: slog.LevelWarn}, true)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestDuration(t *testing.T) {
	assert.GreaterOrEqual(t, Duration(time.Now()), 0.0)
}
