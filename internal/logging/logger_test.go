package logging

import (
	"bytes"
	"strings"
	"testing"

	"sandboxagent/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "debug") }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "info") }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "warn") }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "error") }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *recordingLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := FromObservabilityWithComponent(base, "test")
	logger.Info("hello %s", "world")

	if want := "hello world"; !strings.Contains(buf.String(), want) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if want := "component=test"; !strings.Contains(buf.String(), want) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
}

func TestConfigureScopesComponentLoggers(t *testing.T) {
	previous := observability.Default()
	t.Cleanup(func() { observability.SetDefault(previous) })

	logger := NewComponentLogger("runner")

	buf := &bytes.Buffer{}
	if err := Configure("debug", "json", buf); err != nil {
		t.Fatalf("configure: %v", err)
	}
	logger.Debug("drained %d events", 3)

	out := buf.String()
	if !strings.Contains(out, `"component":"runner"`) || !strings.Contains(out, "drained 3 events") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure("chatty", "text", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMultiFansOutAndFlattens(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	var typedNil *recordingLogger

	logger := Multi(Multi(a, typedNil), b)
	logger.Warn("x")

	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Fatalf("expected one line per logger, got %v and %v", a.lines, b.lines)
	}
	if _, ok := Multi(a).(*recordingLogger); !ok {
		t.Fatalf("expected single logger to be returned unwrapped")
	}
}
