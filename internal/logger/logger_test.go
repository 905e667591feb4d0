package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.With("container", "kit.osmp").Warn("kept", "instruments", 2)
	out := buf.String()
	for _, want := range []string{`"msg":"kept"`, `"level":"WARN"`, `"container":"kit.osmp"`, `"instruments":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	if log.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard handler must be disabled at every level")
	}
	log.With("k", "v").WithGroup("g").Error("nothing")
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format, level string
		want          string
		wantErr       bool
	}{
		{format: "json", level: "debug", want: `"msg":"hello"`},
		{format: "text", level: "INFO", want: "msg=hello"},
		{format: "", level: "", want: "hello"},
		{format: "xml", level: "info", wantErr: true},
		{format: "json", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		log, err := Setup(&buf, tt.format, tt.level)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Setup(%q, %q): expected error", tt.format, tt.level)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Setup(%q, %q): %v", tt.format, tt.level, err)
		}
		log.Info("hello")
		if !strings.Contains(buf.String(), tt.want) {
			t.Fatalf("Setup(%q, %q): expected %q in %q", tt.format, tt.level, tt.want, buf.String())
		}
	}
}

func TestStd(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	std := Std(JSON(&buf, slog.LevelDebug).With("component", "fuse"), slog.LevelDebug)
	std.Printf("rx %d", 7)
	out := buf.String()
	if !strings.Contains(out, `"msg":"rx 7"`) || !strings.Contains(out, `"component":"fuse"`) {
		t.Fatalf("unexpected std logger output: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: " info ", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "verbose", want: slog.LevelInfo, wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if got != tc.want || (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) = %v, %v", tc.input, got, err)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
	if !NewPrettyHandler(&bytes.Buffer{}, nil).Enabled(context.Background(), slog.LevelInfo) {
		t.Error("nil options must default to info")
	}
}

func TestPrettyHandlerAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).
		WithAttrs([]slog.Attr{slog.String("mount", "/mnt/kit")}).
		WithGroup("stream")
	slog.New(h).Info("read",
		"name", "snare one",
		"bytes", 4096,
		"took", 3*time.Millisecond,
		"err", errors.New("short"),
		slog.Group("hint", "mode", "random"),
	)

	out := buf.String()
	for _, want := range []string{
		"read",
		"mount=/mnt/kit",
		`stream.name="snare one"`,
		"stream.bytes=4096",
		"stream.took=3ms",
		"stream.err=short",
		"stream.hint.mode=random",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "stream.mount") {
		t.Fatalf("attrs added before a group must not be qualified: %s", out)
	}
	if !strings.HasSuffix(out, "\n") || strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got: %q", out)
	}
}

func TestPrettyHandlerEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup with an empty name should return the same handler")
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"simple":     false,
		"":           false,
		"kit.osmp":   false,
		"has space":  true,
		"has\ttab":   true,
		`has"quote`:  true,
		"key=value":  true,
		"line\nfeed": true,
	}
	for in, want := range tests {
		if got := needsQuoting(in); got != want {
			t.Errorf("needsQuoting(%q) = %v, want %v", in, got, want)
		}
	}
}
