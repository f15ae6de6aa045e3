package klog

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestRingCapturesBelowSinkLevel(t *testing.T) {
	resetRing()
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, false)

	logger.Debug("ctxsw", "from", 1, "to", 2)

	if buf.Len() != 0 {
		t.Fatalf("debug record must not reach a warn-level sink, got: %s", buf.String())
	}
	events := Recent(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 ring event, got %d", len(events))
	}
	e := events[0]
	if e.Msg != "ctxsw" || e.Level != slog.LevelDebug {
		t.Fatalf("unexpected ring event: %+v", e)
	}
	if s := e.String(); !strings.Contains(s, "from=1") || !strings.Contains(s, "to=2") {
		t.Fatalf("event attrs lost: %s", s)
	}
}

func TestRingKeepsMostRecentOnWrap(t *testing.T) {
	resetRing()
	logger := New(&bytes.Buffer{}, slog.LevelInfo, false)

	total := RingSize + 10
	for i := 0; i < total; i++ {
		logger.Info(fmt.Sprintf("event-%d", i))
	}

	events := Recent(RingSize)
	if len(events) != RingSize {
		t.Fatalf("expected %d events after wrap, got %d", RingSize, len(events))
	}
	if events[0].Msg != fmt.Sprintf("event-%d", total-RingSize) {
		t.Fatalf("oldest retained event wrong: %s", events[0].Msg)
	}
	if events[len(events)-1].Msg != fmt.Sprintf("event-%d", total-1) {
		t.Fatalf("newest event wrong: %s", events[len(events)-1].Msg)
	}
}

func TestRecentLimitAndOrder(t *testing.T) {
	resetRing()
	logger := New(&bytes.Buffer{}, slog.LevelInfo, false)

	for i := 0; i < 5; i++ {
		logger.Info(fmt.Sprintf("event-%d", i))
	}

	events := Recent(3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"event-2", "event-3", "event-4"} {
		if events[i].Msg != want {
			t.Fatalf("expected %s at index %d, got %s", want, i, events[i].Msg)
		}
	}
}

func TestKernelFieldHelpers(t *testing.T) {
	resetRing()
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)

	l := WithTick(WithSID(WithPID(logger, 3), 7), 99)
	l.Info("timed wait expired")

	out := buf.String()
	for _, want := range []string{"pid=3", "sid=7", "tick=99"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in sink output, got: %s", want, out)
		}
	}

	// The accumulated fields must survive into the ring too.
	events := Recent(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 ring event, got %d", len(events))
	}
	s := events[0].String()
	for _, want := range []string{"pid=3", "sid=7", "tick=99"} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %q in ring event, got: %s", want, s)
		}
	}
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, true)

	WithPID(logger, 4).Info("process created")

	out := buf.String()
	if !strings.Contains(out, `"msg":"process created"`) {
		t.Fatalf("expected JSON msg field, got: %s", out)
	}
	if !strings.Contains(out, `"pid":4`) {
		t.Fatalf("expected JSON pid field, got: %s", out)
	}
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)
	SetDefault(logger)

	if Default() != logger {
		t.Fatal("Default did not return the logger just installed")
	}
	Default().Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("default logger did not write to its sink: %s", buf.String())
	}
}

func TestEventString(t *testing.T) {
	e := Event{
		Level: slog.LevelInfo,
		Msg:   "process killed",
		Attrs: []slog.Attr{slog.Int("pid", 12)},
	}
	if got := e.String(); got != "INFO process killed pid=12" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}
