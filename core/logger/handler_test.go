package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return handler, aw
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)

	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithState(ctx, "awaiting_age")

	log := slog.New(handler).With("component", "bot")
	LogEvent(ctx, log, slog.LevelInfo, "survey.step",
		slog.String("status", "ok"),
		slog.String("selection", "25-34"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=bot", "event=survey.step", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "state=awaiting_age") {
		t.Fatalf("expected state field in %s", line)
	}
	if !strings.Contains(line, "selection=25-34") {
		t.Fatalf("expected selection field in %s", line)
	}
}

func TestStructuredHandlerJSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)

	ctx := WithRID(Background(), "101:202:303")
	ctx = WithUpdateMeta(ctx, 101, 303, 202)

	log := slog.New(handler).With("component", "broadcast")
	LogEvent(ctx, log, slog.LevelInfo, "broadcast.done",
		slog.Int("recipients", 10),
		slog.Int("sent", 8),
		slog.Int("failed", 2),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["event"] != "broadcast.done" {
		t.Fatalf("event = %v", fields["event"])
	}
	if fields["component"] != "broadcast" {
		t.Fatalf("component = %v", fields["component"])
	}
	// numeric triplet rid is compacted to base36 segments, full value preserved
	if fields["rid_full"] != "101:202:303" {
		t.Fatalf("rid_full = %v", fields["rid_full"])
	}
	if fields["rid"] != CompactRID("101:202:303") {
		t.Fatalf("rid = %v", fields["rid"])
	}
	if got := fields["recipients"].(float64); got != 10 {
		t.Fatalf("recipients = %v", got)
	}
	if got := fields["sent"].(float64); got != 8 {
		t.Fatalf("sent = %v", got)
	}
}

func TestStructuredHandlerDurationNormalization(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)

	log := slog.New(handler).With("component", "scheduler")
	LogEvent(Background(), log, slog.LevelInfo, "job.done",
		slog.Duration("duration", 1500*time.Millisecond),
		slog.String("job", "recommend"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["duration"]; ok {
		t.Fatal("raw duration key should be renamed")
	}
	if got := fields["duration_ms"].(float64); got != 1500 {
		t.Fatalf("duration_ms = %v", got)
	}
	if fields["job"] != "recommend" {
		t.Fatalf("job = %v", fields["job"])
	}
}

func TestStatusAndOutcomeNormalization(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)

	log := slog.New(handler)
	LogEvent(Background(), log, slog.LevelWarn, "send.retry",
		slog.String("status", "RETRY"),
		slog.String("outcome", "bogus"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "status=retry") {
		t.Fatalf("expected normalized status in %s", line)
	}
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome must be dropped: %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID("100:200:300"); got == "100:200:300" {
		t.Fatalf("numeric rid should be compacted, got %s", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("non-numeric rid must pass through, got %s", got)
	}
	if got := CompactRID(""); got != "" {
		t.Fatalf("empty rid must stay empty, got %s", got)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 4)
	allowed := 0
	for i := 0; i < 8; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed = %d, want 2", allowed)
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}
