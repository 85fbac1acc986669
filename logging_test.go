package monetdb

import (
	"context"
	"log/slog"
	"testing"
)

// recordingHandler captures emitted records for assertions, avoiding a
// dependency on slog's text/JSON output formatting.
type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler      { return h }

func TestAttrsFromPairsBuildsKeyValueAttrs(t *testing.T) {
	attrs := attrsFromPairs([]any{"query", "SELECT 1", "n", 3})
	if len(attrs) != 2 {
		t.Fatalf("len(attrs) = %d, want 2", len(attrs))
	}
	if attrs[0].Key != "query" || attrs[1].Key != "n" {
		t.Fatalf("attrs = %+v, want keys query,n in order", attrs)
	}
}

func TestAttrsFromPairsIgnoresTrailingOddArg(t *testing.T) {
	attrs := attrsFromPairs([]any{"query", "SELECT 1", "dangling"})
	if len(attrs) != 1 {
		t.Fatalf("len(attrs) = %d, want 1 (trailing unpaired arg dropped)", len(attrs))
	}
}

func TestConnLoggerTracefNoopWhenTraceDisabled(t *testing.T) {
	h := &recordingHandler{}
	l := connLogger{logger: slog.New(h), trace: false}
	l.tracef(context.Background(), "should not appear", "k", "v")
	if len(h.records) != 0 {
		t.Fatalf("expected no records when trace is disabled, got %d", len(h.records))
	}
}

func TestConnLoggerTracefEmitsWhenTraceEnabled(t *testing.T) {
	h := &recordingHandler{}
	l := connLogger{logger: slog.New(h), trace: true}
	l.tracef(context.Background(), "execute", "query", "SELECT 1")
	if len(h.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(h.records))
	}
	if h.records[0].Message != "execute" {
		t.Fatalf("Message = %q, want \"execute\"", h.records[0].Message)
	}
}

func TestConnLoggerErrorfAlwaysEmits(t *testing.T) {
	h := &recordingHandler{}
	l := connLogger{logger: slog.New(h), trace: false}
	l.errorf(context.Background(), "execute failed", context.Canceled)
	if len(h.records) != 1 {
		t.Fatalf("expected errorf to emit regardless of trace flag, got %d records", len(h.records))
	}
	if h.records[0].Level != slog.LevelError {
		t.Fatalf("Level = %v, want LevelError", h.records[0].Level)
	}
}

func TestNewConnLoggerUsesConfigLoggerAndTraceFlag(t *testing.T) {
	h := &recordingHandler{}
	cfg := NewConfig("monetdb", "monetdb", "demo")
	cfg.SetLogger(slog.New(h))
	cfg.SetProtocolTrace(true)

	l := newConnLogger(cfg)
	if !l.trace {
		t.Fatalf("expected trace to be enabled from Config.SetProtocolTrace(true)")
	}
	l.tracef(context.Background(), "ping")
	if len(h.records) != 1 {
		t.Fatalf("expected the configured logger to receive the trace record")
	}
}
