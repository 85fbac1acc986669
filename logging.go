package monetdb

import (
	"context"
	"log/slog"
	"os"
)

// protocolTraceEnv mirrors go-hdb/driver/sqltrace's environment-variable
// trace switch, giving every connection a trace knob even when the
// application doesn't call Config.SetProtocolTrace.
const protocolTraceEnv = "MONETDB_PROTOCOL_TRACE"

func envProtocolTrace() bool {
	v := os.Getenv(protocolTraceEnv)
	return v == "1" || v == "true"
}

// connLogger pairs a *slog.Logger with the protocol-trace switch that
// turns on a debug record for each statement a Conn executes, following
// go-hdb's protTrace/logger.LogAttrs pattern. The block codec and the
// handshake do not log.
type connLogger struct {
	logger *slog.Logger
	trace  bool
}

func newConnLogger(cfg *Config) connLogger {
	logger, trace := cfg.logging()
	if logger == nil {
		logger = slog.Default()
	}
	return connLogger{logger: logger, trace: trace || envProtocolTrace()}
}

func (l connLogger) tracef(ctx context.Context, msg string, args ...any) {
	if !l.trace {
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrsFromPairs(args)...)
}

func (l connLogger) errorf(ctx context.Context, msg string, err error) {
	l.logger.LogAttrs(ctx, slog.LevelError, msg, slog.Any("error", err))
}

func attrsFromPairs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
