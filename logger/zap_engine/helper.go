package zap_engine

import (
	"context"
	"time"

	loggerwrapper "github.com/PavelAgarkov/warlock/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func FlushLogs() {
	Sync()
}

func WriteDebugLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.DebugLevel, entry)
}

func WriteInfoLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.InfoLevel, entry)
}

func WriteWarnLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.WarnLevel, entry)
}

func WriteErrorLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.ErrorLevel, entry)
}

func WritePanicLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.PanicLevel, entry)
}

func WriteFatalLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	write(zapcore.FatalLevel, entry)
}

func write(level zapcore.Level, entry *loggerwrapper.LogEntry) {
	if ce := log.Check(level, entry.Msg); ce != nil {
		ce.Write(fields(entry)...)
	}
}

// пустые поля не пишем, чтобы не засорять вывод
func fields(entry *loggerwrapper.LogEntry) []zap.Field {
	out := make([]zap.Field, 0, 7)
	if entry.Component != "" {
		out = append(out, zap.String("component", entry.Component))
	}
	if entry.Method != "" {
		out = append(out, zap.String("method", entry.Method))
	}
	if entry.Name != "" {
		out = append(out, zap.String("lock", entry.Name))
	}
	if entry.Args != nil {
		out = append(out, zap.Any("args", entry.Args))
	}
	if entry.Result != nil {
		out = append(out, zap.Any("result", entry.Result))
	}
	if entry.Start != nil {
		out = append(out, zap.Duration("latency", time.Since(*entry.Start)))
	}
	if entry.Error != nil {
		out = append(out, zap.Error(entry.Error))
	}
	return out
}
