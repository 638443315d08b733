package zap_engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log         = zap.NewNop()
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel) // для динамического изменения уровня
)

type Config struct {
	Level string `mapstructure:"level"`
	Cloud bool   `mapstructure:"cloud"` // JSON вместо консольного формата
}

func defaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// InitLogger настраивает глобальный логгер, писать будет в stdout.
func InitLogger(cfg Config, option ...zap.Option) error {
	return InitLoggerTo(os.Stdout, cfg, option...)
}

func InitLoggerTo(w io.Writer, cfg Config, option ...zap.Option) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	atomicLevel.SetLevel(level)

	var enc zapcore.Encoder
	if cfg.Cloud {
		enc = zapcore.NewJSONEncoder(defaultEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(defaultEncoderConfig())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), atomicLevel)

	opt := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	opt = append(opt, option...)

	log = zap.New(core, opt...)
	return nil
}

// SetLevel Позволяет менять уровень в рантайме
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

func GetLevel() string {
	return atomicLevel.Level().String()
}

func Sync() {
	if log == nil {
		return
	}
	if err := log.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "zap sync error: %v\n", err)
	}
}

// stdout/stderr на linux не умеют fsync
func isIgnorableSyncError(err error) bool {
	var pe *os.PathError
	if errors.As(err, &pe) {
		switch pe.Err {
		case syscall.EINVAL, syscall.ENOTSUP, syscall.ENOSYS, syscall.ENOTTY:
			return true
		}
	}
	return false
}
