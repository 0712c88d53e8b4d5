package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	minLevel atomic.Int32
	loggerMu sync.RWMutex
	output   io.Writer = os.Stdout
	logger             = newLogger(os.Stdout)
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	minLevel.Store(int32(zerolog.InfoLevel))
}

func newLogger(w io.Writer) *zerolog.Logger {
	l := zerolog.New(w).With().Timestamp().Logger()
	return &l
}

// SetLevel updates the minimum logging level accepted by the global logger.
// Supported levels are "debug", "info", "warn", and "error". Values are case-insensitive.
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		minLevel.Store(int32(zerolog.InfoLevel))
	case "debug":
		minLevel.Store(int32(zerolog.DebugLevel))
	case "warn", "warning":
		minLevel.Store(int32(zerolog.WarnLevel))
	case "error":
		minLevel.Store(int32(zerolog.ErrorLevel))
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// Logger returns the underlying zerolog.Logger instance.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// ReplaceLogger installs a custom zerolog.Logger.
func ReplaceLogger(l *zerolog.Logger) {
	if l == nil {
		panic("log: nil logger provided")
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// SetOutput points the global logger at w, keeping the field layout.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	output = w
	logger = newLogger(w)
}

// Info logs a message at the info level using the global logger.
func Info(ctx context.Context, msg string, args ...any) {
	emit(ctx, zerolog.InfoLevel, msg, args)
}

// Debug logs a message at the debug level using the global logger.
func Debug(ctx context.Context, msg string, args ...any) {
	emit(ctx, zerolog.DebugLevel, msg, args)
}

// Warn logs a message at the warn level using the global logger.
func Warn(ctx context.Context, msg string, args ...any) {
	emit(ctx, zerolog.WarnLevel, msg, args)
}

// Error logs a message at the error level using the global logger.
func Error(ctx context.Context, msg string, args ...any) {
	emit(ctx, zerolog.ErrorLevel, msg, args)
}

func emit(ctx context.Context, level zerolog.Level, msg string, args []any) {
	if level < zerolog.Level(minLevel.Load()) {
		return
	}
	event := Logger().WithLevel(level)
	if event == nil {
		return
	}
	appendArgs(event, args).Ctx(withContext(ctx)).Msg(msg)
}

// appendArgs follows the slog convention of alternating keys and values.
func appendArgs(event *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			event = event.Interface("!BADKEY", args[i])
			break
		}
		key := fmt.Sprint(args[i])
		switch value := args[i+1].(type) {
		case error:
			event = event.AnErr(key, value)
		case fmt.Stringer:
			event = event.Str(key, value.String())
		default:
			event = event.Interface(key, value)
		}
	}
	return event
}

func withContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Sync flushes the output when it supports it, such as an *os.File.
func Sync() error {
	type syncer interface {
		Sync() error
	}
	loggerMu.RLock()
	w := output
	loggerMu.RUnlock()
	if s, ok := w.(syncer); ok && w != os.Stdout {
		return s.Sync()
	}
	return nil
}
