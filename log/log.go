// Package log wraps a process-wide zerolog logger with the small set of
// helpers used across the node and the oracle.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00" // like time.RFC3339Nano but with 3 fixed-width decimals
)

var (
	log   zerolog.Logger
	logMu sync.RWMutex
)

func init() {
	// $LOG_LEVEL overrides the default so tests can raise verbosity without
	// touching code. Initializing here also avoids a zero logger.
	Init(cmp.Or(os.Getenv("LOG_LEVEL"), "error"), "stderr", nil)
}

// Logger provides access to the global logger (zerolog).
func Logger() *zerolog.Logger {
	logger := getLogger()
	return &logger
}

func getLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func setLogger(logger zerolog.Logger) {
	logMu.Lock()
	log = logger
	logMu.Unlock()
}

// errorLevelWriter only forwards warnings and errors to the wrapped writer.
type errorLevelWriter struct {
	io.Writer
}

var _ zerolog.LevelWriter = &errorLevelWriter{}

func (*errorLevelWriter) Write(_ []byte) (int, error) {
	panic("should be calling WriteLevel")
}

func (w *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

var levels = map[string]zerolog.Level{
	LogLevelDebug: zerolog.DebugLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelError: zerolog.ErrorLevel,
}

func parseLevel(level string) (zerolog.Level, error) {
	if lvl, ok := levels[level]; ok {
		return lvl, nil
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level: %q", level)
}

// ValidLevel reports whether level is one of the supported level names.
func ValidLevel(level string) bool {
	_, ok := levels[level]
	return ok
}

// openOutput resolves the output name. Console output always goes to the
// returned console writer; a ".json" file additionally gets raw JSON lines
// through jsonFile, in which case the console is stdout.
func openOutput(output string) (console io.Writer, jsonFile io.Writer) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		panic(fmt.Sprintf("cannot create log output: %v", err))
	}
	if strings.HasSuffix(output, ".json") {
		return os.Stdout, f
	}
	return f, nil
}

// Init (re)configures the global logger. Output can be "stdout", "stderr" or
// a file path; paths ending in ".json" receive raw JSON lines while stdout
// keeps the human readable console format. If errorOutput is not nil, every
// warning and error is also copied there without colors.
func Init(level, output string, errorOutput io.Writer) {
	lvl, err := parseLevel(level)
	if err != nil {
		panic(err.Error())
	}

	console, jsonFile := openOutput(output)
	var writers []io.Writer
	if jsonFile != nil {
		writers = append(writers, jsonFile)
	}
	writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: RFC3339Milli})
	if errorOutput != nil {
		writers = append(writers, &errorLevelWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: RFC3339Milli,
			NoColor:    true,
		}})
	}
	w := writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// skip this package's wrappers when reporting the caller
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return path.Base(path.Dir(file)) + "/" + path.Base(file) + ":" + strconv.Itoa(line)
	}
	logger := zerolog.New(w).With().Timestamp().Caller().Logger().Level(lvl)
	setLogger(logger)
	logger.Info().Str("level", level).Str("output", output).Msg("logger initialized")
}

// Level returns the name of the current log level.
func Level() string {
	current := getLogger().GetLevel()
	for name, lvl := range levels {
		if lvl == current {
			return name
		}
	}
	return LogLevelError
}

// Info logs the concatenation of args at info level.
func Info(args ...any) {
	event(zerolog.InfoLevel).Msg(fmt.Sprint(args...))
}

// Warn logs the concatenation of args at warn level.
func Warn(args ...any) {
	event(zerolog.WarnLevel).Msg(fmt.Sprint(args...))
}

// Monitor logs a set of fields at info level without caller information.
// Used for periodic summaries that external tooling scrapes.
func Monitor(msg string, fields map[string]any) {
	event(zerolog.InfoLevel).CallerSkipFrame(100).Fields(fields).Msg(msg)
}

// Fatalf logs a formatted message with the stack trace and exits.
func Fatalf(template string, args ...any) {
	logger := getLogger()
	logger.Fatal().Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw logs msg at debug level with alternating key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	event(zerolog.DebugLevel).Fields(keyvalues).Msg(msg)
}

// Infow logs msg at info level with alternating key-value pairs.
func Infow(msg string, keyvalues ...any) {
	event(zerolog.InfoLevel).Fields(keyvalues).Msg(msg)
}

// Warnw logs msg at warn level with alternating key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	event(zerolog.WarnLevel).Fields(keyvalues).Msg(msg)
}

// Errorw logs msg at error level with err and alternating key-value pairs.
func Errorw(err error, msg string, keyvalues ...any) {
	event(zerolog.ErrorLevel).Err(err).Fields(keyvalues).Msg(msg)
}

func event(level zerolog.Level) *zerolog.Event {
	logger := getLogger()
	return logger.WithLevel(level)
}
