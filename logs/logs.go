// Package logs implements a small leveled logging backend in the style used
// throughout the consensus engine: per-subsystem Logger handles created from
// a shared Backend, fanning out to one or more BackendWriters.
package logs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level uint32

// Level constants, ordered from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelStrings = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
	LevelOff:      "OFF",
}

func (l Level) String() string {
	if s, ok := levelStrings[l]; ok {
		return s
	}
	return "UNK"
}

// LevelFromString returns the level matching the given case-insensitive
// name (trace, debug, info, warn, error, critical, off). If the name is not
// recognized, LevelInfo is returned along with ok=false.
func LevelFromString(name string) (l Level, ok bool) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// BackendWriter is a sink that receives formatted log lines for a subset of
// levels.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
	maxLevel Level
}

// NewAllLevelsBackendWriter returns a BackendWriter that receives every
// level, Trace through Critical.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace, maxLevel: LevelCritical}
}

// NewErrorBackendWriter returns a BackendWriter that only receives Error and
// Critical level lines, suitable for a dedicated error log file.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError, maxLevel: LevelCritical}
}

func (bw *BackendWriter) accepts(lvl Level) bool {
	return lvl >= bw.minLevel && lvl <= bw.maxLevel
}

// Backend multiplexes log records to every configured BackendWriter and
// hands out per-subsystem Loggers.
type Backend struct {
	mtx     sync.Mutex
	writers []*BackendWriter
}

// NewBackend creates a logging backend writing to the given writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

func (b *Backend) write(tag string, lvl Level, args ...interface{}) {
	b.writeFormatted(tag, lvl, fmt.Sprint(args...))
}

func (b *Backend) writef(tag string, lvl Level, format string, args ...interface{}) {
	b.writeFormatted(tag, lvl, fmt.Sprintf(format, args...))
}

func (b *Backend) writeFormatted(tag string, lvl Level, msg string) {
	line := fmt.Sprintf("%s [%s] %s %s\n", time.Now().Format("2006-01-02 15:04:05.000"), lvl, tag, msg)
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for _, w := range b.writers {
		if w.accepts(lvl) {
			io.WriteString(w.w, line)
		}
	}
}

// Logger is a handle for a single subsystem, identified by a short tag
// (e.g. "UTXO", "BDAG", "MMPL").
type Logger struct {
	tag     string
	backend *Backend
	level   Level
}

// Logger returns a Logger for the given subsystem tag, writing through this
// backend. Default level is Info.
func (b *Backend) Logger(tag string) *Logger {
	return &Logger{tag: tag, backend: b, level: LevelInfo}
}

// SetLevel adjusts the minimum level this logger emits.
func (l *Logger) SetLevel(lvl Level) { l.level = lvl }

// Level reports the current minimum emitted level.
func (l *Logger) Level() Level { return l.level }

func (l *Logger) log(lvl Level, args ...interface{}) {
	if lvl < l.level {
		return
	}
	l.backend.write(l.tag, lvl, args...)
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	if lvl < l.level {
		return
	}
	l.backend.writef(l.tag, lvl, format, args...)
}

// Trace logs at LevelTrace.
func (l *Logger) Trace(args ...interface{}) { l.log(LevelTrace, args...) }

// Tracef logs at LevelTrace with a format string.
func (l *Logger) Tracef(format string, args ...interface{}) { l.logf(LevelTrace, format, args...) }

// Debug logs at LevelDebug.
func (l *Logger) Debug(args ...interface{}) { l.log(LevelDebug, args...) }

// Debugf logs at LevelDebug with a format string.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(args ...interface{}) { l.log(LevelInfo, args...) }

// Infof logs at LevelInfo with a format string.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(args ...interface{}) { l.log(LevelWarn, args...) }

// Warnf logs at LevelWarn with a format string.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }

// Error logs at LevelError.
func (l *Logger) Error(args ...interface{}) { l.log(LevelError, args...) }

// Errorf logs at LevelError with a format string.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Critical logs at LevelCritical. Used for consensus-threatening conditions
// such as a failure to restore pre-reorg blocks.
func (l *Logger) Critical(args ...interface{}) { l.log(LevelCritical, args...) }

// Criticalf logs at LevelCritical with a format string.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.logf(LevelCritical, format, args...)
}
