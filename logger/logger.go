// Package logger wires up the per-subsystem loggers used across the
// consensus engine and manages rotation of the on-disk log files.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jrick/logrotate/rotator"

	"github.com/xai-blockchain/xai-sub017/logs"
)

// logWriter fans out to stdout and the rotating log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// errLogWriter fans out to stdout and the rotating error-only log file.
type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = logs.NewBackend([]*logs.BackendWriter{
		logs.NewAllLevelsBackendWriter(logWriter{}),
		logs.NewErrorBackendWriter(errLogWriter{}),
	})

	// LogRotator is the all-levels log output. It must be closed on
	// application shutdown.
	LogRotator *rotator.Rotator

	// ErrLogRotator carries only Error and Critical level lines.
	ErrLogRotator *rotator.Rotator

	// UTXOLog logs UTXO set mutations and lock lifecycle events.
	UTXOLog = backendLog.Logger("UTXO")
	// ChainLog logs block validation, fork choice and reorganization.
	ChainLog = backendLog.Logger("BDAG")
	// MempoolLog logs mempool admission, RBF and eviction.
	MempoolLog = backendLog.Logger("MMPL")
	// CheckpointLog logs checkpoint serialization and encryption.
	CheckpointLog = backendLog.Logger("CKPT")
	// AddressIndexLog logs address-index writes and rollbacks.
	AddressIndexLog = backendLog.Logger("AIDX")
	// PowLog logs proof-of-work target checks and retargets.
	PowLog = backendLog.Logger("POWX")
	// CoreLog logs the external API facade: submissions, query errors, and
	// subscriber dispatch.
	CoreLog = backendLog.Logger("CORE")

	initiated = false
)

var subsystemLoggers = map[string]*logs.Logger{
	"UTXO": UTXOLog,
	"BDAG": ChainLog,
	"MMPL": MempoolLog,
	"CKPT": CheckpointLog,
	"AIDX": AddressIndexLog,
	"POWX": PowLog,
	"CORE": CoreLog,
}

// InitLogRotators initializes the rotating log files. It must be called
// before any package-global logger is used if on-disk logging is desired.
func InitLogRotators(logFile, errLogFile string) {
	initiated = true
	LogRotator = initLogRotator(logFile)
	ErrLogRotator = initLogRotator(errLogFile)
}

func initLogRotator(logFile string) *rotator.Rotator {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
			os.Exit(1)
		}
	}
	r, err := rotator.New(logFile, 10*1024*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	return r
}

// SetLogLevel sets the logging level for the provided subsystem tag.
// Invalid subsystem tags are ignored.
func SetLogLevel(subsystemTag, logLevel string) {
	logger, ok := subsystemLoggers[subsystemTag]
	if !ok {
		return
	}
	level, _ := logs.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for tag := range subsystemLoggers {
		SetLogLevel(tag, logLevel)
	}
}

// SupportedSubsystems returns the sorted list of subsystem tags.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
