// Package logging builds the zap logger for the three output modes the
// CLI supports: normal console output, a per-session debug logfile, or
// quiet (errors only).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogfileName returns the diagnostic log filename for a session.
func LogfileName(sessionID string) string {
	return fmt.Sprintf("runtime-%s.log", sessionID)
}

// New constructs the run logger. Logfile mode wins over quiet and
// redirects everything to a debug-level file; quiet keeps only errors
// on stderr.
func New(quiet, logfile bool, sessionID string) (*zap.Logger, error) {
	switch {
	case logfile:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.OutputPaths = []string{LogfileName(sessionID)}
		cfg.ErrorOutputPaths = []string{LogfileName(sessionID)}
		return cfg.Build()
	case quiet:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return cfg.Build()
	}
}
