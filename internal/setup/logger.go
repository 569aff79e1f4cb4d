package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GetLogger sets up the logging infrastructure by creating a timestamped
// session directory under logDir and building a logger that writes to both
// stdout and the session's main.log. Each session carries a unique ID so
// interleaved runs can be told apart.
func GetLogger(logDir, level string, maxLogsToKeep int) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Clean up old log sessions before creating a new one
	if err := rotateLogSessions(logDir, maxLogsToKeep); err != nil {
		return nil, fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	sessionDir := filepath.Join(logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logger, err := initLogger(filepath.Join(sessionDir, "main.log"), level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.With(zap.String("session", uuid.New().String()[:8])), nil
}

// initLogger creates a zap logger with development settings writing to the
// given file and stdout. Uses atomic level control to allow log level changes.
func initLogger(logPath, level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout", logPath}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// rotateLogSessions maintains the log directory by removing oldest sessions
// when the total number exceeds maxLogsToKeep. Uses file modification time
// to determine age.
func rotateLogSessions(logDir string, maxLogsToKeep int) error {
	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	if err != nil {
		return err
	}

	if len(sessions) <= maxLogsToKeep {
		return nil
	}

	// Sort by modification time to identify oldest sessions
	sort.Slice(sessions, func(i, j int) bool {
		iInfo, _ := os.Stat(sessions[i])
		jInfo, _ := os.Stat(sessions[j])

		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	for i := 0; i < len(sessions)-maxLogsToKeep; i++ {
		if err := os.RemoveAll(sessions[i]); err != nil {
			return err
		}
	}

	return nil
}
