package utils

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"claude-relay/internal/types"

	"github.com/sirupsen/logrus"
)

// syncWriter wraps an io.Writer with synchronization to ensure thread-safe
// writes. This prevents log entries from being interleaved when multiple
// goroutines write concurrently.
type syncWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.writer.Write(p)
}

var logFile *os.File

// SetupLogger configures the logging system based on the provided configuration.
// Calling it again closes any previously opened log file first.
func SetupLogger(configManager types.ConfigManager) {
	CloseLogger()

	logConfig := configManager.GetLogConfig()

	level, err := logrus.ParseLevel(logConfig.Level)
	if err != nil {
		logrus.Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if logConfig.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if logConfig.EnableFile {
		logDir := filepath.Dir(logConfig.FilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logrus.Warnf("Failed to create log directory: %v", err)
			return
		}
		file, err := os.OpenFile(logConfig.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logrus.Warnf("Failed to open log file: %v", err)
			return
		}
		logFile = file
		logrus.SetOutput(&syncWriter{
			writer: io.MultiWriter(os.Stdout, file),
		})
	}
}

// CloseLogger releases the log file if file logging was enabled.
func CloseLogger() {
	if logFile != nil {
		logrus.SetOutput(os.Stdout)
		logFile.Close()
		logFile = nil
	}
}
