package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = NewLogger()
}

// NewLogger builds the JSON logger. LOG_LEVEL picks the level (default info);
// LOG_FILE additionally writes to a rotated file.
func NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	var out io.Writer = os.Stdout
	if file := strings.TrimSpace(os.Getenv("LOG_FILE")); file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    intFromEnv("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: intFromEnv("LOG_FILE_MAX_BACKUPS", 7),
			MaxAge:     intFromEnv("LOG_FILE_MAX_AGE_DAYS", 28),
			Compress:   true,
		})
	}
	l.SetOutput(out)
	return l
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if logger == nil {
		logger = logg
	}
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
