package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// Set log level from environment
	if level, err := logrus.ParseLevel(os.Getenv("COREMS_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
}

// SetVerbose enables debug logging
func SetVerbose() {
	log.SetLevel(logrus.DebugLevel)
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Info logs an info message
func Info(args ...interface{}) {
	log.Info(args...)
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	log.Warn(args...)
}
