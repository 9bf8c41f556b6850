// Package logger builds the application's logrus instances.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the shared application logger at the configured
// level. Unknown levels fall back to info so a bad config value never
// silences the process.
func NewLogger(logLevel string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.TrimSpace(logLevel))
	if err != nil {
		log.Warnf("Unknown log level %q, using info", logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(formatterFor(os.Getenv("APP_ENV")))

	return log
}

// formatterFor picks JSON output for production so aggregation gets
// structured entries, and colored text everywhere else.
func formatterFor(environment string) logrus.Formatter {
	if environment == "production" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	}
}
