package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger tagged with the service name. LOG_LEVEL picks the
// level; unknown values fall back to info.
func New(service string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))

	return log.WithField("service", service)
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
