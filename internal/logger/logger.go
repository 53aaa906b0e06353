// Package logger builds the application's logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout at level, formatted as "text" or "json".
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(level, format, os.Stdout)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(level, format string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)

	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		lvl = parsed
	}
	log.SetLevel(lvl)

	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return log, nil
}

// WithRequestID returns an entry tagged with requestID, or a bare entry if it is empty.
func WithRequestID(log *logrus.Logger, requestID string) *logrus.Entry {
	if requestID == "" {
		return logrus.NewEntry(log)
	}
	return log.WithField("request_id", requestID)
}
