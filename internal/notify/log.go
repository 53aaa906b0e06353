package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes reminders to the log instead of delivering them.
// It is the default for local development.
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

// Notify logs msg and always succeeds.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}
