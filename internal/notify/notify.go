// Package notify delivers reminder messages to users over a pluggable
// transport: SMTP mail, a Telegram chat, or the application log.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single outgoing reminder.
type Message struct {
	// To is the recipient's email address, which is also their account key.
	To      string
	Subject string
	Body    string
}

// Notifier sends a message and reports whether delivery succeeded.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// TransportError reports a failed delivery attempt on one channel.
type TransportError struct {
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or any error in its chain) is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
