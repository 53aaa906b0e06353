package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/nhle/taskminder/internal/model"
)

// sendFunc matches smtp.SendMail and smtp.SendMailTLS.
type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPNotifier sends reminders as plain-text mail.
type SMTPNotifier struct {
	addr     string
	from     string
	username string
	password string
	send     sendFunc
	now      func() time.Time
}

// NewSMTPNotifier creates an SMTPNotifier from cfg. The password is passed
// separately so it can come from the keyring rather than the config file.
func NewSMTPNotifier(cfg model.SMTPConfig, password string) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	send := sendFunc(smtp.SendMail)
	if cfg.TLS {
		send = smtp.SendMailTLS
	}

	return &SMTPNotifier{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		from:     from,
		username: cfg.Username,
		password: password,
		send:     send,
		now:      time.Now,
	}, nil
}

// Notify composes msg and hands it to the mail server.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	raw, err := n.compose(msg)
	if err != nil {
		return &TransportError{Channel: "smtp", Err: err}
	}

	var auth sasl.Client
	if n.username != "" {
		auth = sasl.NewPlainClient("", n.username, n.password)
	}

	// The smtp client has no context support; run it aside so a cancelled
	// ctx returns promptly. The send itself finishes or times out on its own.
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.send(n.addr, auth, n.from, []string{msg.To}, bytes.NewReader(raw))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return &TransportError{Channel: "smtp", Err: fmt.Errorf("sending to %s: %w", msg.To, err)}
		}
		return nil
	case <-ctx.Done():
		return &TransportError{Channel: "smtp", Err: ctx.Err()}
	}
}

// compose renders msg as an RFC 5322 message.
func (n *SMTPNotifier) compose(msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(n.now())
	h.SetAddressList("From", []*mail.Address{{Address: n.from}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}
