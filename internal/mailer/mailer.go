// Package mailer wraps the SMTP relay. Transport failures are reported
// in-band in Result values so a single bad recipient never aborts a batch.
package mailer

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/ignite/automail/internal/pkg/logger"
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	Path        string
	ContentType string
}

// Message is one outgoing email.
type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Result reports the outcome of a single send.
type Result struct {
	Recipient string `json:"recipient,omitempty"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender submits messages through a single SMTP relay.
type Sender struct {
	dialer *gomail.Dialer
	from   string
	host   string

	// seams for tests
	send  func(m *gomail.Message) error
	sleep func(d time.Duration)
}

// NewSender creates a sender for the given SMTP relay.
func NewSender(host string, port int, username, password, from string) *Sender {
	d := gomail.NewDialer(host, port, username, password)
	s := &Sender{
		dialer: d,
		from:   from,
		host:   host,
		sleep:  time.Sleep,
	}
	s.send = func(m *gomail.Message) error { return s.dialer.DialAndSend(m) }
	return s
}

// VerifyConnection probes the relay. Best effort: any failure collapses
// to false.
func (s *Sender) VerifyConnection() bool {
	closer, err := s.dialer.Dial()
	if err != nil {
		logger.Warn("smtp connection check failed", "host", s.host, "error", err.Error())
		return false
	}
	_ = closer.Close()
	return true
}

// Send submits one message. It never returns a Go error; transport failures
// are carried in the Result.
func (s *Sender) Send(msg Message) Result {
	recipient := strings.Join(msg.To, ", ")

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	m.SetHeader("Subject", msg.Subject)

	// The relay does not echo an id back over SMTP, so we stamp our own.
	messageID := "<" + uuid.NewString() + "@" + s.host + ">"
	m.SetHeader("Message-ID", messageID)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range msg.Attachments {
		settings := []gomail.FileSetting{}
		if a.Filename != "" {
			settings = append(settings, gomail.Rename(a.Filename))
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		m.Attach(a.Path, settings...)
	}

	if err := s.send(m); err != nil {
		logger.Error("send failed", "recipient", recipient, "error", err.Error())
		return Result{Recipient: recipient, Success: false, Error: err.Error()}
	}

	logger.Info("email sent", "recipient", recipient, "message_id", messageID)
	return Result{Recipient: recipient, Success: true, MessageID: messageID}
}

// SendMany submits messages strictly one at a time, sleeping delay between
// sends to respect relay rate limits. A failure on one message does not
// abort the remaining sends.
func (s *Sender) SendMany(msgs []Message, delay time.Duration) []Result {
	results := make([]Result, 0, len(msgs))
	for _, msg := range msgs {
		results = append(results, s.Send(msg))
		if delay > 0 {
			s.sleep(delay)
		}
	}
	return results
}
