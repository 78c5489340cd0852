package tools

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"
)

// EmailSender delivers one plain-text email and returns the provider message id
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

// SESAPI is the part of the SES client used here
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailSender sends email through Amazon SES
type SESEmailSender struct {
	client SESAPI
	from   string
}

// NewSESEmailSender wraps an SES client
func NewSESEmailSender(client SESAPI, from string) *SESEmailSender {
	return &SESEmailSender{client: client, from: from}
}

// SendEmail sends a text email
func (s *SESEmailSender) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	if !isValidEmail(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SMTPEmailSender sends email through an SMTP relay
type SMTPEmailSender struct {
	addr     string
	host     string
	username string
	password string
	from     string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailSender creates an SMTP sender; auth is used when username is set
func NewSMTPEmailSender(host string, port int, username, password, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		host:     host,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
	}
}

// SendEmail sends a text email. smtp.SendMail takes no context, so it runs in
// a goroutine and the call returns when ctx is done.
func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	if !isValidEmail(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled before sending email: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	msg := buildEmailMessage(s.from, to, subject, body, messageID)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.send(s.addr, auth, s.from, []string{to}, []byte(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send failed: %w", err)
		}
		return messageID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func buildEmailMessage(from, to, subject, body, messageID string) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", headerValue(subject)))
	builder.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)

	return builder.String()
}

// headerValue folds line breaks into spaces and encodes non-ASCII text,
// so a value can never start a header of its own
func headerValue(s string) string {
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
	return mime.QEncoding.Encode("utf-8", s)
}

func isValidEmail(email string) bool {
	if strings.ContainsAny(email, " \t\r\n<>,;") {
		return false
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	return strings.Contains(domain, ".")
}

// ErrNotConfigured is returned by senders missing credentials
var ErrNotConfigured = errors.New("sender is not configured")

// DisabledSender fails every delivery. It stands in for a channel with no backend.
type DisabledSender struct {
	Channel string
}

// SendEmail always fails
func (d DisabledSender) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	return "", fmt.Errorf("%s: %w", d.Channel, ErrNotConfigured)
}

// SendMessage always fails
func (d DisabledSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	return "", fmt.Errorf("%s: %w", d.Channel, ErrNotConfigured)
}
