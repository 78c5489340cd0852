package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/bytedance/sonic"
)

// MessageSender delivers a short text message (SMS, WhatsApp) to a phone number
type MessageSender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// SNSAPI is the part of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSMessageSender sends SMS through Amazon SNS
type SNSMessageSender struct {
	client SNSAPI
}

// NewSNSMessageSender wraps an SNS client
func NewSNSMessageSender(client SNSAPI) *SNSMessageSender {
	return &SNSMessageSender{client: client}
}

// SendMessage publishes an SMS to a phone number
func (s *SNSMessageSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	to = normalizePhone(to)
	if to == "" {
		return "", fmt.Errorf("invalid phone number")
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// UltraMsgSender sends WhatsApp messages through the UltraMsg HTTP API
type UltraMsgSender struct {
	baseURL    string
	instanceID string
	token      string
	client     *http.Client
}

// NewUltraMsgSender creates a sender; a nil client gets a 15s default
func NewUltraMsgSender(baseURL, instanceID, token string, client *http.Client) *UltraMsgSender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &UltraMsgSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		client:     client,
	}
}

type ultraMsgResponse struct {
	Sent    string `json:"sent"`
	Message string `json:"message"`
	ID      any    `json:"id"`
	Error   any    `json:"error"`
}

// SendMessage posts a chat message
func (u *UltraMsgSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	if u.instanceID == "" || u.token == "" {
		return "", fmt.Errorf("ultramsg: %w", ErrNotConfigured)
	}
	to = normalizePhone(to)
	if to == "" {
		return "", fmt.Errorf("invalid phone number")
	}

	form := url.Values{}
	form.Set("token", u.token)
	form.Set("to", to)
	form.Set("body", body)

	endpoint := fmt.Sprintf("%s/%s/messages/chat", u.baseURL, u.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build ultramsg request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ultramsg request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read ultramsg response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ultramsg returned status %d", resp.StatusCode)
	}

	var out ultraMsgResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("invalid ultramsg response: %w", err)
	}
	if out.Error != nil || out.Sent != "true" {
		return "", fmt.Errorf("ultramsg rejected message: %v", out.Error)
	}
	return fmt.Sprint(out.ID), nil
}

// normalizePhone keeps a leading plus and the digits
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(strings.TrimPrefix(out, "+")) < 6 {
		return ""
	}
	return out
}
