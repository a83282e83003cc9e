// Package mail delivers transactional email through the Resend API.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Message describes one outbound email to a single recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// Sender delivers a message and reports the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendSender sends messages through Resend.
type ResendSender struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewResendSender constructs a sender for the given API key and from address.
func NewResendSender(apiKey, fromEmail, fromName string) (*ResendSender, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("mail: api key is required")
	}
	fromEmail = strings.TrimSpace(fromEmail)
	if fromEmail == "" {
		return nil, errors.New("mail: from address is required")
	}
	return &ResendSender{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  strings.TrimSpace(fromName),
	}, nil
}

// Send delivers the message and returns the Resend message id.
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("mail: sender is not configured")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", errors.New("mail: recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", errors.New("mail: subject is required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from(),
		To:      []string{formatRecipient(to, msg.ToName)},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Tags:    resendTags(msg.Tags),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("mail: send: %w", err)
	}
	return sent.Id, nil
}

func (s *ResendSender) from() string {
	if s.fromName == "" {
		return s.fromEmail
	}
	return fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
}

func formatRecipient(email, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]resend.Tag, 0, len(tags))
	for name, value := range tags {
		out = append(out, resend.Tag{Name: name, Value: value})
	}
	return out
}
