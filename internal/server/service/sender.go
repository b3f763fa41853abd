package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Email struct {
	To             []string
	Subject        string
	Text           string
	HTML           string
	IdempotencyKey string
}

type Sender interface {
	Send(ctx context.Context, e Email) error
}

// LogSender only logs what would have been sent.
type LogSender struct {
	Logger *zerolog.Logger
}

func (s *LogSender) Send(_ context.Context, e Email) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info().
		Strs("to", e.To).
		Str("subject", e.Subject).
		Str("key", e.IdempotencyKey).
		Msg("email not delivered, log provider")
	return nil
}

const defaultSendGridHost = "https://api.sendgrid.com"

type SendGridSender struct {
	APIKey      string
	Host        string
	FromName    string
	FromAddress string
}

func (s *SendGridSender) Send(ctx context.Context, e Email) error {
	if len(e.To) == 0 {
		return errors.New("no recipients")
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.FromName, s.FromAddress))
	m.Subject = e.Subject

	p := mail.NewPersonalization()
	for _, to := range e.To {
		p.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(p)

	if e.Text != "" {
		m.AddContent(mail.NewContent("text/plain", e.Text))
	}
	if e.HTML != "" {
		m.AddContent(mail.NewContent("text/html", e.HTML))
	}

	host := s.Host
	if host == "" {
		host = defaultSendGridHost
	}
	req := sendgrid.GetRequest(s.APIKey, "/v3/mail/send", strings.TrimRight(host, "/"))
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)
	if e.IdempotencyKey != "" {
		req.Headers["Idempotency-Key"] = e.IdempotencyKey
	}

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to call sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
