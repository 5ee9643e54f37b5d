package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/robolist/robolist/internal/markdown"
)

// EmailSender delivers one email. body is plain text that reads as markdown.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type resendSender struct {
	client    *resend.Client
	fromEmail string
	markdown  *markdown.Parser
}

func (s *resendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}
	html, err := s.markdown.Render(body)
	if err != nil {
		slog.Warn("failed to render email html, sending text only", "error", err)
	} else {
		params.Html = html
	}
	_, err = s.client.Emails.SendWithContext(ctx, params)
	return err
}

type EmailService struct {
	sender  EmailSender
	isDev   bool
	appURL  string
	appName string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var sender EmailSender
	if apiKey != "" && !isDev {
		sender = &resendSender{client: resend.NewClient(apiKey), fromEmail: fromEmail, markdown: markdown.NewParser()}
	}
	return NewEmailServiceWithSender(sender, appURL, appName, isDev)
}

func NewEmailServiceWithSender(sender EmailSender, appURL, appName string, isDev bool) *EmailService {
	return &EmailService{
		sender:  sender,
		isDev:   isDev,
		appURL:  appURL,
		appName: appName,
	}
}

func (s *EmailService) send(ctx context.Context, kind, to, subject, body string) error {
	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", to, "subject", subject)
		return nil
	}

	if s.sender == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	err := s.sender.Send(ctx, to, subject, body)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	slog.Info("email sent", "type", kind, "to", to)
	return nil
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, email, name string) error {
	subject, body := welcomeEmailTemplate(name, s.appURL, s.appName)
	return s.send(ctx, "welcome", email, subject, body)
}

func (s *EmailService) SendAccountDeletedEmail(ctx context.Context, email, name string) error {
	subject, body := accountDeletedEmailTemplate(name, s.appName)
	return s.send(ctx, "account_deleted", email, subject, body)
}
