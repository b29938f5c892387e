// Package mailer delivers account notifications: the welcome mail sent
// once MFA enrollment completes and the notice sent after each login.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/resend/resend-go/v3"
	"go.uber.org/zap"
)

const (
	welcomeSubject = "Welcome to Secure Notes Vault"
	loginSubject   = "Login Notification - Secure Notes Vault"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2>Hi {{.Name}}!</h2>
<p>Your Secure Notes Vault account is ready. It is protected by:</p>
<ul>
<li><strong>Two-factor authentication</strong> with your authenticator app</li>
<li><strong>End-to-end encryption</strong>: notes are encrypted before they leave your device</li>
<li><strong>Zero knowledge</strong>: we cannot read your notes</li>
</ul>
<p>Keep your backup codes somewhere safe and remember your encryption passphrase. We cannot recover it.</p>
<p>The Secure Notes Vault Team</p>
</body></html>`))

	loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2>Hi {{.Name}},</h2>
<p>You just signed in to your Secure Notes Vault account.</p>
<p><strong>Time:</strong> {{.At}}<br>
<strong>IP address:</strong> {{.IP}}<br>
<strong>User agent:</strong> {{.UserAgent}}</p>
<p>If this wasn't you, change your password and contact support immediately.</p>
</body></html>`))
)

// emailSender is the subset of the resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend sends notifications through the Resend API.
type Resend struct {
	emails emailSender
	from   string
	log    *zap.Logger
}

// NewResend returns a notifier for the given API key and sender address.
func NewResend(apiKey, from string, log *zap.Logger) *Resend {
	client := resend.NewClient(apiKey)
	return newResend(client.Emails, from, log)
}

func newResend(emails emailSender, from string, log *zap.Logger) *Resend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resend{emails: emails, from: from, log: log.Named("mailer")}
}

func (r *Resend) NotifyWelcome(ctx context.Context, n notevault.WelcomeNotice) error {
	return r.send(ctx, n.Email, welcomeSubject, welcomeTmpl, n)
}

func (r *Resend) NotifyLogin(ctx context.Context, n notevault.LoginNotice) error {
	view := struct {
		Name, IP, UserAgent, At string
	}{
		Name:      n.Name,
		IP:        orUnknown(n.IP),
		UserAgent: orUnknown(n.UserAgent),
		At:        n.At.UTC().Format(time.RFC1123),
	}
	return r.send(ctx, n.Email, loginSubject, loginTmpl, view)
}

func (r *Resend) send(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	sent, err := r.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("send %s mail: %w", tmpl.Name(), err)
	}
	r.log.Debug("mail sent", zap.String("template", tmpl.Name()), zap.String("id", sent.Id))
	return nil
}

// Log writes notifications to a logger instead of sending them. It is the
// development default when no Resend API key is configured.
type Log struct {
	log *zap.Logger
}

// NewLog returns a notifier that logs at info level.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("mailer")}
}

func (l *Log) NotifyWelcome(_ context.Context, n notevault.WelcomeNotice) error {
	l.log.Info("welcome mail", zap.String("to", n.Email))
	return nil
}

func (l *Log) NotifyLogin(_ context.Context, n notevault.LoginNotice) error {
	l.log.Info("login notification",
		zap.String("to", n.Email),
		zap.String("ip", n.IP),
		zap.Time("at", n.At),
	)
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
