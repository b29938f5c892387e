package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/resend/resend-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSender struct {
	sent []*resend.SendEmailRequest
	err  error
}

func (f *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &resend.SendEmailResponse{Id: "msg-1"}, nil
}

var (
	_ notevault.Notifier = (*Resend)(nil)
	_ notevault.Notifier = (*Log)(nil)
)

func TestResendWelcome(t *testing.T) {
	sender := &fakeSender{}
	m := newResend(sender, "Vault <noreply@example.com>", nil)

	require.NoError(t, m.NotifyWelcome(context.Background(), notevault.WelcomeNotice{
		Email: "ada@example.com",
		Name:  "Ada <script>",
	}))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, msg.To)
	assert.Equal(t, "Vault <noreply@example.com>", msg.From)
	assert.Equal(t, welcomeSubject, msg.Subject)
	assert.Contains(t, msg.Html, "Ada &lt;script&gt;")
	assert.NotContains(t, msg.Html, "<script>")
}

func TestResendLoginNotice(t *testing.T) {
	sender := &fakeSender{}
	m := newResend(sender, "noreply@example.com", nil)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.NotifyLogin(context.Background(), notevault.LoginNotice{
		Email: "ada@example.com",
		Name:  "Ada",
		IP:    "198.51.100.4",
		At:    at,
	}))

	require.Len(t, sender.sent, 1)
	html := sender.sent[0].Html
	assert.Contains(t, html, "198.51.100.4")
	assert.Contains(t, html, at.Format(time.RFC1123))
	assert.Contains(t, html, "unknown")
}

func TestResendPropagatesErrors(t *testing.T) {
	m := newResend(&fakeSender{err: errors.New("quota exceeded")}, "noreply@example.com", nil)
	err := m.NotifyWelcome(context.Background(), notevault.WelcomeNotice{Email: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))

	require.NoError(t, l.NotifyWelcome(context.Background(), notevault.WelcomeNotice{Email: "a@b.c"}))
	require.NoError(t, l.NotifyLogin(context.Background(), notevault.LoginNotice{Email: "a@b.c", IP: "1.2.3.4"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "welcome mail", entries[0].Message)
	assert.Equal(t, "1.2.3.4", entries[1].ContextMap()["ip"])
}
