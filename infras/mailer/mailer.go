package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog/log"

	"mlaku/config"
	"mlaku/infras/otel"
	"mlaku/shared/constant"
)

const sendTimeout = 10 * time.Second

var ErrNotConfigured = errors.New("mailersend is not configured")

// Mailer delivers transactional email through MailerSend.
type Mailer struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
	otel    otel.Otel
}

func New(cfg *config.Config, otl otel.Otel) *Mailer {
	settings := cfg.Notification.MailerSend

	m := &Mailer{
		enabled: settings.APIKey != "" && settings.FromEmail != "",
		from: mailersend.From{
			Name:  settings.FromName,
			Email: settings.FromEmail,
		},
		otel: otl,
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(settings.APIKey)
	} else {
		log.Warn().Msg("MailerSend is not configured, email notifications will be logged only")
	}

	return m
}

func (m *Mailer) Enabled() bool {
	return m.enabled
}

func (m *Mailer) SendEmail(ctx context.Context, toEmail, toName, subject, text string) (err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelNotifyScopeName, constant.OtelNotifyScopeName+".SendEmail")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if !m.enabled {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}

	if _, err = m.client.Email.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
