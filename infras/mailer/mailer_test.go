package mailer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"mlaku/config"
	"mlaku/infras/mailer"
	"mlaku/infras/otel/mocks"
)

func TestUnconfiguredMailer(t *testing.T) {
	m := mailer.New(&config.Config{}, mocks.NewOtel())

	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.SendEmail(context.Background(), "a@x.com", "A", "subject", "body"), mailer.ErrNotConfigured)
}

func TestConfiguredMailer(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notification.MailerSend.APIKey = "key"
	cfg.Notification.MailerSend.FromEmail = "no-reply@mlaku.test"

	assert.True(t, mailer.New(cfg, mocks.NewOtel()).Enabled())
}
