package notifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/config"
	"mlaku/infras/otel/mocks"
	"mlaku/shared/notifier"
)

type fakeEmail struct {
	enabled bool
	err     error
	calls   int
}

func (f *fakeEmail) Enabled() bool { return f.enabled }

func (f *fakeEmail) SendEmail(_ context.Context, _, _, _, _ string) error {
	f.calls++

	return f.err
}

type fakeWhatsApp struct {
	enabled bool
	phones  []string
}

func (f *fakeWhatsApp) Enabled() bool { return f.enabled }

func (f *fakeWhatsApp) SendWhatsApp(_ context.Context, phone, _ string) error {
	f.phones = append(f.phones, phone)

	return nil
}

func newConfig(maxFailures uint32) *config.Config {
	cfg := &config.Config{}
	cfg.Notification.Breaker.MaxFailures = maxFailures
	cfg.Notification.Breaker.TimeoutSeconds = 60
	cfg.Notification.Breaker.IntervalSeconds = 60

	return cfg
}

func TestNotify_RoutesByChannel(t *testing.T) {
	email := &fakeEmail{enabled: true}
	wa := &fakeWhatsApp{enabled: true}
	n := notifier.New(newConfig(3), email, wa, mocks.NewOtel())

	require.NoError(t, n.Notify(context.Background(), notifier.OTPMessage(notifier.ChannelEmail, "a@x.com", "A", "ABC123", 10)))
	require.NoError(t, n.Notify(context.Background(), notifier.OTPMessage(notifier.ChannelWhatsApp, "+628123", "A", "ABC123", 10)))

	assert.Equal(t, 1, email.calls)
	assert.Equal(t, []string{"+628123"}, wa.phones)
}

func TestNotify_DisabledChannelLogs(t *testing.T) {
	email := &fakeEmail{}
	n := notifier.New(newConfig(3), email, &fakeWhatsApp{}, mocks.NewOtel())

	require.NoError(t, n.Notify(context.Background(), notifier.Message{Channel: notifier.ChannelEmail, To: "a@x.com"}))
	assert.Zero(t, email.calls)
}

func TestNotify_UnknownChannel(t *testing.T) {
	n := notifier.New(newConfig(3), &fakeEmail{}, &fakeWhatsApp{}, mocks.NewOtel())

	err := n.Notify(context.Background(), notifier.Message{Channel: "pigeon"})
	assert.ErrorIs(t, err, notifier.ErrUnknownChannel)
}

func TestNotify_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	email := &fakeEmail{enabled: true, err: errors.New("provider down")}
	n := notifier.New(newConfig(2), email, &fakeWhatsApp{}, mocks.NewOtel())
	msg := notifier.Message{Channel: notifier.ChannelEmail, To: "a@x.com"}

	for range 2 {
		err := n.Notify(context.Background(), msg)
		require.Error(t, err)
		assert.NotErrorIs(t, err, notifier.ErrUnavailable)
	}

	err := n.Notify(context.Background(), msg)
	assert.ErrorIs(t, err, notifier.ErrUnavailable)
	assert.Equal(t, 2, email.calls)
}

func TestOTPMessage(t *testing.T) {
	msg := notifier.OTPMessage(notifier.ChannelEmail, "a@x.com", "Ayu", "QW12ER", 10)

	assert.Equal(t, notifier.ChannelEmail, msg.Channel)
	assert.Contains(t, msg.Body, "QW12ER")
	assert.Contains(t, msg.Body, "10 minutes")
}

func TestParseChannel(t *testing.T) {
	assert.Equal(t, notifier.ChannelWhatsApp, notifier.ParseChannel("whatsapp"))
	assert.Equal(t, notifier.ChannelEmail, notifier.ParseChannel("email"))
	assert.Equal(t, notifier.ChannelEmail, notifier.ParseChannel(""))
}

func TestBookingStatusMessage(t *testing.T) {
	msg := notifier.BookingStatusMessage("a@x.com", "Bromo sunrise", "confirmed")

	assert.Equal(t, notifier.ChannelEmail, msg.Channel)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, "Your Mlaku booking is confirmed", msg.Subject)
	assert.Contains(t, msg.Body, `"Bromo sunrise"`)
}
