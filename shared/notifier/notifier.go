package notifier

//go:generate go run go.uber.org/mock/mockgen -source=./notifier.go -destination=./mocks/notifier_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"mlaku/config"
	"mlaku/infras/otel"
	"mlaku/shared/constant"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

var (
	ErrUnknownChannel = errors.New("unknown notification channel")
	ErrUnavailable    = errors.New("notification channel temporarily unavailable")
)

// ParseChannel falls back to email for unknown values.
func ParseChannel(value string) Channel {
	if Channel(value) == ChannelWhatsApp {
		return ChannelWhatsApp
	}

	return ChannelEmail
}

type Message struct {
	Channel Channel
	To      string
	Name    string
	Subject string
	Body    string
}

type EmailSender interface {
	Enabled() bool
	SendEmail(ctx context.Context, toEmail, toName, subject, text string) error
}

type WhatsAppSender interface {
	Enabled() bool
	SendWhatsApp(ctx context.Context, phone, body string) error
}

// Notifier delivers a message over its channel. A channel without
// credentials logs the message instead of failing.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type notifierImpl struct {
	email           EmailSender
	whatsapp        WhatsAppSender
	emailBreaker    *gobreaker.CircuitBreaker
	whatsappBreaker *gobreaker.CircuitBreaker
	logBody         bool
	otel            otel.Otel
}

func New(cfg *config.Config, email EmailSender, whatsapp WhatsAppSender, otl otel.Otel) Notifier {
	return &notifierImpl{
		email:           email,
		whatsapp:        whatsapp,
		emailBreaker:    newBreaker(cfg, string(ChannelEmail)),
		whatsappBreaker: newBreaker(cfg, string(ChannelWhatsApp)),
		logBody:         cfg.Server.Env != constant.ServerEnvProduction,
		otel:            otl,
	}
}

func newBreaker(cfg *config.Config, name string) *gobreaker.CircuitBreaker {
	settings := cfg.Notification.Breaker

	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Duration(settings.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(settings.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("channel", name).Str("from", from.String()).Str("to", to.String()).Msg("notification circuit breaker state changed")
		},
	})
}

func (n *notifierImpl) Notify(ctx context.Context, msg Message) (err error) {
	ctx, scope := n.otel.NewScope(ctx, constant.OtelNotifyScopeName, constant.OtelNotifyScopeName+".Notify")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	scope.SetAttribute("channel", string(msg.Channel))

	switch msg.Channel {
	case ChannelEmail:
		if !n.email.Enabled() {
			n.logFallback(msg)

			return nil
		}

		return n.execute(n.emailBreaker, func() error {
			return n.email.SendEmail(ctx, msg.To, msg.Name, msg.Subject, msg.Body)
		})
	case ChannelWhatsApp:
		if !n.whatsapp.Enabled() {
			n.logFallback(msg)

			return nil
		}

		return n.execute(n.whatsappBreaker, func() error {
			return n.whatsapp.SendWhatsApp(ctx, msg.To, msg.Body)
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
}

func (n *notifierImpl) execute(breaker *gobreaker.CircuitBreaker, send func() error) error {
	_, err := breaker.Execute(func() (any, error) {
		return nil, send()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrUnavailable, breaker.Name())
	}

	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}

	return nil
}

func (n *notifierImpl) logFallback(msg Message) {
	event := log.Info().Str("channel", string(msg.Channel)).Str("to", msg.To).Str("subject", msg.Subject)
	if n.logBody {
		event = event.Str("body", msg.Body)
	}

	event.Msg("notification channel not configured, message logged")
}

// OTPMessage renders the verification code message for a channel.
func OTPMessage(channel Channel, to, name, code string, expiresInMinutes int) Message {
	return Message{
		Channel: channel,
		To:      to,
		Name:    name,
		Subject: "Your Mlaku verification code",
		Body: fmt.Sprintf("Hi %s, your Mlaku verification code is %s. It expires in %d minutes.",
			name, code, expiresInMinutes),
	}
}

// BookingStatusMessage tells a tourist that their booking changed status.
func BookingStatusMessage(to, tripTitle, status string) Message {
	return Message{
		Channel: ChannelEmail,
		To:      to,
		Subject: "Your Mlaku booking is " + status,
		Body:    fmt.Sprintf("Your booking for %q is now %s.", tripTitle, status),
	}
}
