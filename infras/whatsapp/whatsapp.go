package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"mlaku/config"
	"mlaku/infras/otel"
	"mlaku/shared/constant"
)

const addressPrefix = "whatsapp:"

var ErrNotConfigured = errors.New("twilio is not configured")

// Client sends WhatsApp messages through the Twilio messaging API.
type Client struct {
	client  *twilio.RestClient
	from    string
	enabled bool
	otel    otel.Otel
}

func New(cfg *config.Config, otl otel.Otel) *Client {
	settings := cfg.Notification.Twilio

	c := &Client{
		enabled: settings.AccountSID != "" && settings.AuthToken != "" && settings.WhatsAppFrom != "",
		from:    Address(settings.WhatsAppFrom),
		otel:    otl,
	}

	if c.enabled {
		c.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: settings.AccountSID,
			Password: settings.AuthToken,
		})
	} else {
		log.Warn().Msg("Twilio is not configured, WhatsApp notifications will be logged only")
	}

	return c
}

// Address formats an E.164 phone number as a WhatsApp address.
func Address(phone string) string {
	if phone == "" || strings.HasPrefix(phone, addressPrefix) {
		return phone
	}

	return addressPrefix + phone
}

func (c *Client) Enabled() bool {
	return c.enabled
}

func (c *Client) SendWhatsApp(ctx context.Context, phone, body string) (err error) {
	_, scope := c.otel.NewScope(ctx, constant.OtelNotifyScopeName, constant.OtelNotifyScopeName+".SendWhatsApp")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if !c.enabled {
		return ErrNotConfigured
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(phone))
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}

	if resp.Sid != nil {
		scope.SetAttribute("message.sid", *resp.Sid)
	}

	return nil
}
