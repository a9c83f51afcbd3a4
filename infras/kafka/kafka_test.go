package kafka_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/config"
	"mlaku/infras/kafka"
	"mlaku/infras/otel/mocks"
)

func TestToKafkaMessage(t *testing.T) {
	msg := kafka.Message{
		Key:   "booking-1",
		Event: "booking.created",
		Value: map[string]string{"status": "pending"},
	}

	out, err := msg.ToKafkaMessage("mlaku.booking")
	require.NoError(t, err)

	assert.Equal(t, "mlaku.booking", out.Topic)
	assert.Equal(t, []byte("booking-1"), out.Key)
	assert.JSONEq(t, `{"status":"pending"}`, string(out.Value))
	require.Len(t, out.Headers, 1)
	assert.Equal(t, "event", out.Headers[0].Key)
	assert.Equal(t, []byte("booking.created"), out.Headers[0].Value)
}

func TestToKafkaMessage_UnencodableValue(t *testing.T) {
	msg := kafka.Message{Key: "k", Value: make(chan int)}

	_, err := msg.ToKafkaMessage("topic")
	assert.Error(t, err)
}

func TestNew_WithoutBrokersIsNoop(t *testing.T) {
	client := kafka.New(&config.Config{}, mocks.NewOtel())

	err := client.SendMessages(context.Background(), "mlaku.user", kafka.Message{Key: "u", Event: "user.registered"})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}
