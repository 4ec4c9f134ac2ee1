package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyroute/booking-core/internal/config"
)

func TestEncodeEvent(t *testing.T) {
	bookingID := uuid.New()
	amount := decimal.RequireFromString("230.00")
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	msg, err := EncodeEvent(BookingEvent{
		Type:             BookingConfirmed,
		BookingID:        bookingID,
		BookingReference: "ABC123XYZ",
		Status:           "confirmed",
		Amount:           &amount,
		OccurredAt:       at,
	})
	require.NoError(t, err)

	assert.Equal(t, bookingID.String(), string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "booking.confirmed", string(msg.Headers[0].Value))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "booking.confirmed", decoded["type"])
	assert.Equal(t, "ABC123XYZ", decoded["booking_reference"])
	assert.Equal(t, "230", decoded["amount"])
	assert.NotContains(t, decoded, "refund_id")
}

func TestEncodeEventStampsTime(t *testing.T) {
	msg, err := EncodeEvent(BookingEvent{Type: BookingCreated, BookingID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, msg.Time.IsZero())
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	p := NewPublisher(config.KafkaConfig{Topic: "booking-events"}, logger)
	_, ok := p.(NopPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), BookingEvent{Type: BookingCreated}))
	assert.NoError(t, p.Close())
}

func TestNewPublisherWithBrokers(t *testing.T) {
	logger := logrus.New()
	p := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "booking-events"}, logger)
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "booking-events", kp.writer.Topic)
	assert.NoError(t, kp.Close())
}
