package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/config"
)

// EventType names a booking lifecycle event on the bus
type EventType string

const (
	BookingCreated   EventType = "booking.created"
	BookingConfirmed EventType = "booking.confirmed"
	BookingCancelled EventType = "booking.cancelled"
	BookingExpired   EventType = "booking.expired"
	PaymentFailed    EventType = "payment.failed"
	RefundRequested  EventType = "refund.requested"
	RefundApproved   EventType = "refund.approved"
	RefundRejected   EventType = "refund.rejected"
	RefundCompleted  EventType = "refund.completed"
)

// BookingEvent is published for downstream consumers (notifications, analytics)
type BookingEvent struct {
	Type             EventType        `json:"type"`
	BookingID        uuid.UUID        `json:"booking_id"`
	BookingReference string           `json:"booking_reference,omitempty"`
	UserID           uuid.UUID        `json:"user_id"`
	Status           string           `json:"status"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	RefundID         *uuid.UUID       `json:"refund_id,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// Publisher delivers booking events
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are configured
func NewPublisher(cfg config.KafkaConfig, logger *logrus.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, booking events are not published")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}

// KafkaPublisher writes events to a single topic keyed by booking ID,
// so all events for one booking land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, event BookingEvent) error {
	message, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"type":       event.Type,
		"booking_id": event.BookingID,
	}).Debug("Published booking event")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// EncodeEvent builds the Kafka message for event
func EncodeEvent(event BookingEvent) (kafka.Message, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.BookingID.String()),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(ctx context.Context, event BookingEvent) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }
