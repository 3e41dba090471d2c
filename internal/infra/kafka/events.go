package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Email     string           `json:"email,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, email string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Email:     email,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes credentials.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		Email        string         `json:"email"`
		DisplayName  string         `json:"display_name"`
		Role         string         `json:"role"`
		RegisteredAt time.Time      `json:"registered_at"`
		Source       string         `json:"source"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		Email:        event.Email,
		DisplayName:  event.DisplayName,
		Role:         string(event.Role),
		RegisteredAt: event.RegisteredAt.UTC(),
		Source:       event.Source,
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "credentials.account.registered", event.Email, event.RegisteredAt, payload)
}

// PublishPasswordChanged publishes credentials.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		Email     string         `json:"email"`
		ChangedAt time.Time      `json:"changed_at"`
		Flow      string         `json:"flow"`
		Store     string         `json:"store"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		Email:     event.Email,
		ChangedAt: event.ChangedAt.UTC(),
		Flow:      event.Flow,
		Store:     event.Store,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "credentials.password.changed", event.Email, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes credentials.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		RequestID         string         `json:"request_id"`
		RequestedAt       time.Time      `json:"requested_at"`
		Delivery          string         `json:"delivery"`
		MaskedDestination string         `json:"masked_destination,omitempty"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		RequestID:         event.RequestID,
		RequestedAt:       event.RequestedAt.UTC(),
		Delivery:          event.Delivery,
		MaskedDestination: event.MaskedDestination,
		IPAddress:         event.IPAddress,
		ExpiresAt:         event.ExpiresAt.UTC(),
		Metadata:          event.Metadata,
	}

	timestamp := event.RequestedAt
	if timestamp.IsZero() {
		timestamp = event.ExpiresAt
	}

	return p.publish(ctx, event.EventID, "credentials.password.reset_requested", event.Email, timestamp, payload)
}

// PublishOTPIssued publishes credentials.otp.issued events.
func (p *EventPublisher) PublishOTPIssued(ctx context.Context, event domain.OTPIssuedEvent) error {
	payload := struct {
		MaskedDestination string         `json:"masked_destination,omitempty"`
		IssuedAt          time.Time      `json:"issued_at"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		MaskedDestination: event.MaskedDestination,
		IssuedAt:          event.IssuedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "credentials.otp.issued", event.Email, event.IssuedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
