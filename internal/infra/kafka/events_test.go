package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "credentials",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "credential-service",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func TestPublishPasswordResetRequested(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	requestedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	event := domain.PasswordResetRequestedEvent{
		EventID:           "event-123",
		RequestID:         "request-456",
		Email:             "carol@example.com",
		MaskedDestination: "car***@example.com",
		RequestedAt:       requestedAt,
		ExpiresAt:         requestedAt.Add(30 * time.Minute),
		Delivery:          "email_link",
		Metadata:          map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishPasswordResetRequested(context.Background(), event); err != nil {
		t.Fatalf("PublishPasswordResetRequested returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "credentials.password.reset_requested" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "credentials.password.reset_requested" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		if got := envelope["email"]; got != event.Email {
			t.Fatalf("unexpected email: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != requestedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["request_id"]; got != event.RequestID {
			t.Fatalf("unexpected request_id: %v", got)
		}
		if got := payload["delivery"]; got != event.Delivery {
			t.Fatalf("unexpected delivery: %v", got)
		}
		if got := payload["masked_destination"]; got != event.MaskedDestination {
			t.Fatalf("unexpected masked_destination: %v", got)
		}

		metadata, ok := payload["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("metadata not a map: %T", payload["metadata"])
		}
		if metadata["source"] != "unit-test" {
			t.Fatalf("metadata did not round-trip: %v", metadata)
		}

		envelopeMetadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}
		if envelopeMetadata["service"] != "credential-service" {
			t.Fatalf("unexpected metadata service: %v", envelopeMetadata["service"])
		}
		if envelopeMetadata["environment"] != "test" {
			t.Fatalf("unexpected metadata environment: %v", envelopeMetadata["environment"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishOTPIssued(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	issuedAt := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	event := domain.OTPIssuedEvent{
		EventID:           "evt-001",
		Email:             "carol@example.com",
		MaskedDestination: "car***@example.com",
		IssuedAt:          issuedAt,
		ExpiresAt:         issuedAt.Add(10 * time.Minute),
	}

	if err := publisher.PublishOTPIssued(context.Background(), event); err != nil {
		t.Fatalf("PublishOTPIssued returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "credentials.otp.issued" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "credentials.otp.issued" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		expiresAt, ok := payload["expires_at"].(string)
		if !ok {
			t.Fatalf("expires_at not a string: %T", payload["expires_at"])
		}
		if expiresAt != event.ExpiresAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected expires_at: %s", expiresAt)
		}

		if got := payload["masked_destination"]; got != event.MaskedDestination {
			t.Fatalf("unexpected masked_destination: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishAccountRegistered(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	registeredAt := time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	event := domain.AccountRegisteredEvent{
		EventID:      "evt-002",
		Email:        "alice@example.com",
		DisplayName:  "alice",
		Role:         domain.RoleUser,
		RegisteredAt: registeredAt,
		Source:       "local",
	}

	if err := publisher.PublishAccountRegistered(context.Background(), event); err != nil {
		t.Fatalf("PublishAccountRegistered returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "credentials.account.registered" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["role"]; got != "user" {
			t.Fatalf("unexpected role: %v", got)
		}
		if got := payload["source"]; got != "local" {
			t.Fatalf("unexpected source: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}
