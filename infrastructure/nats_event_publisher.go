package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wagerbot/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MessagePublisher sends raw bytes to a subject
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublishObserver is told about every publish attempt
type PublishObserver interface {
	ObserveEventPublished(eventType string, ok bool)
}

// EventEnvelope wraps every event written to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventPublisher forwards committed domain events to NATS
type NATSEventPublisher struct {
	client        MessagePublisher
	subjectMapper *EventSubjectMapper
	observer      PublishObserver
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS event publisher; observer may be nil
func NewNATSEventPublisher(client MessagePublisher, subjectMapper *EventSubjectMapper, observer PublishObserver) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		observer:      observer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Attach subscribes the publisher to every event type on bus
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(p.Handle)
}

// Handle is an events.Handler; publish failures are logged, never propagated
func (p *NATSEventPublisher) Handle(ctx context.Context, event events.Event) {
	err := p.Publish(ctx, event)
	if p.observer != nil {
		p.observer.ObserveEventPublished(string(event.Type()), err == nil)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Publish publishes an event to NATS using the appropriate subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     string(event.Type()),
		Timestamp:     p.now(),
		SourceService: "wagerbot",
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.client.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}
