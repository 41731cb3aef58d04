package infrastructure

import (
	"fmt"

	"wagerbot/events"
)

// DomainEventStream is the JetStream stream ledger events are written to
const DomainEventStream = "wagerbot_events"

var subjects = map[events.EventType]string{
	events.EventTypeBalanceChange:  "ledger.balance.changed",
	events.EventTypeAccountCreated: "ledger.account.created",
	events.EventTypeMatchCreated:   "ledger.match.created",
	events.EventTypeMatchJoined:    "ledger.match.joined",
	events.EventTypeMatchCompleted: "ledger.match.completed",
	events.EventTypeMatchCancelled: "ledger.match.cancelled",
	events.EventTypeDepositSettled: "ledger.deposit.settled",
}

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjects[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("ledger.unknown.%s", event.Type())
}

// GetAllSubjects returns all subjects this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	out := make([]string, 0, len(subjects))
	for _, eventType := range events.AllEventTypes() {
		out = append(out, subjects[eventType])
	}
	return out
}
