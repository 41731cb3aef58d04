package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wagerbot/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{subject: subject, data: data})
	return nil
}

func (r *recordingPublisher) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

type recordingObserver struct {
	mu      sync.Mutex
	results map[string][]bool
}

func (o *recordingObserver) ObserveEventPublished(eventType string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string][]bool)
	}
	o.results[eventType] = append(o.results[eventType], ok)
}

func TestNATSEventPublisher_Publish(t *testing.T) {
	client := &recordingPublisher{}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper(), nil)
	publisher.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	err := publisher.Publish(context.Background(), events.MatchJoinedEvent{
		MatchID:   7,
		Player1ID: 1,
		Player2ID: 2,
		Stake:     decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	sent := client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ledger.match.joined", sent[0].subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(sent[0].data, &envelope))
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "match_joined", envelope.EventType)
	assert.Equal(t, "wagerbot", envelope.SourceService)
	assert.True(t, envelope.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	var payload events.MatchJoinedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, int64(7), payload.MatchID)
	assert.True(t, payload.Stake.Equal(decimal.NewFromInt(100)))
}

func TestNATSEventPublisher_PublishError(t *testing.T) {
	client := &recordingPublisher{err: errors.New("no responders")}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper(), nil)

	err := publisher.Publish(context.Background(), events.MatchCancelledEvent{MatchID: 1})
	assert.Error(t, err)
}

func TestNATSEventPublisher_AttachForwardsBusEvents(t *testing.T) {
	client := &recordingPublisher{}
	observer := &recordingObserver{}
	bus := events.NewBus()
	NewNATSEventPublisher(client, NewEventSubjectMapper(), observer).Attach(bus)

	bus.Emit(context.Background(), events.AccountCreatedEvent{AccountID: 1, TelegramID: 42})
	bus.Emit(context.Background(), events.DepositSettledEvent{TransactionID: 3, ExternalRef: "pay_1"})
	bus.Wait()

	subjects := make([]string, 0)
	for _, m := range client.messages() {
		subjects = append(subjects, m.subject)
	}
	assert.ElementsMatch(t, []string{"ledger.account.created", "ledger.deposit.settled"}, subjects)
	assert.Equal(t, []bool{true}, observer.results["account_created"])
	assert.Equal(t, []bool{true}, observer.results["deposit_settled"])
}

func TestNATSEventPublisher_HandleSwallowsErrors(t *testing.T) {
	client := &recordingPublisher{err: errors.New("down")}
	observer := &recordingObserver{}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper(), observer)

	assert.NotPanics(t, func() {
		publisher.Handle(context.Background(), events.MatchCreatedEvent{MatchID: 1})
	})
	assert.Equal(t, []bool{false}, observer.results["match_created"])
}

func TestEventSubjectMapper(t *testing.T) {
	mapper := NewEventSubjectMapper()

	all := mapper.GetAllSubjects()
	assert.Len(t, all, len(events.AllEventTypes()))
	for _, subject := range all {
		assert.NotEmpty(t, subject)
	}

	assert.Equal(t, "ledger.balance.changed", mapper.MapEventToSubject(events.BalanceChangeEvent{}))
	assert.Equal(t, "ledger.match.completed", mapper.MapEventToSubject(events.MatchCompletedEvent{}))
}
