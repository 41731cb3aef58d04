package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"wagerbot/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventDelivery tests the flow from TransactionalBus to the main Bus after commit
func TestEventDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan BalanceChangeEvent, 1)
	mainBus.Subscribe(EventTypeBalanceChange, func(ctx context.Context, event Event) {
		balanceEvent, ok := event.(BalanceChangeEvent)
		if !ok {
			t.Errorf("Expected BalanceChangeEvent, got %T", event)
			return
		}
		eventReceived <- balanceEvent
	})

	testEvent := BalanceChangeEvent{
		AccountID:     7,
		TelegramID:    123456,
		TransactionID: 42,
		OldBalance:    decimal.NewFromInt(1000),
		NewBalance:    decimal.NewFromInt(1500),
		ChangeAmount:  decimal.NewFromInt(500),
		Kind:          models.TransactionKindWagerCredit,
	}

	transactionalBus.Publish(testEvent)
	assert.Len(t, transactionalBus.Pending(), 1)

	// Nothing reaches subscribers before the commit
	select {
	case <-eventReceived:
		t.Fatal("Event delivered before flush")
	case <-time.After(50 * time.Millisecond):
	}

	transactionalBus.Flush()
	mainBus.Wait()
	assert.Empty(t, transactionalBus.Pending())

	select {
	case received := <-eventReceived:
		assert.Equal(t, testEvent.AccountID, received.AccountID)
		assert.Equal(t, testEvent.TransactionID, received.TransactionID)
		assert.True(t, testEvent.NewBalance.Equal(received.NewBalance))
		assert.Equal(t, models.TransactionKindWagerCredit, received.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not received within timeout")
	}
}

// TestMultipleEventsDelivery tests delivering several event types from one unit of work
func TestMultipleEventsDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var mu sync.Mutex
	var received []EventType
	mainBus.SubscribeAll(func(ctx context.Context, event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event.Type())
	})

	transactionalBus.Publish(BalanceChangeEvent{AccountID: 1, Kind: models.TransactionKindWagerDebit})
	transactionalBus.Publish(BalanceChangeEvent{AccountID: 2, Kind: models.TransactionKindWagerDebit})
	transactionalBus.Publish(MatchJoinedEvent{MatchID: 3, Player1ID: 1, Player2ID: 2})

	transactionalBus.Flush()
	mainBus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []EventType{EventTypeBalanceChange, EventTypeBalanceChange, EventTypeMatchJoined}, received)
}

// TestTransactionalBusDiscard tests that events from a rolled back unit of work are dropped
func TestTransactionalBusDiscard(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan bool, 1)
	mainBus.Subscribe(EventTypeMatchCreated, func(ctx context.Context, event Event) {
		eventReceived <- true
	})

	transactionalBus.Publish(MatchCreatedEvent{MatchID: 1, Player1ID: 1, Stake: decimal.NewFromInt(10)})
	transactionalBus.Discard()
	transactionalBus.Flush()
	mainBus.Wait()

	select {
	case <-eventReceived:
		t.Fatal("Event was received despite being discarded")
	default:
	}
}

func TestBus_RecoversFromPanickingHandler(t *testing.T) {
	bus := NewBus()

	var delivered bool
	bus.Subscribe(EventTypeAccountCreated, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeAccountCreated, func(ctx context.Context, event Event) {
		delivered = true
	})

	require.NotPanics(t, func() {
		bus.Emit(context.Background(), AccountCreatedEvent{AccountID: 1, TelegramID: 2, Username: "carol"})
		bus.Wait()
	})
	assert.True(t, delivered)
}

func TestAllEventTypes_Unique(t *testing.T) {
	seen := make(map[EventType]bool)
	for _, et := range AllEventTypes() {
		assert.False(t, seen[et], "duplicate %s", et)
		seen[et] = true
	}
	assert.Len(t, seen, 7)
}
