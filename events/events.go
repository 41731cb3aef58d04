package events

import (
	"context"
	"sync"

	"wagerbot/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange  EventType = "balance_change"
	EventTypeAccountCreated EventType = "account_created"
	EventTypeMatchCreated   EventType = "match_created"
	EventTypeMatchJoined    EventType = "match_joined"
	EventTypeMatchCompleted EventType = "match_completed"
	EventTypeMatchCancelled EventType = "match_cancelled"
	EventTypeDepositSettled EventType = "deposit_settled"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	AccountID     int64                  `json:"account_id"`
	TelegramID    int64                  `json:"telegram_id"`
	TransactionID int64                  `json:"transaction_id"`
	OldBalance    decimal.Decimal        `json:"old_balance"`
	NewBalance    decimal.Decimal        `json:"new_balance"`
	ChangeAmount  decimal.Decimal        `json:"change_amount"`
	Kind          models.TransactionKind `json:"kind"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents an account opened on first contact
type AccountCreatedEvent struct {
	AccountID  int64  `json:"account_id"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// MatchCreatedEvent represents a new pending match
type MatchCreatedEvent struct {
	MatchID   int64           `json:"match_id"`
	Player1ID int64           `json:"player1_id"`
	Stake     decimal.Decimal `json:"stake"`
}

func (e MatchCreatedEvent) Type() EventType {
	return EventTypeMatchCreated
}

// MatchJoinedEvent represents a match moving from pending to active
type MatchJoinedEvent struct {
	MatchID           int64           `json:"match_id"`
	Player1ID         int64           `json:"player1_id"`
	Player2ID         int64           `json:"player2_id"`
	Player1TelegramID int64           `json:"player1_telegram_id"`
	Player2TelegramID int64           `json:"player2_telegram_id"`
	Player2Username   string          `json:"player2_username"`
	Stake             decimal.Decimal `json:"stake"`
}

func (e MatchJoinedEvent) Type() EventType {
	return EventTypeMatchJoined
}

// MatchCompletedEvent represents a match won by a self-declared winner
type MatchCompletedEvent struct {
	MatchID          int64           `json:"match_id"`
	WinnerID         int64           `json:"winner_id"`
	LoserID          int64           `json:"loser_id"`
	WinnerTelegramID int64           `json:"winner_telegram_id"`
	LoserTelegramID  int64           `json:"loser_telegram_id"`
	WinnerUsername   string          `json:"winner_username"`
	LoserBalance     decimal.Decimal `json:"loser_balance"`
	AmountWon        decimal.Decimal `json:"amount_won"`
}

func (e MatchCompletedEvent) Type() EventType {
	return EventTypeMatchCompleted
}

// MatchCancelledEvent represents a pending match cancelled by its creator
type MatchCancelledEvent struct {
	MatchID   int64 `json:"match_id"`
	Player1ID int64 `json:"player1_id"`
}

func (e MatchCancelledEvent) Type() EventType {
	return EventTypeMatchCancelled
}

// DepositSettledEvent represents a gateway verdict applied to a pending deposit
type DepositSettledEvent struct {
	TransactionID int64                 `json:"transaction_id"`
	AccountID     int64                 `json:"account_id"`
	TelegramID    int64                 `json:"telegram_id"`
	ExternalRef   string                `json:"external_ref"`
	Amount        decimal.Decimal       `json:"amount"`
	Outcome       models.DepositOutcome `json:"outcome"`
	NewBalance    decimal.Decimal       `json:"new_balance"`
}

func (e DepositSettledEvent) Type() EventType {
	return EventTypeDepositSettled
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking the committing caller
	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// AllEventTypes lists every event type the ledger emits
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeBalanceChange,
		EventTypeAccountCreated,
		EventTypeMatchCreated,
		EventTypeMatchJoined,
		EventTypeMatchCompleted,
		EventTypeMatchCancelled,
		EventTypeDepositSettled,
	}
}

// TransactionalBus holds pending events coupled to a unit of work.
// Events reach the underlying bus only after a successful commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush() {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events to main event bus")

	// Handlers outlive the request, so they get a fresh context
	eventCtx := context.Background()

	if b.real != nil {
		for _, ev := range b.pending {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}

// Pending returns the events queued so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}
