package bot

import (
	"context"
	"fmt"

	"wagerbot/bot/common"
	"wagerbot/events"
	"wagerbot/models"

	tgbot "github.com/go-telegram/bot"
	log "github.com/sirupsen/logrus"
)

// Notifier tells the other party about committed ledger changes
type Notifier struct {
	sender messageSender
}

// NewNotifier creates a notifier writing through sender
func NewNotifier(sender messageSender) *Notifier {
	return &Notifier{sender: sender}
}

// Attach subscribes the notifier to the events it reports on
func (n *Notifier) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventTypeMatchJoined, n.onMatchJoined)
	bus.Subscribe(events.EventTypeMatchCompleted, n.onMatchCompleted)
	bus.Subscribe(events.EventTypeDepositSettled, n.onDepositSettled)
}

func (n *Notifier) onMatchJoined(ctx context.Context, event events.Event) {
	e, ok := event.(events.MatchJoinedEvent)
	if !ok {
		return
	}
	n.send(ctx, e.Player1TelegramID, fmt.Sprintf("%s joined your match #%d. %s was debited from both of you. The winner claims with /win %d.",
		e.Player2Username, e.MatchID, common.FormatAmount(e.Stake), e.MatchID))
}

func (n *Notifier) onMatchCompleted(ctx context.Context, event events.Event) {
	e, ok := event.(events.MatchCompletedEvent)
	if !ok {
		return
	}
	n.send(ctx, e.LoserTelegramID, fmt.Sprintf("%s claimed the win of match #%d and received %s. Your balance: %s.",
		e.WinnerUsername, e.MatchID, common.FormatAmount(e.AmountWon), common.FormatAmount(e.LoserBalance)))
}

func (n *Notifier) onDepositSettled(ctx context.Context, event events.Event) {
	e, ok := event.(events.DepositSettledEvent)
	if !ok {
		return
	}
	switch e.Outcome {
	case models.DepositOutcomeSucceeded:
		n.send(ctx, e.TelegramID, fmt.Sprintf("✅ Deposit of %s received. Your balance: %s.",
			common.FormatAmount(e.Amount), common.FormatAmount(e.NewBalance)))
	case models.DepositOutcomeCancelled:
		n.send(ctx, e.TelegramID, fmt.Sprintf("Deposit of %s was cancelled. Your balance is unchanged.",
			common.FormatAmount(e.Amount)))
	}
}

func (n *Notifier) send(ctx context.Context, telegramID int64, text string) {
	if _, err := n.sender.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: telegramID, Text: text}); err != nil {
		log.WithFields(log.Fields{
			"telegramId": telegramID,
			"error":      err,
		}).Error("Failed to deliver notification")
	}
}
