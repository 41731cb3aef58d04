package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wagerbot/events"
	"wagerbot/memory"
	"wagerbot/models"
	"wagerbot/service"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: params.ChatID.(int64), text: params.Text})
	return &tgmodels.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func decEq(v int64) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(v)) })
}

func textUpdate(telegramID int64, username, text string) *tgmodels.Update {
	return &tgmodels.Update{
		Message: &tgmodels.Message{
			Text: text,
			Chat: tgmodels.Chat{ID: telegramID},
			From: &tgmodels.User{ID: telegramID, Username: username},
		},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
	}{
		{"/join 12", "join", []string{"12"}},
		{"/Join@WagerBot  12 ", "join", []string{"12"}},
		{"/balance", "balance", []string{}},
		{"/wager 100,50", "wager", []string{"100,50"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args := parseCommand(tt.text)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestParseArguments(t *testing.T) {
	amount, err := parseAmount([]string{"100,50"}, "/wager <amount>")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("100.5")))

	_, err = parseAmount(nil, "/wager <amount>")
	assert.True(t, isUserError(err))
	_, err = parseAmount([]string{"lots"}, "/wager <amount>")
	assert.True(t, isUserError(err))

	id, err := parseID([]string{"#7"}, "/join <match id>")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	for _, bad := range [][]string{nil, {"x"}, {"0"}, {"-3"}} {
		_, err := parseID(bad, "/join <match id>")
		assert.True(t, isUserError(err), "%v", bad)
	}
}

func TestHandleUpdate_ErrorsBecomeMessages(t *testing.T) {
	ctx := context.Background()
	caller := &models.Account{ID: 1, TelegramID: 100, Username: "alice", Balance: decimal.NewFromInt(10)}

	tests := []struct {
		name     string
		text     string
		setup    func(accounts *service.MockAccountService, matches *service.MockMatchService)
		contains string
	}{
		{
			name:     "missing argument",
			text:     "/join",
			contains: "Usage: /join <match id>",
		},
		{
			name: "insufficient funds",
			text: "/join 5",
			setup: func(_ *service.MockAccountService, matches *service.MockMatchService) {
				matches.On("JoinMatch", mock.Anything, int64(5), int64(1)).
					Return(nil, fmt.Errorf("join: %w", service.ErrInsufficientFunds))
			},
			contains: "Insufficient funds",
		},
		{
			name: "self join",
			text: "/join 5",
			setup: func(_ *service.MockAccountService, matches *service.MockMatchService) {
				matches.On("JoinMatch", mock.Anything, int64(5), int64(1)).Return(nil, service.ErrSelfJoin)
			},
			contains: "your own match",
		},
		{
			name: "claim on finished match",
			text: "/win 5",
			setup: func(_ *service.MockAccountService, matches *service.MockMatchService) {
				matches.On("DeclareWinner", mock.Anything, int64(5), int64(1)).Return(nil, service.ErrInvalidState)
			},
			contains: "no longer",
		},
		{
			name: "cancel someone else's match",
			text: "/cancel 5",
			setup: func(_ *service.MockAccountService, matches *service.MockMatchService) {
				matches.On("CancelMatch", mock.Anything, int64(5), int64(1)).Return(nil, service.ErrNotOwner)
			},
			contains: "creator",
		},
		{
			name: "contention",
			text: "/payout 5",
			setup: func(accounts *service.MockAccountService, _ *service.MockMatchService) {
				accounts.On("Payout", mock.Anything, int64(1), decEq(5)).
					Return(decimal.Zero, service.ErrContentionTimeout)
			},
			contains: "send the command again",
		},
		{
			name:     "deposits disabled",
			text:     "/deposit 50",
			contains: "not available",
		},
		{
			name:     "unknown command shows help",
			text:     "/roulette",
			contains: "Commands:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(service.MockAccountService)
			matches := new(service.MockMatchService)
			accounts.On("GetOrCreateAccount", mock.Anything, int64(100), "alice").Return(caller, nil).Maybe()
			if tt.setup != nil {
				tt.setup(accounts, matches)
			}
			sender := &fakeSender{}
			b := newBot(Config{}, accounts, matches, nil, sender)

			b.handleUpdate(ctx, textUpdate(100, "alice", tt.text))

			msg := sender.last(t)
			assert.Equal(t, int64(100), msg.chatID)
			assert.Contains(t, msg.text, tt.contains)
			accounts.AssertExpectations(t)
			matches.AssertExpectations(t)
		})
	}
}

func TestHandleUpdate_IgnoresNonCommands(t *testing.T) {
	sender := &fakeSender{}
	b := newBot(Config{}, new(service.MockAccountService), new(service.MockMatchService), nil, sender)

	b.handleUpdate(context.Background(), textUpdate(1, "a", "hello"))
	b.handleUpdate(context.Background(), &tgmodels.Update{})

	assert.Empty(t, sender.sent)
}

func TestHandleDeposit_ReturnsConfirmationURL(t *testing.T) {
	ctx := context.Background()
	caller := &models.Account{ID: 1, TelegramID: 100, Username: "alice"}
	accounts := new(service.MockAccountService)
	accounts.On("GetOrCreateAccount", mock.Anything, int64(100), "alice").Return(caller, nil)

	ref := "pay_1"
	payments := new(service.MockPaymentService)
	payments.On("InitiateDeposit", mock.Anything, int64(1), decEq(50)).Return(&models.DepositIntent{
		Transaction:     &models.LedgerTransaction{ID: 3, ExternalRef: &ref, Status: models.TransactionStatusPending},
		ConfirmationURL: "https://yoomoney.example/checkout/pay_1",
	}, nil)

	sender := &fakeSender{}
	b := newBot(Config{PaymentsOn: true}, accounts, new(service.MockMatchService), payments, sender)
	b.handleUpdate(ctx, textUpdate(100, "alice", "/deposit 50"))

	msg := sender.last(t)
	assert.Contains(t, msg.text, "50.00 RUB")
	assert.Contains(t, msg.text, "https://yoomoney.example/checkout/pay_1")
	payments.AssertExpectations(t)
}

// The full match lifecycle driven through chat commands over the in-memory ledger
func TestCommands_MatchLifecycle(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	factory := memory.NewUnitOfWorkFactory(memory.NewStore(time.Second), bus)
	accounts := service.NewAccountService(factory, nil)
	matches := service.NewMatchService(factory, nil)

	sender := &fakeSender{}
	NewNotifier(sender).Attach(bus)
	b := newBot(Config{}, accounts, matches, nil, sender)

	const alice, bob = int64(100), int64(200)
	b.handleUpdate(ctx, textUpdate(alice, "alice", "/start"))
	b.handleUpdate(ctx, textUpdate(bob, "bob", "/start"))
	bus.Wait()

	aliceAcct, err := accounts.GetOrCreateAccount(ctx, alice, "alice")
	require.NoError(t, err)
	bobAcct, err := accounts.GetOrCreateAccount(ctx, bob, "bob")
	require.NoError(t, err)
	_, err = accounts.AdjustBalance(ctx, aliceAcct.ID, decimal.NewFromInt(500), models.TransactionKindDeposit)
	require.NoError(t, err)
	_, err = accounts.AdjustBalance(ctx, bobAcct.ID, decimal.NewFromInt(200), models.TransactionKindDeposit)
	require.NoError(t, err)

	b.handleUpdate(ctx, textUpdate(alice, "alice", "/wager 100"))
	assert.Contains(t, sender.last(t).text, "Match #1 created")

	b.handleUpdate(ctx, textUpdate(bob, "bob", "/matches"))
	assert.Contains(t, sender.last(t).text, "#1 - stake 100.00 RUB")

	b.handleUpdate(ctx, textUpdate(bob, "bob", "/join 1"))
	assert.Contains(t, sender.last(t).text, "your balance: 100.00 RUB")
	bus.Wait()
	assert.Contains(t, sender.to(alice)[len(sender.to(alice))-1], "bob joined your match #1")

	b.handleUpdate(ctx, textUpdate(alice, "alice", "/win 1"))
	assert.Contains(t, sender.last(t).text, "600.00 RUB")
	bus.Wait()
	assert.Contains(t, sender.to(bob)[len(sender.to(bob))-1], "alice claimed the win of match #1")

	b.handleUpdate(ctx, textUpdate(bob, "bob", "/win 1"))
	assert.Contains(t, sender.last(t).text, "no longer")

	b.handleUpdate(ctx, textUpdate(bob, "bob", "/balance"))
	assert.Equal(t, "Your balance: 100.00 RUB", sender.last(t).text)

	b.handleUpdate(ctx, textUpdate(bob, "bob", "/history"))
	history := sender.last(t).text
	assert.Contains(t, history, "stake -100.00 RUB (match #1)")
	assert.Contains(t, history, "deposit +200.00 RUB")

	b.handleUpdate(ctx, textUpdate(alice, "alice", "/payout 1000"))
	assert.Contains(t, sender.last(t).text, "Insufficient funds")
}
