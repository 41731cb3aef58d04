// Package ledgertest holds the ledger behaviour suite shared by every store
// implementation. Stores run it from their own tests with a fresh factory per case.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"wagerbot/events"
	"wagerbot/models"
	"wagerbot/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FactoryFunc returns a unit of work factory over an empty store
type FactoryFunc func(t *testing.T, bus *events.Bus) service.UnitOfWorkFactory

type harness struct {
	t        *testing.T
	ctx      context.Context
	bus      *events.Bus
	factory  service.UnitOfWorkFactory
	accounts service.AccountService
	matches  service.MatchService
	payments service.PaymentService
	ids      []int64
	nextTg   int64
}

func newHarness(t *testing.T, newFactory FactoryFunc) *harness {
	bus := events.NewBus()
	factory := newFactory(t, bus)
	return &harness{
		t:        t,
		ctx:      context.Background(),
		bus:      bus,
		factory:  factory,
		accounts: service.NewAccountService(factory, nil),
		matches:  service.NewMatchService(factory, nil),
		payments: service.NewPaymentService(factory, nil, nil),
		nextTg:   7000,
	}
}

// fund opens an account holding balance
func (h *harness) fund(balance string) int64 {
	h.t.Helper()
	h.nextTg++
	acct, err := h.accounts.GetOrCreateAccount(h.ctx, h.nextTg, fmt.Sprintf("user%d", h.nextTg))
	require.NoError(h.t, err)
	h.ids = append(h.ids, acct.ID)

	amount := decimal.RequireFromString(balance)
	if amount.IsPositive() {
		_, err = h.accounts.AdjustBalance(h.ctx, acct.ID, amount, models.TransactionKindDeposit)
		require.NoError(h.t, err)
	}
	return acct.ID
}

func (h *harness) balance(accountID int64) string {
	h.t.Helper()
	b, err := h.accounts.GetBalance(h.ctx, accountID)
	require.NoError(h.t, err)
	return b.StringFixed(2)
}

// assertLedgerConsistent checks balance == sum(completed transactions) for every account
func (h *harness) assertLedgerConsistent() {
	h.t.Helper()
	for _, id := range h.ids {
		audit, err := h.accounts.VerifyBalance(h.ctx, id)
		require.NoError(h.t, err)
		assert.True(h.t, audit.Consistent(), "account %d drifted by %s", id, audit.Drift())
		assert.False(h.t, audit.Balance.IsNegative(), "account %d is negative", id)
	}
}

// stubGateway reports fixed payment states
type stubGateway struct {
	mu       sync.Mutex
	payments map[string]*models.PaymentSession
}

func (g *stubGateway) set(id, status, amount string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = &models.PaymentSession{ID: id, Status: status, Amount: dec(amount)}
}

func (g *stubGateway) CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentSession, error) {
	return nil, fmt.Errorf("not supported")
}

func (g *stubGateway) GetPayment(ctx context.Context, paymentID string) (*models.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %q: %w", paymentID, service.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Run executes the shared ledger behaviour suite
func Run(t *testing.T, newFactory FactoryFunc) {
	t.Run("match lifecycle worked example", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("500")
		b := h.fund("200")

		match, err := h.matches.CreateMatch(h.ctx, a, dec("100"))
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusPending, match.Status)
		assert.Equal(t, "500.00", h.balance(a), "creating a match debits nothing")

		joined, err := h.matches.JoinMatch(h.ctx, match.ID, b)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusActive, joined.Match.Status)
		assert.Equal(t, "400.00", h.balance(a))
		assert.Equal(t, "100.00", h.balance(b))

		result, err := h.matches.DeclareWinner(h.ctx, match.ID, b)
		require.NoError(t, err)
		assert.Equal(t, b, result.WinnerID)
		assert.Equal(t, "300.00", h.balance(b))
		assert.Equal(t, "400.00", h.balance(a))

		_, err = h.matches.DeclareWinner(h.ctx, match.ID, b)
		assert.ErrorIs(t, err, service.ErrInvalidState)
		_, err = h.matches.DeclareWinner(h.ctx, match.ID, a)
		assert.ErrorIs(t, err, service.ErrInvalidState)
		assert.Equal(t, "300.00", h.balance(b))

		stored, err := h.matches.GetMatch(h.ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusCompleted, stored.Status)
		require.NotNil(t, stored.WinnerID)
		assert.Equal(t, b, *stored.WinnerID)

		txs, err := h.accounts.ListTransactions(h.ctx, b, 10)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, models.TransactionKindWagerCredit, txs[0].Kind)
		assert.Equal(t, models.TransactionKindWagerDebit, txs[1].Kind)

		h.assertLedgerConsistent()
	})

	t.Run("joiner without funds", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("500")
		b := h.fund("10")

		match, err := h.matches.CreateMatch(h.ctx, a, dec("100"))
		require.NoError(t, err)

		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		assert.ErrorIs(t, err, service.ErrInsufficientFunds)

		assert.Equal(t, "500.00", h.balance(a))
		assert.Equal(t, "10.00", h.balance(b))
		stored, err := h.matches.GetMatch(h.ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusPending, stored.Status)
		assert.Nil(t, stored.Player2ID)
		h.assertLedgerConsistent()
	})

	t.Run("join and cancel rejections", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("100")
		b := h.fund("100")

		_, err := h.matches.JoinMatch(h.ctx, 999999, b)
		assert.ErrorIs(t, err, service.ErrNotFound)

		match, err := h.matches.CreateMatch(h.ctx, a, dec("50"))
		require.NoError(t, err)

		_, err = h.matches.JoinMatch(h.ctx, match.ID, a)
		assert.ErrorIs(t, err, service.ErrSelfJoin)

		_, err = h.matches.DeclareWinner(h.ctx, match.ID, a)
		assert.ErrorIs(t, err, service.ErrInvalidState)

		_, err = h.matches.CancelMatch(h.ctx, match.ID, b)
		assert.ErrorIs(t, err, service.ErrNotOwner)

		cancelled, err := h.matches.CancelMatch(h.ctx, match.ID, a)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusCancelled, cancelled.Status)

		_, err = h.matches.CancelMatch(h.ctx, match.ID, a)
		assert.ErrorIs(t, err, service.ErrInvalidState)
		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		assert.ErrorIs(t, err, service.ErrInvalidState)

		assert.Equal(t, "100.00", h.balance(a))
		assert.Equal(t, "100.00", h.balance(b))
		h.assertLedgerConsistent()
	})

	t.Run("outsider cannot claim a win", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("100")
		b := h.fund("100")
		c := h.fund("100")

		match, err := h.matches.CreateMatch(h.ctx, a, dec("25"))
		require.NoError(t, err)
		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		require.NoError(t, err)

		_, err = h.matches.DeclareWinner(h.ctx, match.ID, c)
		assert.ErrorIs(t, err, service.ErrNotAParticipant)
		_, err = h.matches.CancelMatch(h.ctx, match.ID, a)
		assert.ErrorIs(t, err, service.ErrInvalidState)
		h.assertLedgerConsistent()
	})

	t.Run("deposit settlement is idempotent", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("0")

		_, err := h.payments.RecordPendingDeposit(h.ctx, a, dec("50"), "pay_1")
		require.NoError(t, err)
		assert.Equal(t, "0.00", h.balance(a))

		_, err = h.payments.RecordPendingDeposit(h.ctx, a, dec("50"), "pay_1")
		assert.ErrorIs(t, err, service.ErrDuplicateReference)

		first, err := h.payments.SettleDeposit(h.ctx, "pay_1", models.DepositOutcomeSucceeded)
		require.NoError(t, err)
		assert.False(t, first.AlreadySettled)
		assert.Equal(t, "50.00", h.balance(a))

		second, err := h.payments.SettleDeposit(h.ctx, "pay_1", models.DepositOutcomeSucceeded)
		require.NoError(t, err)
		assert.True(t, second.AlreadySettled)

		late, err := h.payments.SettleDeposit(h.ctx, "pay_1", models.DepositOutcomeCancelled)
		require.NoError(t, err)
		assert.True(t, late.AlreadySettled)
		assert.Equal(t, models.TransactionStatusCompleted, late.Transaction.Status)
		assert.Equal(t, "50.00", h.balance(a))

		_, err = h.payments.SettleDeposit(h.ctx, "pay_unknown", models.DepositOutcomeSucceeded)
		assert.ErrorIs(t, err, service.ErrNotFound)

		_, err = h.payments.RecordPendingDeposit(h.ctx, 999999, dec("5"), "pay_2")
		assert.ErrorIs(t, err, service.ErrNotFound)

		h.assertLedgerConsistent()
	})

	t.Run("cancelled deposit never credits", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("0")

		_, err := h.payments.RecordPendingDeposit(h.ctx, a, dec("75"), "pay_c")
		require.NoError(t, err)

		result, err := h.payments.SettleDeposit(h.ctx, "pay_c", models.DepositOutcomeCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, result.Transaction.Status)

		again, err := h.payments.SettleDeposit(h.ctx, "pay_c", models.DepositOutcomeSucceeded)
		require.NoError(t, err)
		assert.True(t, again.AlreadySettled)
		assert.Equal(t, "0.00", h.balance(a))
		h.assertLedgerConsistent()
	})

	t.Run("deposits settle only on the gateway's word", func(t *testing.T) {
		h := newHarness(t, newFactory)
		gateway := &stubGateway{payments: map[string]*models.PaymentSession{}}
		payments := service.NewPaymentService(h.factory, gateway, nil)
		a := h.fund("0")

		_, err := payments.RecordPendingDeposit(h.ctx, a, dec("50"), "pay_g")
		require.NoError(t, err)

		// A notification arrives while the payment is still open
		gateway.set("pay_g", "pending", "50.00")
		_, err = payments.ConfirmDeposit(h.ctx, "pay_g")
		assert.ErrorIs(t, err, service.ErrInvalidState)
		assert.Equal(t, "0.00", h.balance(a))

		// The gateway collected less than was deposited
		gateway.set("pay_g", models.PaymentStatusSucceeded, "5.00")
		_, err = payments.ConfirmDeposit(h.ctx, "pay_g")
		assert.ErrorIs(t, err, service.ErrInvalidOutcome)
		assert.Equal(t, "0.00", h.balance(a))

		gateway.set("pay_g", models.PaymentStatusSucceeded, "50.00")
		result, err := payments.ConfirmDeposit(h.ctx, "pay_g")
		require.NoError(t, err)
		assert.False(t, result.AlreadySettled)
		assert.Equal(t, "50.00", h.balance(a))

		again, err := payments.ConfirmDeposit(h.ctx, "pay_g")
		require.NoError(t, err)
		assert.True(t, again.AlreadySettled)
		assert.Equal(t, "50.00", h.balance(a))

		_, err = payments.ConfirmDeposit(h.ctx, "pay_unknown")
		assert.ErrorIs(t, err, service.ErrNotFound)
		h.assertLedgerConsistent()
	})

	t.Run("payout cannot overdraw", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("30")

		_, err := h.accounts.Payout(h.ctx, a, dec("30.01"))
		assert.ErrorIs(t, err, service.ErrInsufficientFunds)

		balance, err := h.accounts.Payout(h.ctx, a, dec("30"))
		require.NoError(t, err)
		assert.True(t, balance.IsZero())

		_, err = h.accounts.AdjustBalance(h.ctx, a, decimal.Zero, models.TransactionKindDeposit)
		assert.ErrorIs(t, err, service.ErrInvalidAmount)
		h.assertLedgerConsistent()
	})

	t.Run("oversized amounts are rejected without side effects", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("100")
		b := h.fund("100")
		over := service.MaxAmount.Add(dec("0.01"))
		huge := dec("99999999999999999999")

		for _, amount := range []decimal.Decimal{over, huge} {
			_, err := h.matches.CreateMatch(h.ctx, a, amount)
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
			_, err = h.accounts.AdjustBalance(h.ctx, a, amount, models.TransactionKindDeposit)
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
			_, err = h.accounts.AdjustBalance(h.ctx, a, amount.Neg(), models.TransactionKindPayout)
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
			_, err = h.accounts.Payout(h.ctx, a, amount)
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
			_, err = h.payments.RecordPendingDeposit(h.ctx, a, amount, "pay_oversized")
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
		}

		assert.Equal(t, "100.00", h.balance(a))
		open, err := h.matches.ListOpenMatches(h.ctx, 50)
		require.NoError(t, err)
		assert.Empty(t, open)
		txs, err := h.accounts.ListTransactions(h.ctx, a, 10)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
		_, err = h.payments.SettleDeposit(h.ctx, "pay_oversized", models.DepositOutcomeSucceeded)
		assert.ErrorIs(t, err, service.ErrNotFound)

		// A match at the largest allowed stake still pays out
		_, err = h.accounts.AdjustBalance(h.ctx, a, service.MaxAmount, models.TransactionKindDeposit)
		require.NoError(t, err)
		_, err = h.accounts.AdjustBalance(h.ctx, b, service.MaxAmount, models.TransactionKindDeposit)
		require.NoError(t, err)
		match, err := h.matches.CreateMatch(h.ctx, a, service.MaxAmount)
		require.NoError(t, err)
		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		require.NoError(t, err)
		result, err := h.matches.DeclareWinner(h.ctx, match.ID, a)
		require.NoError(t, err)
		assert.True(t, result.AmountWon.Equal(service.MaxAmount.Mul(decimal.NewFromInt(2))))
		assert.Equal(t, service.MaxAmount.Mul(decimal.NewFromInt(2)).Add(dec("100")).StringFixed(2), h.balance(a))
		assert.Equal(t, "100.00", h.balance(b))
		h.assertLedgerConsistent()
	})

	t.Run("concurrent first contact creates one account", func(t *testing.T) {
		h := newHarness(t, newFactory)
		const callers = 8

		ids := make([]int64, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acct, err := h.accounts.GetOrCreateAccount(h.ctx, 4242, "racer")
				if assert.NoError(t, err) {
					ids[i] = acct.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("concurrent joins activate once", func(t *testing.T) {
		h := newHarness(t, newFactory)
		creator := h.fund("100")
		const joiners = 6
		joinerIDs := make([]int64, joiners)
		for i := range joinerIDs {
			joinerIDs[i] = h.fund("100")
		}

		match, err := h.matches.CreateMatch(h.ctx, creator, dec("100"))
		require.NoError(t, err)

		var succeeded, invalid int32
		var wg sync.WaitGroup
		for _, id := range joinerIDs {
			wg.Add(1)
			go func(joiner int64) {
				defer wg.Done()
				_, err := h.matches.JoinMatch(h.ctx, match.ID, joiner)
				switch {
				case err == nil:
					atomic.AddInt32(&succeeded, 1)
				case assert.ErrorIs(t, err, service.ErrInvalidState):
					atomic.AddInt32(&invalid, 1)
				}
			}(id)
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded)
		assert.Equal(t, int32(joiners-1), invalid)
		assert.Equal(t, "0.00", h.balance(creator))

		debited := 0
		for _, id := range joinerIDs {
			if h.balance(id) == "0.00" {
				debited++
			}
		}
		assert.Equal(t, 1, debited)
		h.assertLedgerConsistent()
	})

	t.Run("concurrent win claims pay once", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("100")
		b := h.fund("100")

		match, err := h.matches.CreateMatch(h.ctx, a, dec("100"))
		require.NoError(t, err)
		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		require.NoError(t, err)

		var succeeded int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			claimant := a
			if i%2 == 1 {
				claimant = b
			}
			go func(claimant int64) {
				defer wg.Done()
				_, err := h.matches.DeclareWinner(h.ctx, match.ID, claimant)
				if err == nil {
					atomic.AddInt32(&succeeded, 1)
					return
				}
				assert.ErrorIs(t, err, service.ErrInvalidState)
			}(claimant)
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded)
		total := dec(h.balance(a)).Add(dec(h.balance(b)))
		assert.Equal(t, "200.00", total.StringFixed(2), "exactly one pot paid")
		h.assertLedgerConsistent()
	})

	t.Run("concurrent settlements credit once", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("0")

		_, err := h.payments.RecordPendingDeposit(h.ctx, a, dec("50"), "pay_race")
		require.NoError(t, err)

		var fresh int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := h.payments.SettleDeposit(h.ctx, "pay_race", models.DepositOutcomeSucceeded)
				if assert.NoError(t, err) && !result.AlreadySettled {
					atomic.AddInt32(&fresh, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), fresh)
		assert.Equal(t, "50.00", h.balance(a))
		h.assertLedgerConsistent()
	})

	t.Run("concurrent adjustments serialize per account", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("10")

		var debits int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.accounts.AdjustBalance(h.ctx, a, dec("-1"), models.TransactionKindPayout)
				if err == nil {
					atomic.AddInt32(&debits, 1)
					return
				}
				assert.ErrorIs(t, err, service.ErrInsufficientFunds)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(10), debits)
		assert.Equal(t, "0.00", h.balance(a))
		h.assertLedgerConsistent()
	})

	t.Run("crossing joins do not deadlock", func(t *testing.T) {
		h := newHarness(t, newFactory)
		a := h.fund("100")
		b := h.fund("100")

		const rounds = 5
		var wg sync.WaitGroup
		for i := 0; i < rounds; i++ {
			byA, err := h.matches.CreateMatch(h.ctx, a, dec("1"))
			require.NoError(t, err)
			byB, err := h.matches.CreateMatch(h.ctx, b, dec("1"))
			require.NoError(t, err)

			wg.Add(2)
			go func(id int64) {
				defer wg.Done()
				_, err := h.matches.JoinMatch(h.ctx, id, b)
				assert.NoError(t, err)
			}(byA.ID)
			go func(id int64) {
				defer wg.Done()
				_, err := h.matches.JoinMatch(h.ctx, id, a)
				assert.NoError(t, err)
			}(byB.ID)
		}
		wg.Wait()

		assert.Equal(t, "90.00", h.balance(a))
		assert.Equal(t, "90.00", h.balance(b))

		open, err := h.matches.ListOpenMatches(h.ctx, 50)
		require.NoError(t, err)
		assert.Empty(t, open)
		h.assertLedgerConsistent()
	})

	t.Run("events flow only after commit", func(t *testing.T) {
		h := newHarness(t, newFactory)

		var mu sync.Mutex
		seen := map[events.EventType]int{}
		h.bus.SubscribeAll(func(ctx context.Context, e events.Event) {
			mu.Lock()
			seen[e.Type()]++
			mu.Unlock()
		})

		a := h.fund("100")
		b := h.fund("5")
		match, err := h.matches.CreateMatch(h.ctx, a, dec("50"))
		require.NoError(t, err)
		_, err = h.matches.JoinMatch(h.ctx, match.ID, b)
		require.ErrorIs(t, err, service.ErrInsufficientFunds)
		h.bus.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, seen[events.EventTypeAccountCreated])
		assert.Equal(t, 1, seen[events.EventTypeMatchCreated])
		assert.Zero(t, seen[events.EventTypeMatchJoined], "rolled back join must not notify")
		assert.Equal(t, 2, seen[events.EventTypeBalanceChange])
	})
}
