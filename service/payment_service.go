package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type paymentService struct {
	uowFactory UnitOfWorkFactory
	gateway    PaymentGateway
	metrics    Metrics
	now        func() time.Time
	newKey     func() string
}

// NewPaymentService creates a new payment service. gateway may be nil when
// deposits are only recorded and settled, never initiated.
func NewPaymentService(uowFactory UnitOfWorkFactory, gateway PaymentGateway, metrics Metrics) PaymentService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &paymentService{
		uowFactory: uowFactory,
		gateway:    gateway,
		metrics:    metrics,
		now:        utcNow,
		newKey:     func() string { return uuid.NewString() },
	}
}

// InitiateDeposit opens a hosted payment and records it as a pending deposit
// keyed by the gateway's payment ID.
func (s *paymentService) InitiateDeposit(ctx context.Context, accountID int64, amount decimal.Decimal) (intent *models.DepositIntent, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "initiate_deposit", start, err) }()

	if err = validatePositiveAmount(amount); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("payment gateway is not configured")
	}

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	uow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	// The gateway call happens outside any unit of work so no lock is held across the network
	session, err := s.gateway.CreatePayment(ctx, &models.PaymentRequest{
		Amount:         amount,
		Description:    fmt.Sprintf("Balance top-up for account %d", accountID),
		IdempotenceKey: s.newKey(),
		Metadata: map[string]string{
			"telegram_user_id": strconv.FormatInt(account.TelegramID, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	tx, err := s.RecordPendingDeposit(ctx, accountID, amount, session.ID)
	if err != nil {
		// The user can still pay; the webhook will find no deposit for this payment
		log.WithFields(log.Fields{
			"accountID": accountID,
			"paymentID": session.ID,
			"amount":    amount.StringFixed(moneyPlaces),
			"error":     err,
		}).Error("Payment created but pending deposit not recorded")
		return nil, err
	}

	log.WithFields(log.Fields{
		"accountID": accountID,
		"paymentID": session.ID,
		"amount":    amount.StringFixed(moneyPlaces),
	}).Info("Deposit initiated")

	return &models.DepositIntent{
		Transaction:     tx,
		ConfirmationURL: session.ConfirmationURL,
	}, nil
}

// RecordPendingDeposit records a pending deposit; the balance moves only on settlement
func (s *paymentService) RecordPendingDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, externalRef string) (tx *models.LedgerTransaction, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "record_pending_deposit", start, err) }()

	if err = validatePositiveAmount(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(externalRef) == "" {
		return nil, fmt.Errorf("external reference is blank: %w", ErrInvalidReference)
	}

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	now := s.now()
	ref := externalRef
	tx = &models.LedgerTransaction{
		AccountID:   accountID,
		Kind:        models.TransactionKindDeposit,
		Amount:      amount,
		Status:      models.TransactionStatusPending,
		ExternalRef: &ref,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = uow.TransactionRepository().Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record deposit %q: %w", externalRef, err)
	}

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID":     accountID,
		"transactionID": tx.ID,
		"externalRef":   externalRef,
		"amount":        amount.StringFixed(moneyPlaces),
	}).Info("Pending deposit recorded")

	return tx, nil
}

// SettleDeposit applies the gateway's verdict to the deposit carrying externalRef.
// The transaction row is locked before its status is read, so duplicate and
// concurrent notifications settle it once; later ones report AlreadySettled.
func (s *paymentService) SettleDeposit(ctx context.Context, externalRef string, outcome models.DepositOutcome) (result *models.SettlementResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "settle_deposit", start, err) }()

	return s.settle(ctx, externalRef, outcome, nil)
}

// ConfirmDeposit asks the gateway for the payment behind externalRef and settles
// the deposit with the reported status. A succeeded payment must carry exactly
// the deposited amount.
func (s *paymentService) ConfirmDeposit(ctx context.Context, externalRef string) (result *models.SettlementResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "confirm_deposit", start, err) }()

	if strings.TrimSpace(externalRef) == "" {
		return nil, fmt.Errorf("external reference is blank: %w", ErrInvalidReference)
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("payment gateway is not configured")
	}

	// Fetched before any lock is taken so no row is held across the network
	payment, err := s.gateway.GetPayment(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %q: %w", externalRef, err)
	}
	outcome, ok := payment.Outcome()
	if !ok {
		return nil, fmt.Errorf("payment %q is %s: %w", externalRef, payment.Status, ErrInvalidState)
	}

	return s.settle(ctx, externalRef, outcome, &payment.Amount)
}

// settle applies outcome to the deposit; paid, when set, is the amount the gateway collected
func (s *paymentService) settle(ctx context.Context, externalRef string, outcome models.DepositOutcome, paid *decimal.Decimal) (result *models.SettlementResult, err error) {
	if strings.TrimSpace(externalRef) == "" {
		return nil, fmt.Errorf("external reference is blank: %w", ErrInvalidReference)
	}
	if outcome != models.DepositOutcomeSucceeded && outcome != models.DepositOutcomeCancelled {
		return nil, fmt.Errorf("outcome %q: %w", outcome, ErrInvalidOutcome)
	}

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	tx, err := uow.TransactionRepository().GetByExternalRefForUpdate(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to lock deposit: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("deposit %q: %w", externalRef, ErrNotFound)
	}

	account, err := uow.AccountRepository().GetByIDForUpdate(ctx, tx.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d of deposit %q is missing", tx.AccountID, externalRef)
	}

	if tx.IsSettled() {
		log.WithFields(log.Fields{
			"externalRef": externalRef,
			"status":      tx.Status,
			"outcome":     outcome,
		}).Warn("Duplicate settlement ignored")
		return &models.SettlementResult{
			Transaction:    tx,
			NewBalance:     account.Balance,
			AlreadySettled: true,
		}, nil
	}
	if tx.Kind != models.TransactionKindDeposit {
		return nil, fmt.Errorf("transaction %q is a %s: %w", externalRef, tx.Kind, ErrInvalidState)
	}
	if paid != nil && outcome == models.DepositOutcomeSucceeded && !paid.Equal(tx.Amount) {
		log.WithFields(log.Fields{
			"externalRef": externalRef,
			"deposited":   tx.Amount.StringFixed(moneyPlaces),
			"paid":        paid.StringFixed(moneyPlaces),
		}).Error("Gateway amount differs from pending deposit")
		return nil, fmt.Errorf("payment %q collected %s, deposit is %s: %w", externalRef, paid, tx.Amount, ErrInvalidOutcome)
	}

	now := s.now()
	newStatus := models.TransactionStatusFailed
	if outcome == models.DepositOutcomeSucceeded {
		newStatus = models.TransactionStatusCompleted
		newBalance := account.Balance.Add(tx.Amount)
		if err = checkBalanceLimit(account.ID, newBalance); err != nil {
			return nil, err
		}
		if err = uow.AccountRepository().UpdateBalance(ctx, account.ID, newBalance, now); err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
		uow.EventBus().Publish(events.BalanceChangeEvent{
			AccountID:     account.ID,
			TelegramID:    account.TelegramID,
			TransactionID: tx.ID,
			OldBalance:    account.Balance,
			NewBalance:    newBalance,
			ChangeAmount:  tx.Amount,
			Kind:          tx.Kind,
		})
		account.Balance = newBalance
		account.UpdatedAt = now
	}

	if err = uow.TransactionRepository().UpdateStatus(ctx, tx.ID, newStatus, now); err != nil {
		return nil, fmt.Errorf("failed to update deposit status: %w", err)
	}
	tx.Status = newStatus
	tx.UpdatedAt = now

	uow.EventBus().Publish(events.DepositSettledEvent{
		TransactionID: tx.ID,
		AccountID:     account.ID,
		TelegramID:    account.TelegramID,
		ExternalRef:   externalRef,
		Amount:        tx.Amount,
		Outcome:       outcome,
		NewBalance:    account.Balance,
	})

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"externalRef":   externalRef,
		"transactionID": tx.ID,
		"accountID":     account.ID,
		"outcome":       outcome,
		"newBalance":    account.Balance.StringFixed(moneyPlaces),
	}).Info("Deposit settled")

	return &models.SettlementResult{
		Transaction: tx,
		NewBalance:  account.Balance,
	}, nil
}
