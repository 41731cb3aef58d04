package cmd

import (
	"context"
	"fmt"
	"strconv"

	"wagerbot/config"
	"wagerbot/events"
	"wagerbot/models"
	"wagerbot/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// AdjustBalance applies a manual correction to an account through the ledger,
// so the change is recorded as a completed transaction like any other.
// usage: wagerbot adjust-balance <account id> <delta> <deposit|payout>
func AdjustBalance(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: wagerbot adjust-balance <account id> <delta> <deposit|payout>")
	}
	accountID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", args[0], err)
	}
	delta, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", args[1], err)
	}
	kind := models.TransactionKind(args[2])
	if kind != models.TransactionKindDeposit && kind != models.TransactionKindPayout {
		return fmt.Errorf("kind must be deposit or payout, got %q", args[2])
	}

	accounts, closeStore, err := adminAccountService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	newBalance, err := accounts.AdjustBalance(ctx, accountID, delta, kind)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}

	log.WithFields(log.Fields{
		"accountId":  accountID,
		"delta":      delta.String(),
		"kind":       kind,
		"newBalance": newBalance.String(),
	}).Info("Balance adjusted")
	return nil
}

// VerifyBalance recomputes an account balance from its completed transactions.
// usage: wagerbot verify-balance <account id>
func VerifyBalance(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: wagerbot verify-balance <account id>")
	}
	accountID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", args[0], err)
	}

	accounts, closeStore, err := adminAccountService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	audit, err := accounts.VerifyBalance(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to verify balance: %w", err)
	}
	if !audit.Consistent() {
		return fmt.Errorf("account %d balance %s differs from ledger %s by %s",
			accountID, audit.Balance, audit.LedgerBalance, audit.Drift())
	}

	log.WithFields(log.Fields{
		"accountId": accountID,
		"balance":   audit.Balance.String(),
	}).Info("Balance matches ledger")
	return nil
}

// adminAccountService opens the configured store without the bot. Events are
// dropped since there is no subscriber to deliver them to.
func adminAccountService(ctx context.Context) (service.AccountService, func(), error) {
	cfg := config.Get()
	ConfigureLogging(cfg)
	if cfg.LedgerStore != config.StorePostgres {
		return nil, nil, fmt.Errorf("admin commands need LEDGER_STORE=%s", config.StorePostgres)
	}

	store, err := openLedgerStore(ctx, cfg, events.NewBus())
	if err != nil {
		return nil, nil, err
	}
	return service.NewAccountService(store.factory, nil), store.close, nil
}
