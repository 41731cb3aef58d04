package bot

import (
	"context"
	"fmt"
	"strings"

	"wagerbot/bot/common"
	"wagerbot/models"
	"wagerbot/service"

	log "github.com/sirupsen/logrus"
)

func (b *Bot) handleStart(ctx context.Context, caller *models.Account, args []string) (string, error) {
	return fmt.Sprintf("Welcome, %s!\nYour balance: %s\n\n%s",
		caller.Username, common.FormatAmount(caller.Balance), helpText()), nil
}

func (b *Bot) handleBalance(ctx context.Context, caller *models.Account, args []string) (string, error) {
	balance, err := b.accountService.GetBalance(ctx, caller.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Your balance: %s", common.FormatAmount(balance)), nil
}

func (b *Bot) handleWager(ctx context.Context, caller *models.Account, args []string) (string, error) {
	stake, err := parseAmount(args, "/wager <amount>")
	if err != nil {
		return "", err
	}

	match, err := b.matchService.CreateMatch(ctx, caller.ID, stake)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Match #%d created with a stake of %s.\nYour opponent joins with /join %d. Nothing is debited until then.",
		match.ID, common.FormatAmount(match.Stake), match.ID), nil
}

func (b *Bot) handleJoin(ctx context.Context, caller *models.Account, args []string) (string, error) {
	matchID, err := parseID(args, "/join <match id>")
	if err != nil {
		return "", err
	}

	result, err := b.matchService.JoinMatch(ctx, matchID, caller.ID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("You joined match #%d. %s debited, your balance: %s.\nThe winner claims with /win %d.",
		result.Match.ID, common.FormatAmount(result.Match.Stake), common.FormatAmount(result.Player2Balance), result.Match.ID), nil
}

func (b *Bot) handleWin(ctx context.Context, caller *models.Account, args []string) (string, error) {
	matchID, err := parseID(args, "/win <match id>")
	if err != nil {
		return "", err
	}

	result, err := b.matchService.DeclareWinner(ctx, matchID, caller.ID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("🎉 You won match #%d! %s credited, your balance: %s.",
		result.Match.ID, common.FormatAmount(result.AmountWon), common.FormatAmount(result.WinnerBalance)), nil
}

func (b *Bot) handleCancel(ctx context.Context, caller *models.Account, args []string) (string, error) {
	matchID, err := parseID(args, "/cancel <match id>")
	if err != nil {
		return "", err
	}

	match, err := b.matchService.CancelMatch(ctx, matchID, caller.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Match #%d cancelled.", match.ID), nil
}

func (b *Bot) handleDeposit(ctx context.Context, caller *models.Account, args []string) (string, error) {
	amount, err := parseAmount(args, "/deposit <amount>")
	if err != nil {
		return "", err
	}
	if !b.config.PaymentsOn || b.paymentService == nil {
		return "", common.NewUserError("Deposits are not available right now.", "payments disabled")
	}

	intent, err := b.paymentService.InitiateDeposit(ctx, caller.ID, amount)
	if err != nil {
		if service.IsDomainError(err) {
			return "", err
		}
		return "", common.NewSystemError(err, "failed to initiate deposit")
	}

	log.WithFields(log.Fields{
		"accountId":   caller.ID,
		"externalRef": *intent.Transaction.ExternalRef,
		"amount":      amount.String(),
	}).Info("Deposit initiated")

	return fmt.Sprintf("To deposit %s open:\n%s\nYour balance updates once the payment is confirmed.",
		common.FormatAmount(amount), intent.ConfirmationURL), nil
}

func (b *Bot) handlePayout(ctx context.Context, caller *models.Account, args []string) (string, error) {
	amount, err := parseAmount(args, "/payout <amount>")
	if err != nil {
		return "", err
	}

	balance, err := b.accountService.Payout(ctx, caller.ID, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Payout of %s recorded, your balance: %s.\nTransfers are processed manually.",
		common.FormatAmount(amount), common.FormatAmount(balance)), nil
}

func (b *Bot) handleMatches(ctx context.Context, caller *models.Account, args []string) (string, error) {
	matches, err := b.matchService.ListOpenMatches(ctx, service.DefaultOpenMatchLimit)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No open matches. Create one with /wager <amount>.", nil
	}

	var sb strings.Builder
	sb.WriteString("Open matches:")
	for _, m := range matches {
		mine := ""
		if m.Player1ID == caller.ID {
			mine = " (yours)"
		}
		fmt.Fprintf(&sb, "\n#%d - stake %s%s", m.ID, common.FormatAmount(m.Stake), mine)
	}
	return sb.String(), nil
}

func (b *Bot) handleHistory(ctx context.Context, caller *models.Account, args []string) (string, error) {
	txs, err := b.accountService.ListTransactions(ctx, caller.ID, service.DefaultHistoryLimit)
	if err != nil {
		return "", err
	}
	if len(txs) == 0 {
		return "No transactions yet.", nil
	}

	var sb strings.Builder
	sb.WriteString("Latest transactions:")
	for _, tx := range txs {
		fmt.Fprintf(&sb, "\n%s %s %s", common.FormatTimestamp(tx.CreatedAt), kindLabel(tx.Kind), common.FormatSignedAmount(tx.Amount))
		if tx.MatchID != nil {
			fmt.Fprintf(&sb, " (match #%d)", *tx.MatchID)
		}
		if tx.Status != models.TransactionStatusCompleted {
			fmt.Fprintf(&sb, " [%s]", tx.Status)
		}
	}
	return sb.String(), nil
}

func kindLabel(kind models.TransactionKind) string {
	switch kind {
	case models.TransactionKindDeposit:
		return "deposit"
	case models.TransactionKindPayout:
		return "payout"
	case models.TransactionKindWagerDebit:
		return "stake"
	case models.TransactionKindWagerCredit:
		return "winnings"
	}
	return string(kind)
}
