package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wagerbot/bot/common"
	"wagerbot/models"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
)

type commandHandler func(ctx context.Context, caller *models.Account, args []string) (string, error)

type command struct {
	name        string
	description string
	usage       string
	handler     commandHandler
}

func (b *Bot) commandTable() map[string]command {
	list := []command{
		{"start", "Open your account and see how to play", "/start", b.handleStart},
		{"wager", "Create a match with a stake", "/wager <amount>", b.handleWager},
		{"join", "Join an open match", "/join <match id>", b.handleJoin},
		{"win", "Claim the win of an active match", "/win <match id>", b.handleWin},
		{"cancel", "Cancel your pending match", "/cancel <match id>", b.handleCancel},
		{"deposit", "Top up your balance", "/deposit <amount>", b.handleDeposit},
		{"balance", "Show your balance", "/balance", b.handleBalance},
		{"payout", "Withdraw from your balance", "/payout <amount>", b.handlePayout},
		{"matches", "List matches waiting for an opponent", "/matches", b.handleMatches},
		{"history", "Show your latest transactions", "/history", b.handleHistory},
	}

	table := make(map[string]command, len(list))
	for _, c := range list {
		table[c.name] = c
	}
	return table
}

// registerCommands publishes the command list shown in Telegram's menu
func (b *Bot) registerCommands(ctx context.Context) error {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	botCommands := make([]tgmodels.BotCommand, 0, len(names))
	for _, name := range names {
		botCommands = append(botCommands, tgmodels.BotCommand{
			Command:     name,
			Description: b.commands[name].description,
		})
	}

	if _, err := b.api.SetMyCommands(ctx, &tgbot.SetMyCommandsParams{Commands: botCommands}); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	return nil
}

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"/wager <amount> - create a match",
		"/join <match id> - join a match",
		"/win <match id> - claim your win",
		"/cancel <match id> - cancel your pending match",
		"/deposit <amount> - top up",
		"/balance - your balance",
		"/payout <amount> - withdraw",
		"/matches - open matches",
		"/history - latest transactions",
	}, "\n")
}

// parseCommand splits "/join@WagerBot 12" into ("join", ["12"])
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}

// parseAmount reads a money argument; a comma decimal separator is accepted
func parseAmount(args []string, usage string) (decimal.Decimal, error) {
	if len(args) == 0 {
		return decimal.Zero, common.NewUserError("Usage: "+usage, "missing amount")
	}
	amount, err := decimal.NewFromString(strings.Replace(args[0], ",", ".", 1))
	if err != nil {
		return decimal.Zero, common.NewUserError("Usage: "+usage, fmt.Sprintf("unparsable amount %q", args[0]))
	}
	return amount, nil
}

// parseID reads a match ID argument; a leading '#' is accepted
func parseID(args []string, usage string) (int64, error) {
	if len(args) == 0 {
		return 0, common.NewUserError("Usage: "+usage, "missing id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError("Usage: "+usage, fmt.Sprintf("unparsable id %q", args[0]))
	}
	return id, nil
}

func isUserError(err error) bool {
	var botErr *common.BotError
	return errors.As(err, &botErr) && botErr.Err == nil
}
