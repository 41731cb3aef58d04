package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"wagerbot/bot/common"
	"wagerbot/events"
	"wagerbot/service"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token         string
	WebhookURL    string // Full public URL of the Telegram webhook route; empty means long polling
	WebhookSecret string
	PaymentsOn    bool
}

// messageSender is the part of the Telegram API the bot writes through
type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

type Bot struct {
	config         Config
	api            *tgbot.Bot
	sender         messageSender
	accountService service.AccountService
	matchService   service.MatchService
	paymentService service.PaymentService
	commands       map[string]command
}

func New(config Config, accountService service.AccountService, matchService service.MatchService, paymentService service.PaymentService, eventBus *events.Bus) (*Bot, error) {
	b := newBot(config, accountService, matchService, paymentService, nil)

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(func(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
			b.handleUpdate(ctx, update)
		}),
		tgbot.WithErrorsHandler(func(err error) {
			log.WithError(err).Error("Telegram transport error")
		}),
	}
	if config.WebhookSecret != "" {
		opts = append(opts, tgbot.WithWebhookSecretToken(config.WebhookSecret))
	}

	api, err := tgbot.New(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	b.api = api
	b.sender = api

	// Notifications go out after commit, never from inside a unit of work
	NewNotifier(api).Attach(eventBus)

	return b, nil
}

func newBot(config Config, accountService service.AccountService, matchService service.MatchService, paymentService service.PaymentService, sender messageSender) *Bot {
	b := &Bot{
		config:         config,
		sender:         sender,
		accountService: accountService,
		matchService:   matchService,
		paymentService: paymentService,
	}
	b.commands = b.commandTable()
	return b
}

// Start registers commands and the delivery mode, then blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	if err := b.registerCommands(ctx); err != nil {
		log.WithError(err).Warn("Failed to register bot commands")
	}

	if b.config.WebhookURL != "" {
		if _, err := b.api.SetWebhook(ctx, &tgbot.SetWebhookParams{
			URL:         b.config.WebhookURL,
			SecretToken: b.config.WebhookSecret,
		}); err != nil {
			return fmt.Errorf("error setting telegram webhook: %w", err)
		}
		log.WithField("url", b.config.WebhookURL).Info("Telegram webhook registered")
		b.api.StartWebhook(ctx)
		return nil
	}

	if _, err := b.api.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		log.WithError(err).Warn("Failed to clear telegram webhook before polling")
	}
	log.Info("Telegram long polling started")
	b.api.Start(ctx)
	return nil
}

// WebhookHandler returns the HTTP handler Telegram posts updates to
func (b *Bot) WebhookHandler() http.Handler {
	return b.api.WebhookHandler()
}

// handleUpdate dispatches a text command and replies in the same chat
func (b *Bot) handleUpdate(ctx context.Context, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}

	name, args := parseCommand(msg.Text)
	cmd, ok := b.commands[name]
	if !ok {
		b.reply(ctx, msg.Chat.ID, helpText())
		return
	}

	account, err := b.accountService.GetOrCreateAccount(ctx, msg.From.ID, displayName(msg.From))
	if err != nil {
		b.replyError(ctx, msg, name, err)
		return
	}

	text, err := cmd.handler(ctx, account, args)
	if err != nil {
		b.replyError(ctx, msg, name, err)
		return
	}
	b.reply(ctx, msg.Chat.ID, text)
}

func (b *Bot) replyError(ctx context.Context, msg *tgmodels.Message, command string, err error) {
	fields := log.Fields{
		"telegramId": msg.From.ID,
		"command":    command,
		"error":      err,
		"errorKind":  service.ErrorKind(err),
	}
	if service.IsDomainError(err) || isUserError(err) {
		log.WithFields(fields).Info("Command rejected")
	} else {
		log.WithFields(fields).Error("Command failed")
	}
	b.reply(ctx, msg.Chat.ID, "❌ "+common.UserMessage(err))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if b.sender == nil {
		return
	}
	_, err := b.sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"chatId": chatID,
			"error":  err,
		}).Error("Error sending telegram message")
	}
}

func displayName(u *tgmodels.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return fmt.Sprintf("user%d", u.ID)
	}
	return name
}
