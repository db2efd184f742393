// Package telegram is the long-polling chat transport for the relay.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abenov/flowgram/internal/config"
	"github.com/abenov/flowgram/internal/domain"
	"github.com/abenov/flowgram/internal/relay"
	"github.com/abenov/flowgram/internal/store"
)

const apologyText = "Sorry, something went wrong while talking to the assistant. Please try again in a moment."

const helpText = `Available commands:
/start - Start the bot
/help - Show this help message
/about - About the bot`

const aboutText = `This bot forwards your messages to an AI assistant and keeps the conversation going across messages.`

// Bot wraps the Telegram API and routes updates into the relay core.
type Bot struct {
	api   *tgbotapi.BotAPI
	cfg   *config.Config
	repo  store.Repository
	relay *relay.Handler
}

// NewBot creates a Telegram bot transport.
func NewBot(cfg *config.Config, repo store.Repository, relayHandler *relay.Handler) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.Debug = false

	return &Bot{
		api:   api,
		cfg:   cfg,
		repo:  repo,
		relay: relayHandler,
	}, nil
}

// Run polls for updates until the context is cancelled. Each update is
// handled on its own goroutine so one user's slow agent call does not block
// another's.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msg := update.Message
	user := profileFromMessage(msg)

	// Refresh the sender's profile on every update so message appends
	// always have a user row to reference.
	if err := b.repo.UpsertUser(ctx, &user); err != nil {
		slog.Error("failed to upsert user", "user_id", user.UserID, "error", err)
		b.sendMessage(msg.Chat.ID, apologyText)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, user)
	case msg.Text != "":
		b.handleText(ctx, msg)
	default:
		b.sendMessage(msg.Chat.ID, "I only understand text messages for now.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user domain.User) {
	switch msg.Command() {
	case "start":
		sessionID, err := b.relay.RegisterNewUser(ctx, user)
		if err != nil {
			slog.Error("failed to register user", "user_id", user.UserID, "error", err)
			b.sendMessage(msg.Chat.ID, apologyText)
			return
		}
		slog.Info("user registered", "user_id", user.UserID, "session_id", sessionID)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(
			"Hello, %s! 👋\n\nWelcome to the bot! Use /help to see available commands.",
			user.DisplayName()))

	case "help":
		b.sendMessage(msg.Chat.ID, helpText)

	case "about":
		b.sendMessage(msg.Chat.ID, aboutText)

	case "history":
		if !b.cfg.IsAdmin(user.UserID) {
			b.sendMessage(msg.Chat.ID, "Unknown command. Use /help to see available commands.")
			return
		}
		b.sendHistory(ctx, msg.Chat.ID, user.UserID)

	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	reply, err := b.relay.RelayMessage(ctx, msg.From.ID, msg.Text)
	if err != nil {
		slog.Error("failed to relay message",
			"user_id", msg.From.ID,
			"error", err)
		b.sendMessage(msg.Chat.ID, apologyText)
		return
	}
	b.sendMessage(msg.Chat.ID, reply)
}

func (b *Bot) sendHistory(ctx context.Context, chatID, userID int64) {
	messages, err := b.repo.GetRecentMessages(ctx, userID, 10)
	if err != nil {
		slog.Error("failed to load recent messages", "user_id", userID, "error", err)
		b.sendMessage(chatID, apologyText)
		return
	}
	if len(messages) == 0 {
		b.sendMessage(chatID, "No messages recorded yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your recent messages (newest first):\n")
	for _, m := range messages {
		fmt.Fprintf(&sb, "• [%s] %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Text)
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func profileFromMessage(msg *tgbotapi.Message) domain.User {
	return domain.User{
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
}
