// Package bot is the Telegram transport: it polls for updates, routes
// commands, and hands free text to the conversation core.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tgchatbot/internal/ratelimit"
	"tgchatbot/internal/service/ai"
	"tgchatbot/internal/service/history"
	"tgchatbot/internal/worker"
)

const (
	welcomeText = "Welcome to the AI chatbot!\n\n" +
		"I answer your questions with ChatGPT and keep the conversation context.\n\n" +
		"Commands:\n" +
		"/help - show all commands\n" +
		"/reset - clear the conversation history\n\n" +
		"Just send me a message and I will reply."
	helpText = "Available commands:\n\n" +
		"/start - start the bot\n" +
		"/help - show this help\n" +
		"/reset - clear the conversation history\n" +
		"/setmodel [model] - change the AI model (admins only)\n" +
		"/stats - show bot statistics (admins only)\n" +
		"/broadcast [message] - message all users (admins only)\n\n" +
		"Send any text and I will answer with ChatGPT."
	resetDoneText     = "Conversation history cleared. You can start a new conversation."
	adminOnlyText     = "This command is available to administrators only."
	busyText          = "I am still working on your previous message. Please wait a moment."
	rateLimitedText   = "You are sending messages too fast. Please slow down."
	internalErrorText = "Something went wrong. Please try again later, or use /reset to clear the history."
)

// Bot wires the Telegram client to the conversation core.
type Bot struct {
	client   *Client
	manager  *worker.Manager
	history  *history.Service
	registry *ai.Registry
	limiter  *ratelimit.Limiter
	admins   []int64

	pollTimeout int
	offset      int64
}

// New builds the bot. limiter may be nil to disable rate limiting.
func New(client *Client, manager *worker.Manager, historySvc *history.Service, registry *ai.Registry, limiter *ratelimit.Limiter, admins []int64, pollTimeout int) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Bot{
		client:      client,
		manager:     manager,
		history:     historySvc,
		registry:    registry,
		limiter:     limiter,
		admins:      admins,
		pollTimeout: pollTimeout,
	}
}

// Run polls for updates until the context is cancelled. Each update is
// handled as an independent unit of work; ordering per owner is the worker
// manager's concern.
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, b.offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("getUpdates: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if err := b.history.RecordUser(ctx, msg.From.ID, msg.From.FirstName, msg.From.Username); err != nil {
		log.Printf("record user %d: %v", msg.From.ID, err)
		b.reply(ctx, msg.Chat.ID, internalErrorText)
		return
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, msg, text)
		return
	}
	b.handleChat(ctx, msg, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message, text string) {
	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args = strings.TrimSpace(args)

	switch cmd {
	case "/start":
		b.reply(ctx, msg.Chat.ID, welcomeText)
	case "/help":
		b.reply(ctx, msg.Chat.ID, helpText)
	case "/reset":
		if err := b.history.Reset(ctx, msg.From.ID); err != nil {
			log.Printf("reset history for %d: %v", msg.From.ID, err)
			b.reply(ctx, msg.Chat.ID, internalErrorText)
			return
		}
		b.reply(ctx, msg.Chat.ID, resetDoneText)
	case "/setmodel":
		b.handleSetModel(ctx, msg, args)
	case "/stats":
		b.handleStats(ctx, msg)
	case "/broadcast":
		b.handleBroadcast(ctx, msg, args)
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
}

func (b *Bot) handleSetModel(ctx context.Context, msg *Message, model string) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, adminOnlyText)
		return
	}
	available := strings.Join(b.registry.Models(), ", ")
	if model == "" {
		b.reply(ctx, msg.Chat.ID, "Usage: /setmodel [model]\n\nAvailable models: "+available)
		return
	}
	if !b.registry.Set(strings.ToLower(model)) {
		b.reply(ctx, msg.Chat.ID, "Unknown model. Available models: "+available)
		return
	}
	log.Printf("admin %d changed model to %s", msg.From.ID, b.registry.Get())
	b.reply(ctx, msg.Chat.ID, "Model changed to: "+b.registry.Get())
}

func (b *Bot) handleStats(ctx context.Context, msg *Message) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, adminOnlyText)
		return
	}
	users, messages, err := b.history.Stats(ctx)
	if err != nil {
		log.Printf("stats: %v", err)
		b.reply(ctx, msg.Chat.ID, internalErrorText)
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Bot statistics:\n\nUsers: %d\nMessages: %d\nCurrent model: %s",
		users, messages, b.registry.Get(),
	))
}

func (b *Bot) handleBroadcast(ctx context.Context, msg *Message, text string) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, adminOnlyText)
		return
	}
	if text == "" {
		b.reply(ctx, msg.Chat.ID, "Usage: /broadcast [message]\n\nSends the message to every user of the bot.")
		return
	}
	targets, err := b.history.BroadcastTargets(ctx)
	if err != nil {
		log.Printf("broadcast targets: %v", err)
		b.reply(ctx, msg.Chat.ID, internalErrorText)
		return
	}
	if len(targets) == 0 {
		b.reply(ctx, msg.Chat.ID, "No users to broadcast to.")
		return
	}

	var sent, failed int
	for _, id := range targets {
		if err := b.client.SendMessage(ctx, id, text); err != nil {
			failed++
			log.Printf("broadcast to %d: %v", id, err)
			continue
		}
		sent++
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Broadcast finished.\n\nDelivered: %d\nFailed: %d", sent, failed))
}

func (b *Bot) handleChat(ctx context.Context, msg *Message, text string) {
	if allowed, err := b.limiter.Allow(ctx, msg.From.ID); err != nil {
		// Fail open: a broken limiter must not take the bot down.
		log.Printf("rate limit check for %d: %v", msg.From.ID, err)
	} else if !allowed {
		b.reply(ctx, msg.Chat.ID, rateLimitedText)
		return
	}

	if err := b.client.SendChatAction(ctx, msg.Chat.ID, "typing"); err != nil {
		log.Printf("send typing action: %v", err)
	}

	reply, err := b.manager.Chat(ctx, msg.From.ID, text)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, userMessageFor(err))
		var aiErr *ai.Error
		if errors.As(err, &aiErr) {
			log.Printf("completion for %d failed: %v", msg.From.ID, err)
		} else {
			log.Printf("chat for %d failed: %v", msg.From.ID, err)
		}
		return
	}
	b.reply(ctx, msg.Chat.ID, reply)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("send message to %d: %v", chatID, err)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.admins {
		if id == userID {
			return true
		}
	}
	return false
}

// userMessageFor maps an orchestration failure onto a user-safe text.
func userMessageFor(err error) string {
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		return aiErr.UserMessage()
	}
	if errors.Is(err, worker.ErrBusy) {
		return busyText
	}
	return internalErrorText
}
