// Package telegram connects the reminder core to the Telegram Bot API.
//
// Inbound updates are normalized into conversation events and button
// presses; outbound replies, reminder firings and confirmation edits are
// rendered as Bot API requests. The package never touches the reminder
// store directly.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-reminder-bot/internal/conversation"
	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/services"
	"github.com/tbourn/go-reminder-bot/internal/store"
)

// BotAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Conversations handles normalized chat events.
type Conversations interface {
	Handle(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error)
}

// Directory records chats the bot has seen.
type Directory interface {
	Remember(ctx context.Context, chat domain.KnownChat) error
}

// Confirmer marks a firing as done.
type Confirmer interface {
	MarkConfirmed(ctx context.Context, reminderID string, fireAt time.Time) error
}

// Assistant answers /ask and /help questions.
type Assistant interface {
	Ask(ctx context.Context, chatID int64, prompt string) (services.Answer, error)
	FromHelp(question string) (string, bool)
}

// Config tunes the adapter.
type Config struct {
	// SendRPS caps outbound requests per second; <= 0 disables the cap.
	SendRPS   float64
	SendBurst int
	// SendTries bounds attempts per outbound message. Default 3.
	SendTries uint
	// RetryBackoff is the first retry delay for failed sends. Default 500ms.
	RetryBackoff time.Duration
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Bot is the Telegram adapter. It implements scheduler.Sender.
type Bot struct {
	api     BotAPI
	conv    Conversations
	dir     Directory
	confirm Confirmer
	asst    Assistant
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger

	// inflight tracks /ask calls answered in the background.
	inflight sync.WaitGroup
}

// New returns a Bot. dir, confirm and asst may be nil.
func New(api BotAPI, conv Conversations, dir Directory, confirm Confirmer, asst Assistant, cfg Config) *Bot {
	if cfg.SendTries == 0 {
		cfg.SendTries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	lim := rate.NewLimiter(rate.Inf, cfg.SendBurst)
	if cfg.SendRPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst)
	}
	lg := log.Logger
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	return &Bot{
		api:     api,
		conv:    conv,
		dir:     dir,
		confirm: confirm,
		asst:    asst,
		cfg:     cfg,
		limiter: lim,
		log:     lg.With().Str("component", "telegram").Logger(),
	}
}

// commands is the bot menu, in display order.
var commands = []tgbotapi.BotCommand{
	{Command: "newreminder", Description: "Create a reminder"},
	{Command: "listreminders", Description: "Show your active reminders"},
	{Command: "editreminder", Description: "Change a reminder"},
	{Command: "deletereminder", Description: "Delete a reminder"},
	{Command: "cancel", Description: "Abort the current operation"},
	{Command: "ask", Description: "Ask a question"},
	{Command: "help", Description: "How to use the bot"},
	{Command: "getid", Description: "Show this chat's ID"},
}

// SetCommands publishes the command menu.
func (b *Bot) SetCommands() error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// Run handles updates until ctx is done or updates is closed. It returns a
// non-nil error only when the store can no longer persist.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.HandleUpdate(ctx, u); err != nil {
				if errors.Is(err, store.ErrPersistence) {
					return err
				}
				b.log.Error().Err(err).Int("update_id", u.UpdateID).Msg("handle update")
			}
		}
	}
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	switch {
	case u.CallbackQuery != nil:
		inbound.WithLabelValues("callback").Inc()
		return b.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		return b.onMessage(ctx, u.Message)
	}
	inbound.WithLabelValues("ignored").Inc()
	return nil
}

func (b *Bot) onMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.Chat == nil || m.From == nil {
		return nil
	}
	b.remember(ctx, m)

	chatID, userID := m.Chat.ID, m.From.ID
	var ev conversation.Event
	switch {
	case m.IsCommand():
		inbound.WithLabelValues("command").Inc()
		cmd := strings.ToLower(m.Command())
		args := strings.TrimSpace(m.CommandArguments())
		if handled := b.onLocalCommand(ctx, m, cmd, args); handled {
			return nil
		}
		ev = conversation.Command(chatID, userID, "/"+cmd+" "+args)
	case len(m.Photo) > 0:
		inbound.WithLabelValues("photo").Inc()
		// The last size is the largest.
		ph := m.Photo[len(m.Photo)-1]
		ev = conversation.Attachment(chatID, userID, domain.MessagePart{Kind: domain.PartPhoto, FileID: ph.FileID})
	case m.Document != nil:
		inbound.WithLabelValues("document").Inc()
		ev = conversation.Attachment(chatID, userID, domain.MessagePart{
			Kind:     domain.PartDocument,
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
		})
	case m.Text != "":
		inbound.WithLabelValues("text").Inc()
		ev = conversation.Text(chatID, userID, m.Text)
	default:
		inbound.WithLabelValues("ignored").Inc()
		return nil
	}

	replies, err := b.conv.Handle(ctx, ev)
	switch {
	case errors.Is(err, conversation.ErrNoSession), errors.Is(err, conversation.ErrUnknownCommand):
		// Groups carry plenty of chatter that is not meant for the bot.
		if m.Chat.IsPrivate() {
			b.reply(ctx, chatID, conversation.Reply{Text: "Send /newreminder to create a reminder, or /help for all commands."})
		}
		return nil
	case errors.Is(err, store.ErrPersistence):
		b.reply(ctx, chatID, conversation.Reply{Text: "⚠️ I can't save reminders right now. Please try again later.", RemoveKeyboard: true})
		return err
	}
	for _, r := range replies {
		b.reply(ctx, chatID, r)
	}
	return err
}

// onLocalCommand answers commands that need no wizard state.
func (b *Bot) onLocalCommand(ctx context.Context, m *tgbotapi.Message, cmd, args string) bool {
	chatID := m.Chat.ID
	switch cmd {
	case "start":
		b.reply(ctx, chatID, conversation.Reply{Text: welcome()})
	case "getid":
		title := m.Chat.Title
		if title == "" {
			title = "Private Chat"
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Chat ID: `%d`\nTitle: %s", chatID, title))
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.send(ctx, msg); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send chat id")
		}
	case "help":
		b.reply(ctx, chatID, conversation.Reply{Text: b.help(args)})
	case "ask":
		if b.asst == nil {
			b.reply(ctx, chatID, conversation.Reply{Text: "The assistant is not enabled. Try /help."})
			return true
		}
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.reply(ctx, chatID, conversation.Reply{Text: b.ask(ctx, chatID, args)})
		}()
	default:
		return false
	}
	return true
}

func (b *Bot) ask(ctx context.Context, chatID int64, prompt string) string {
	ans, err := b.asst.Ask(ctx, chatID, prompt)
	switch {
	case err == nil && ans.FromHelp:
		return "📖 " + ans.Text
	case err == nil:
		return ans.Text
	case errors.Is(err, services.ErrEmptyPrompt):
		return "Usage: /ask <question>"
	case errors.Is(err, services.ErrTooLong):
		return "That question is too long. Please shorten it."
	case errors.Is(err, services.ErrRateLimited):
		return "⏳ Too many questions. Try again in a moment."
	}
	b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("assistant failed")
	return "⚠️ The assistant is unavailable right now. Try /help."
}

func (b *Bot) help(question string) string {
	if question == "" || b.asst == nil {
		return welcome()
	}
	if text, ok := b.asst.FromHelp(question); ok {
		return "📖 " + text
	}
	return "I couldn't find anything about that.\n\n" + welcome()
}

func welcome() string {
	var sb strings.Builder
	sb.WriteString("👋 I send reminders on a schedule.\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&sb, "/%s - %s\n", c.Command, c.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// remember records the chat so it can be used as a destination later.
func (b *Bot) remember(ctx context.Context, m *tgbotapi.Message) {
	if b.dir == nil {
		return
	}
	kc := domain.KnownChat{ChatID: m.Chat.ID, Kind: m.Chat.Type, Title: m.Chat.Title}
	if m.Chat.IsPrivate() {
		kc.Username = m.From.UserName
		kc.Title = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	}
	if err := b.dir.Remember(ctx, kc); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", kc.ChatID).Msg("remember chat")
	}
}

// reply renders a conversation reply with its keyboard.
func (b *Bot) reply(ctx context.Context, chatID int64, r conversation.Reply) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	switch {
	case len(r.Options) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(r.Options))
		for _, opts := range r.Options {
			row := make([]tgbotapi.KeyboardButton, 0, len(opts))
			for _, o := range opts {
				row = append(row, tgbotapi.NewKeyboardButton(o))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		msg.ReplyMarkup = kb
	case r.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	if _, err := b.send(ctx, msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send reply")
	}
}
