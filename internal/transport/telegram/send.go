package telegram

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/services"
)

const (
	reminderPrefix = "🔔 "
	doneLabel      = "✅ Done"
	doneMark       = "✅ Done!"
	doneSuffix     = "\n\n" + doneMark

	// maxMessageRunes is Telegram's cap on a text message.
	maxMessageRunes = 4096
)

// SendReminder delivers parts to chatID in order. When confirm is set the
// last part carries the Done button. Delivery stops at the first part that
// cannot be sent so later parts never arrive out of context.
func (b *Bot) SendReminder(ctx context.Context, chatID int64, parts []domain.MessagePart, confirm *domain.Confirmation) error {
	if len(parts) == 0 {
		return domain.ErrNoMessages
	}
	for i, p := range parts {
		var markup any
		if confirm != nil && i == len(parts)-1 {
			markup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(doneLabel, confirm.Data()),
				),
			)
		}
		c, err := render(chatID, p, markup)
		if err != nil {
			return fmt.Errorf("part %d: %w", i+1, err)
		}
		if _, err := b.send(ctx, c); err != nil {
			sends.WithLabelValues("failed").Inc()
			return fmt.Errorf("part %d of %d: %w", i+1, len(parts), err)
		}
	}
	sends.WithLabelValues("delivered").Inc()
	return nil
}

func render(chatID int64, p domain.MessagePart, markup any) (tgbotapi.Chattable, error) {
	switch p.Kind {
	case domain.PartText:
		msg := tgbotapi.NewMessage(chatID, reminderPrefix+clip(p.Text, maxMessageRunes-utf8.RuneCountInString(reminderPrefix)))
		msg.ReplyMarkup = markup
		return msg, nil
	case domain.PartPhoto:
		ph := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(p.FileID))
		ph.ReplyMarkup = markup
		return ph, nil
	case domain.PartDocument:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(p.FileID))
		doc.ReplyMarkup = markup
		return doc, nil
	}
	return nil, domain.ErrInvalidPart
}

// send throttles and retries one outbound message. Flood-control replies
// wait for the interval Telegram asks for; client errors fail at once.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.RetryBackoff

	return backoff.Retry(ctx, func() (tgbotapi.Message, error) {
		if err := b.limiter.Wait(ctx); err != nil {
			return tgbotapi.Message{}, backoff.Permanent(err)
		}
		m, err := b.api.Send(c)
		if err == nil {
			return m, nil
		}
		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) {
			// Network trouble.
			return m, err
		}
		switch {
		case apiErr.RetryAfter > 0:
			b.log.Warn().Int("retry_after", apiErr.RetryAfter).Msg("flood control")
			return m, backoff.RetryAfter(apiErr.RetryAfter)
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return m, err
		}
		return m, backoff.Permanent(err)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(b.cfg.SendTries))
}

// onCallback handles a Done button press.
func (b *Bot) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if !domain.IsConfirmationData(cq.Data) {
		b.answer(cq.ID, "")
		return nil
	}
	conf, err := domain.ParseConfirmation(cq.Data)
	if err != nil {
		b.answer(cq.ID, "")
		return nil
	}
	lg := b.log.With().Str("reminder_id", conf.ReminderID).Time("fire_at", conf.FireAt).Logger()

	if b.confirm == nil {
		b.answer(cq.ID, "")
		return nil
	}
	err = b.confirm.MarkConfirmed(ctx, conf.ReminderID, conf.FireAt)
	switch {
	case errors.Is(err, services.ErrStaleConfirmation):
		confirmations.WithLabelValues("stale").Inc()
		lg.Info().Msg("stale confirmation")
		// The newer firing carries its own button.
		b.answer(cq.ID, "")
		return nil
	case errors.Is(err, services.ErrDeliveryNotFound):
		confirmations.WithLabelValues("not_found").Inc()
		lg.Debug().Msg("confirmation for unknown firing")
		b.answer(cq.ID, "This reminder no longer exists.")
		return nil
	case err != nil:
		confirmations.WithLabelValues("error").Inc()
		b.answer(cq.ID, "⚠️ Could not save that. Please try again.")
		return fmt.Errorf("confirm %s: %w", conf.ReminderID, err)
	}
	confirmations.WithLabelValues("confirmed").Inc()
	lg.Info().Msg("reminder confirmed")
	b.answer(cq.ID, doneMark)
	b.markDone(cq.Message)
	return nil
}

// markDone replaces the button of a confirmed message with a done mark.
func (b *Bot) markDone(m *tgbotapi.Message) {
	if m == nil || m.Chat == nil {
		return
	}
	var edit tgbotapi.Chattable
	if m.Text != "" {
		edit = tgbotapi.NewEditMessageText(m.Chat.ID, m.MessageID, clip(m.Text, maxMessageRunes-utf8.RuneCountInString(doneSuffix))+doneSuffix)
	} else {
		edit = tgbotapi.NewEditMessageCaption(m.Chat.ID, m.MessageID, doneMark)
	}
	if _, err := b.api.Request(edit); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", m.Chat.ID).Int("message_id", m.MessageID).Msg("edit confirmed message")
	}
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug().Err(err).Msg("answer callback")
	}
}
