// Package services – AssistantService
//
// This file implements AssistantService, which answers "/ask" prompts. It
// validates the prompt, applies a per-chat rate limit, forwards the prompt
// to the configured assistant and clips the reply. When no assistant is
// configured, or the assistant fails, it answers from the built-in help index
// instead.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reminder-bot/internal/search"
	"github.com/tbourn/go-reminder-bot/internal/utils"
)

// Asker answers a single prompt.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Answer is the outcome of an Ask call.
type Answer struct {
	Text string
	// FromHelp reports that the text came from the help index.
	FromHelp bool
}

// noAnswer is returned when neither source can help.
const noAnswer = "I can’t answer that. Try /help for the list of commands."

// AssistantService coordinates assistant calls for chats.
type AssistantService struct {
	// Asker is the upstream assistant; nil disables it.
	Asker Asker
	// Help answers when Asker is nil or fails; may be nil.
	Help search.Index
	// Limiter throttles requests per chat; nil disables limiting.
	Limiter *utils.KeyedLimiter

	MaxPromptRunes int
	MaxReplyRunes  int
}

// NewAssistantService constructs an AssistantService with sane defaults.
// rps <= 0 disables the per-chat limit.
func NewAssistantService(a Asker, help search.Index, rps float64, burst int) *AssistantService {
	return &AssistantService{
		Asker:          a,
		Help:           help,
		Limiter:        utils.NewKeyedLimiter(rps, burst),
		MaxPromptRunes: 1000,
		MaxReplyRunes:  3500,
	}
}

// Ask answers prompt on behalf of chatID.
//
// Errors:
//   - ErrEmptyPrompt / ErrTooLong for invalid prompts.
//   - ErrRateLimited when the chat asks too often.
//   - ErrAssistantUnavailable (wrapping the cause) when the assistant failed
//     and the help index had nothing relevant either.
func (s *AssistantService) Ask(ctx context.Context, chatID int64, prompt string) (Answer, error) {
	ctx, span := otel.Tracer("services/AssistantService").Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.Bool("assistant.enabled", s.Asker != nil),
		),
	)
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Answer{}, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return Answer{}, ErrTooLong
	}
	if s.Limiter != nil && !s.Limiter.Allow(strconv.FormatInt(chatID, 10)) {
		return Answer{}, ErrRateLimited
	}

	var upstreamErr error
	if s.Asker != nil {
		reply, err := s.Asker.Ask(ctx, prompt)
		if err == nil && strings.TrimSpace(reply) != "" {
			return Answer{Text: s.clip(reply)}, nil
		}
		if err == nil {
			err = errors.New("empty reply")
		}
		upstreamErr = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "assistant failed")
	}

	if text, ok := s.FromHelp(prompt); ok {
		return Answer{Text: text, FromHelp: true}, nil
	}
	if upstreamErr != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrAssistantUnavailable, upstreamErr)
	}
	return Answer{Text: noAnswer, FromHelp: true}, nil
}

// FromHelp returns the best help paragraph for question, if any.
func (s *AssistantService) FromHelp(question string) (string, bool) {
	if s.Help == nil {
		return "", false
	}
	res := s.Help.TopK(question, 1)
	if len(res) == 0 {
		return "", false
	}
	return res[0].Snippet, true
}

func (s *AssistantService) clip(reply string) string {
	reply = strings.TrimSpace(reply)
	if s.MaxReplyRunes > 0 && utf8.RuneCountInString(reply) > s.MaxReplyRunes {
		return string([]rune(reply)[:s.MaxReplyRunes]) + "…"
	}
	return reply
}
