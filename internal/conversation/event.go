package conversation

import (
	"strings"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// EventKind tells commands, free text and attachments apart.
type EventKind int

const (
	EventCommand EventKind = iota
	EventText
	EventAttachment
)

// Event is one normalized inbound message. The transport fills it in; the
// engine never sees raw updates.
type Event struct {
	Kind   EventKind
	ChatID int64
	UserID int64

	// Command is lower-case without the leading slash or "@botname".
	Command string
	// Args is the text after the command, trimmed.
	Args string
	// Text is the message body for EventText.
	Text string
	// Attachment is set for EventAttachment.
	Attachment *domain.MessagePart
}

// Command builds a command event from a raw "/name@bot args" string.
func Command(chatID, userID int64, raw string) Event {
	name, args, _ := strings.Cut(strings.TrimSpace(raw), " ")
	name = strings.TrimPrefix(name, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return Event{
		Kind:    EventCommand,
		ChatID:  chatID,
		UserID:  userID,
		Command: strings.ToLower(name),
		Args:    strings.TrimSpace(args),
	}
}

// Text builds a free-text event.
func Text(chatID, userID int64, text string) Event {
	return Event{Kind: EventText, ChatID: chatID, UserID: userID, Text: text}
}

// Attachment builds an attachment event.
func Attachment(chatID, userID int64, part domain.MessagePart) Event {
	return Event{Kind: EventAttachment, ChatID: chatID, UserID: userID, Attachment: &part}
}

// Reply is one outbound message to the chat the event came from.
type Reply struct {
	Text string
	// Options is rendered as a one-time reply keyboard, row by row.
	Options [][]string
	// RemoveKeyboard hides any keyboard left from an earlier step.
	RemoveKeyboard bool
}

func say(text string) Reply { return Reply{Text: text} }

func done(text string) Reply { return Reply{Text: text, RemoveKeyboard: true} }

func ask(text string, options ...[]string) Reply {
	if len(options) == 0 {
		return Reply{Text: text, RemoveKeyboard: true}
	}
	return Reply{Text: text, Options: options}
}
