package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/services"
)

const (
	// maxTextRunes leaves room under the transport's 4096-character cap for
	// the reminder prefix and the confirmation mark.
	maxTextRunes = 4000
	maxTextParts = 10
)

// step routes one event to the handler of the session's current step.
// Caller holds s.mu.
func (e *Engine) step(ctx context.Context, s *session, ev Event, now time.Time) ([]Reply, error) {
	switch ev.Kind {
	case EventCommand: // only /done gets here
		if s.step != StepMessages {
			return nil, invalid("input", "an answer to the question above, or /cancel")
		}
		return e.onMessagesDone(ctx, s, now)
	case EventAttachment:
		if s.step != StepAttachment {
			return nil, invalid("input", "text; attachments are added after the messages")
		}
		return e.onAttachment(s, *ev.Attachment)
	}

	in := strings.TrimSpace(ev.Text)
	switch s.step {
	case StepFrequency:
		return e.onFrequency(ctx, s, in, now)
	case StepTime:
		return e.onTime(ctx, s, in, now)
	case StepDays:
		return e.onDays(ctx, s, in, now)
	case StepMessages:
		return e.onMessage(s, in)
	case StepAttachment:
		return e.onNoAttachment(s, in)
	case StepEndDate:
		return e.onEndDate(ctx, s, in, now)
	case StepDestination:
		return e.onDestination(ctx, s, in, now)
	case StepUsername:
		return e.onUsername(ctx, s, in, now)
	case StepChatID:
		return e.onChatID(ctx, s, in, now)
	case StepPickEdit:
		return e.onPickEdit(s, in)
	case StepEditField:
		return e.onEditField(s, in)
	case StepPickDelete:
		replies, err := e.deleteOwned(ctx, s.key.userID, in)
		e.end(s, "committed")
		return replies, err
	}
	return nil, ErrNoSession
}

// ---- create / edit / delete entry points ----

func (e *Engine) begin(k sessionKey, now time.Time) []Reply {
	s := e.start(k, StepFrequency, now)
	e.log.Debug().Int64("chat_id", k.chatID).Int64("user_id", k.userID).Msg("new reminder wizard")
	return []Reply{e.prompt(s)}
}

func (e *Engine) beginEdit(k sessionKey, args string, now time.Time) ([]Reply, error) {
	owned := e.owned(k.userID, false)
	if len(owned) == 0 {
		return []Reply{done("📭 No reminders to edit.")}, nil
	}
	s := e.start(k, StepPickEdit, now)
	if args == "" {
		return []Reply{e.prompt(s)}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.onPickEdit(s, args)
}

func (e *Engine) beginDelete(ctx context.Context, k sessionKey, args string, now time.Time) ([]Reply, error) {
	if args != "" {
		e.Cancel(k.chatID, k.userID)
		return e.deleteOwned(ctx, k.userID, args)
	}
	if len(e.owned(k.userID, false)) == 0 {
		return []Reply{done("📭 No reminders to delete.")}, nil
	}
	s := e.start(k, StepPickDelete, now)
	return []Reply{e.prompt(s)}, nil
}

// ---- step handlers ----

func (e *Engine) onFrequency(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	kind, err := parseFrequencyKind(in)
	if err != nil {
		return nil, err
	}
	s.draft.Frequency = domain.Frequency{Kind: kind}
	if !s.editing() {
		return e.moveTo(s, StepTime), nil
	}
	switch kind {
	case domain.FrequencyWeekly, domain.FrequencyCustomDays:
		return e.moveTo(s, StepDays), nil
	case domain.FrequencyOneTime:
		return e.moveTo(s, StepTime), nil
	}
	return e.commitEdit(ctx, s, now)
}

func (e *Engine) onTime(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	if s.draft.Frequency.Kind == domain.FrequencyOneTime {
		d, tod, err := parseOneTime(in, now)
		if err != nil {
			return nil, err
		}
		s.draft.Frequency = domain.OneTime(d)
		s.draft.TimeOfDay = tod
	} else {
		tod, err := parseTimeOfDay(in)
		if err != nil {
			return nil, err
		}
		s.draft.TimeOfDay = tod
	}

	if s.editing() {
		return e.commitEdit(ctx, s, now)
	}
	if needsDays(s.draft.Frequency.Kind) {
		return e.moveTo(s, StepDays), nil
	}
	return e.moveTo(s, StepMessages), nil
}

func (e *Engine) onDays(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	days, err := parseWeekdays(in)
	if err != nil {
		return nil, err
	}
	if s.draft.Frequency.Kind == domain.FrequencyWeekly {
		if len(days) != 1 {
			return nil, invalid("day", "exactly one weekday")
		}
		s.draft.Frequency = domain.Weekly(days[0])
	} else {
		s.draft.Frequency = domain.CustomDays(days...)
	}
	if s.editing() {
		return e.commitEdit(ctx, s, now)
	}
	return e.moveTo(s, StepMessages), nil
}

func (e *Engine) onMessage(s *session, in string) ([]Reply, error) {
	switch {
	case in == "":
		return nil, invalid("message", "some text")
	case utf8.RuneCountInString(in) > maxTextRunes:
		return nil, invalid("message", "at most "+strconv.Itoa(maxTextRunes)+" characters")
	case len(s.texts) >= maxTextParts:
		return nil, invalid("message", "/done: that is the maximum number of messages")
	}
	s.texts = append(s.texts, domain.TextPart(in))
	return []Reply{say("✅ Message #" + strconv.Itoa(len(s.texts)) + " added. Send more or /done")}, nil
}

func (e *Engine) onMessagesDone(ctx context.Context, s *session, now time.Time) ([]Reply, error) {
	if len(s.texts) == 0 {
		return nil, invalid("messages", "at least one message before /done")
	}
	if s.editing() {
		return e.commitEdit(ctx, s, now)
	}
	return e.moveTo(s, StepAttachment), nil
}

func (e *Engine) onAttachment(s *session, part domain.MessagePart) ([]Reply, error) {
	if !part.IsAttachment() || part.Validate() != nil {
		return nil, invalid("attachment", "a photo or a document")
	}
	s.attachment = &part
	ack := "✅ Document attached!"
	if part.Kind == domain.PartPhoto {
		ack = "✅ Photo attached!"
	}
	return append([]Reply{say(ack)}, e.afterAttachment(s)...), nil
}

func (e *Engine) onNoAttachment(s *session, in string) ([]Reply, error) {
	switch key(in) {
	case key(labelNoAttachment), "no", "none", "skip":
	default:
		return nil, invalid("attachment", "a photo, a document or "+labelNoAttachment)
	}
	s.attachment = nil
	return e.afterAttachment(s), nil
}

func (e *Engine) afterAttachment(s *session) []Reply {
	if s.draft.Frequency.Recurring() {
		return e.moveTo(s, StepEndDate)
	}
	s.draft.EndDate = nil
	return e.moveTo(s, StepDestination)
}

func (e *Engine) onEndDate(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	d, err := parseEndDate(in, now)
	if err != nil {
		return nil, err
	}
	s.draft.EndDate = d
	if s.editing() {
		return e.commitEdit(ctx, s, now)
	}
	return e.moveTo(s, StepDestination), nil
}

func (e *Engine) onDestination(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	switch key(in) {
	case key(labelToMe), "me":
		err := e.dir.EnsureReachable(ctx, s.key.userID)
		if errors.Is(err, services.ErrDestinationUnreachable) {
			return nil, invalid("destination", "another option: I can only message you after you send /start to me in a private chat")
		}
		if err != nil {
			return nil, err
		}
		return e.finish(ctx, s, s.key.userID, now)
	case key(labelToGroup), "group":
		id, err := e.dir.DefaultGroup()
		if errors.Is(err, services.ErrNoDefaultGroup) {
			return nil, invalid("destination", "another option: no default group is configured")
		}
		if err != nil {
			return nil, err
		}
		return e.finish(ctx, s, id, now)
	case key(labelToUsername), "username":
		return e.moveTo(s, StepUsername), nil
	case key(labelToChatID), "chatid":
		return e.moveTo(s, StepChatID), nil
	}
	return nil, invalid("destination", "one of the options below")
}

func (e *Engine) onUsername(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	id, err := e.dir.ResolveUsername(ctx, in)
	if errors.Is(err, services.ErrChatNotFound) {
		return nil, invalid("username", "a user who has sent /start to me")
	}
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, s, id, now)
}

func (e *Engine) onChatID(ctx context.Context, s *session, in string, now time.Time) ([]Reply, error) {
	id, err := parseChatID(in)
	if err != nil {
		return nil, err
	}
	err = e.dir.EnsureReachable(ctx, id)
	if errors.Is(err, services.ErrDestinationUnreachable) {
		return nil, invalid("chat id", "a chat I have seen messages from, or the default group")
	}
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, s, id, now)
}

func (e *Engine) finish(ctx context.Context, s *session, target int64, now time.Time) ([]Reply, error) {
	s.draft.TargetChatID = target
	if s.editing() {
		return e.commitEdit(ctx, s, now)
	}
	return e.commitNew(ctx, s, now)
}

func (e *Engine) onPickEdit(s *session, in string) ([]Reply, error) {
	r, err := e.ownedByID(s.key.userID, in)
	if err != nil {
		e.end(s, "aborted")
		return []Reply{done("❌ Reminder not found.")}, nil
	}
	s.editID = r.ID
	s.draft = r.Clone()
	s.texts = nil
	s.attachment = nil
	for _, p := range r.Messages {
		if p.IsAttachment() {
			s.attachment = &p
		}
	}
	return e.moveTo(s, StepEditField), nil
}

func (e *Engine) onEditField(s *session, in string) ([]Reply, error) {
	switch key(in) {
	case key(labelFieldTime):
		s.field = FieldTime
		return e.moveTo(s, StepTime), nil
	case key(labelFieldFrequency):
		s.field = FieldFrequency
		return e.moveTo(s, StepFrequency), nil
	case key(labelFieldMessages), "message":
		s.field = FieldMessages
		return e.moveTo(s, StepMessages), nil
	case key(labelFieldEndDate):
		if !s.draft.Frequency.Recurring() {
			return nil, invalid("field", "another field: one-time reminders have no end date")
		}
		s.field = FieldEndDate
		return e.moveTo(s, StepEndDate), nil
	case key(labelFieldDestination):
		s.field = FieldDestination
		return e.moveTo(s, StepDestination), nil
	}
	return nil, invalid("field", "one of the options below")
}

// moveTo advances s and returns the prompt for the new step.
func (e *Engine) moveTo(s *session, step Step) []Reply {
	s.step = step
	return []Reply{e.prompt(s)}
}

func needsDays(k domain.FrequencyKind) bool {
	return k == domain.FrequencyWeekly || k == domain.FrequencyCustomDays
}
