package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/store"
)

const maxIDTries = 3

// commitNew turns the finished draft into a reminder and stores it.
func (e *Engine) commitNew(ctx context.Context, s *session, now time.Time) ([]Reply, error) {
	ctx, span := otel.Tracer("conversation").Start(ctx, "CommitNew",
		trace.WithAttributes(
			attribute.Int64("chat.id", s.key.chatID),
			attribute.String("frequency", string(s.draft.Frequency.Kind)),
		),
	)
	defer span.End()

	r := s.draft.Clone()
	r.ID = e.store.NewID()
	r.OwnerChatID = s.key.chatID
	r.OwnerUserID = s.key.userID
	r.Messages = s.parts()
	r.RequestConfirmation = e.cfg.RequestConfirmation
	r.CreatedAt = now.UTC()
	if !r.Frequency.Recurring() {
		r.EndDate = nil
	}

	// A one-time instant can pass while the wizard is open, and an end date
	// can fall before the first matching day.
	if !e.calc.Schedule(&r, now) {
		if r.Frequency.Recurring() {
			s.step = StepEndDate
			return nil, invalid("end date", "a date on or after the first occurrence")
		}
		s.step = StepTime
		return nil, invalid("time", "a moment that has not passed yet")
	}

	// NewID only reads the store, so another commit can claim the same id
	// before ours lands.
	err := e.store.Create(ctx, r)
	for tries := 1; errors.Is(err, store.ErrExists) && tries < maxIDTries; tries++ {
		r.ID = e.store.NewID()
		err = e.store.Create(ctx, r)
	}
	span.SetAttributes(attribute.String("reminder.id", r.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		e.end(s, "aborted")
		return nil, fmt.Errorf("save reminder: %w", err)
	}
	commits.WithLabelValues("create").Inc()
	e.end(s, "committed")

	e.log.Info().
		Str("reminder_id", r.ID).
		Int64("chat_id", r.OwnerChatID).
		Int64("target_chat_id", r.TargetChatID).
		Str("frequency", r.Frequency.String()).
		Time("next_fire_at", *r.NextFireAt).
		Msg("reminder created")

	return []Reply{done("✅ Reminder created!\n\n" + e.summary(r))}, nil
}

// commitEdit applies the edited field to the stored reminder.
func (e *Engine) commitEdit(ctx context.Context, s *session, now time.Time) ([]Reply, error) {
	ctx, span := otel.Tracer("conversation").Start(ctx, "CommitEdit",
		trace.WithAttributes(
			attribute.String("reminder.id", s.editID),
			attribute.String("field", string(s.field)),
		),
	)
	defer span.End()

	draft := s.draft.Clone()
	parts := s.parts()
	user := s.key.userID
	field := s.field

	updated, err := e.store.Mutate(ctx, s.editID, func(cur *domain.Reminder) error {
		if cur.OwnerUserID != user {
			return ErrNotOwner
		}
		reschedule := false
		switch field {
		case FieldTime:
			cur.TimeOfDay = draft.TimeOfDay
			if cur.Frequency.Kind == domain.FrequencyOneTime && draft.Frequency.Kind == domain.FrequencyOneTime {
				cur.Frequency = draft.Frequency.Clone()
			}
			reschedule = true
		case FieldFrequency:
			cur.Frequency = draft.Frequency.Clone()
			cur.TimeOfDay = draft.TimeOfDay
			if !cur.Frequency.Recurring() {
				cur.EndDate = nil
			}
			reschedule = true
		case FieldMessages:
			cur.Messages = parts
		case FieldEndDate:
			cur.EndDate = nil
			if draft.EndDate != nil {
				d := *draft.EndDate
				cur.EndDate = &d
			}
			reschedule = true
		case FieldDestination:
			cur.TargetChatID = draft.TargetChatID
		}
		if reschedule {
			e.calc.Schedule(cur, now)
		}
		return nil
	})
	e.end(s, "committed")

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrNotOwner):
		return []Reply{done("❌ Reminder not found.")}, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "mutate failed")
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	commits.WithLabelValues("edit").Inc()

	e.log.Info().
		Str("reminder_id", updated.ID).
		Str("field", string(field)).
		Str("status", string(updated.Status)).
		Msg("reminder updated")

	msg := "✅ Reminder " + updated.ID + " updated!\n\n" + e.summary(updated)
	if updated.Status == domain.StatusExpired {
		msg += "\n\nIt has no upcoming occurrence, so it is now expired."
	}
	return []Reply{done(msg)}, nil
}

// deleteOwned removes the reminder id if userID owns it.
func (e *Engine) deleteOwned(ctx context.Context, userID int64, id string) ([]Reply, error) {
	r, err := e.ownedByID(userID, id)
	if err != nil {
		return []Reply{done("❌ Reminder not found.")}, nil
	}
	err = e.store.Delete(ctx, r.ID)
	if errors.Is(err, store.ErrNotFound) {
		return []Reply{done("❌ Reminder not found.")}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete reminder: %w", err)
	}
	commits.WithLabelValues("delete").Inc()
	if e.forget != nil {
		if err := e.forget.Forget(ctx, r.ID); err != nil {
			e.log.Warn().Err(err).Str("reminder_id", r.ID).Msg("forget delivery record")
		}
	}
	e.log.Info().Str("reminder_id", r.ID).Int64("user_id", userID).Msg("reminder deleted")
	return []Reply{done("✅ Reminder " + r.ID + " deleted.")}, nil
}

// ownedByID returns the reminder id when userID owns it. Reminders of other
// users are reported as ErrNotOwner.
func (e *Engine) ownedByID(userID int64, id string) (domain.Reminder, error) {
	r, err := e.store.Get(strings.TrimSpace(id))
	if err != nil {
		return domain.Reminder{}, err
	}
	if r.OwnerUserID != userID {
		return domain.Reminder{}, ErrNotOwner
	}
	return r, nil
}

// owned lists userID's reminders, soonest first. activeOnly drops expired
// ones.
func (e *Engine) owned(userID int64, activeOnly bool) []domain.Reminder {
	list := e.store.List(func(r domain.Reminder) bool {
		return r.OwnerUserID == userID && (!activeOnly || r.Active())
	})
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].NextFireAt, list[j].NextFireAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return list
}

// ---- rendering ----

func (e *Engine) prompt(s *session) Reply {
	switch s.step {
	case StepFrequency:
		return ask("📅 How often should I remind you?",
			[]string{labelDaily, labelOneTime},
			[]string{labelWeekly, labelCustom})
	case StepTime:
		if s.draft.Frequency.Kind == domain.FrequencyOneTime {
			return ask("⏰ When? Send HH:MM for the next such time, or YYYY-MM-DD HH:MM.\nTimes are in " + e.zone() + ".")
		}
		return ask("⏰ What time? (Format: HH:MM)\nTimes are in " + e.zone() + ".")
	case StepDays:
		if s.draft.Frequency.Kind == domain.FrequencyWeekly {
			return ask("📆 Which day of the week?",
				[]string{"Mon", "Tue", "Wed", "Thu"},
				[]string{"Fri", "Sat", "Sun"})
		}
		return ask("📆 Enter days (comma-separated):\nExample: Mon,Wed,Fri or 1,3,5 (1=Monday)")
	case StepMessages:
		if s.editing() {
			return ask("💬 Send the new message text, one or more messages, then /done.")
		}
		return ask("📝 What should I remind you of?\nSend one or more messages, then /done.")
	case StepAttachment:
		return ask("📎 Attach a photo or file? Send it now, or choose "+labelNoAttachment+".",
			[]string{labelNoAttachment})
	case StepEndDate:
		if s.editing() {
			return ask("📆 New end date (YYYY-MM-DD), or "+labelNoEndDate+" to repeat forever.",
				[]string{labelNoEndDate})
		}
		return ask("📆 Repeat until which date? Send YYYY-MM-DD, or choose "+labelNoEndDate+".",
			[]string{labelNoEndDate})
	case StepDestination:
		return ask("📍 Where should I send the reminder?\n\n"+
			"• To Me: private message to you\n"+
			"• To Group: the default group\n"+
			"• To Username: a user who has talked to me\n"+
			"• Specific Chat ID: enter an id manually",
			[]string{labelToMe, labelToGroup},
			[]string{labelToUsername, labelToChatID})
	case StepUsername:
		return ask("👤 Enter the username (with or without @):")
	case StepChatID:
		return ask("📝 Enter the chat ID:")
	case StepPickEdit:
		return e.pickPrompt("✏️ Which reminder do you want to edit?", s.key.userID)
	case StepEditField:
		rows := [][]string{{labelFieldTime, labelFieldFrequency}, {labelFieldMessages, labelFieldDestination}}
		if s.draft.Frequency.Recurring() {
			rows = append(rows, []string{labelFieldEndDate})
		}
		return ask("What do you want to change?", rows...)
	case StepPickDelete:
		return e.pickPrompt("🗑 Which reminder do you want to delete?", s.key.userID)
	}
	return done("Send /newreminder to start.")
}

// pickPrompt lists userID's reminders with their ids as keyboard options.
func (e *Engine) pickPrompt(title string, userID int64) Reply {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	var rows [][]string
	var row []string
	for _, r := range e.owned(userID, false) {
		fmt.Fprintf(&b, "%s - %s - %s\n", r.ID, r.TimeOfDay, r.Preview(20))
		row = append(row, r.ID)
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	b.WriteString("\nSend the ID or /cancel")
	return ask(b.String(), rows...)
}

// listing renders userID's active reminders.
func (e *Engine) listing(userID int64) string {
	list := e.owned(userID, true)
	if len(list) == 0 {
		return "📭 No active reminders."
	}
	var b strings.Builder
	b.WriteString("📋 Your reminders:\n\n")
	for _, r := range list {
		fmt.Fprintf(&b, "🆔 %s | ⏰ %s | %s\n", r.ID, r.TimeOfDay, r.Frequency)
		if r.NextFireAt != nil {
			fmt.Fprintf(&b, "⏭ %s\n", e.stamp(*r.NextFireAt))
		}
		fmt.Fprintf(&b, "💬 %s\n\n", r.Preview(20))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Engine) summary(r domain.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆔 ID: %s\n", r.ID)
	fmt.Fprintf(&b, "📅 Frequency: %s\n", r.Frequency)
	fmt.Fprintf(&b, "⏰ Time: %s (%s)\n", r.TimeOfDay, e.zone())
	if r.EndDate != nil {
		fmt.Fprintf(&b, "📆 Until: %s\n", r.EndDate)
	}
	fmt.Fprintf(&b, "📍 Chat ID: %d", r.TargetChatID)
	if r.NextFireAt != nil {
		fmt.Fprintf(&b, "\n⏭ Next: %s", e.stamp(*r.NextFireAt))
	}
	return b.String()
}

func (e *Engine) stamp(t time.Time) string {
	return t.In(e.now().Location()).Format("Mon 2006-01-02 15:04")
}

func (e *Engine) zone() string {
	return e.now().Location().String()
}
