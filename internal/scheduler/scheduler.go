// Package scheduler fires due reminders.
//
// One loop owns all firing. Each turn it dispatches every active reminder
// whose next_fire_at is not after the current time, in ascending
// next_fire_at order, then sleeps until the earliest remaining next_fire_at,
// a store change notification, or MaxSleep, whichever comes first. Because
// every turn starts with a full scan, a restart or a long pause delivers the
// backlog once, oldest first, before normal waiting resumes.
//
// Dispatching a reminder sends its parts, records the firing with the
// delivery tracker and then advances the stored schedule through
// Store.Mutate. A crash between sending and the mutation repeats that
// firing on restart: delivery is at-least-once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/recurrence"
	"github.com/tbourn/go-reminder-bot/internal/store"
)

// Store is the part of the reminder store the scheduler needs.
type Store interface {
	Get(id string) (domain.Reminder, error)
	List(pred func(domain.Reminder) bool) []domain.Reminder
	Mutate(ctx context.Context, id string, fn func(*domain.Reminder) error) (domain.Reminder, error)
}

// Sender delivers the parts of one firing in order. confirm is non-nil when
// the last part should carry a "Done" button.
type Sender interface {
	SendReminder(ctx context.Context, chatID int64, parts []domain.MessagePart, confirm *domain.Confirmation) error
}

// Tracker records each firing for later confirmation.
type Tracker interface {
	Record(ctx context.Context, reminderID string, fireAt time.Time) error
}

// Config tunes the loop.
type Config struct {
	// MaxSleep caps a single wait so clock jumps are noticed. Default 1h.
	MaxSleep time.Duration
	// LateThreshold is how far past its planned instant a wake-up may land
	// before it is logged as late. Default 1m.
	LateThreshold time.Duration
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Scheduler is the firing loop. Create it with New.
type Scheduler struct {
	store   Store
	sender  Sender
	tracker Tracker
	calc    recurrence.Calculator
	cfg     Config
	log     zerolog.Logger

	wake chan struct{}
}

// New returns a Scheduler. tracker may be nil.
func New(st Store, sender Sender, tracker Tracker, calc recurrence.Calculator, cfg Config) *Scheduler {
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = time.Hour
	}
	if cfg.LateThreshold <= 0 {
		cfg.LateThreshold = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	lg := log.Logger
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	return &Scheduler{
		store:   st,
		sender:  sender,
		tracker: tracker,
		calc:    calc,
		cfg:     cfg,
		log:     lg.With().Str("component", "scheduler").Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// Notify wakes the loop so it re-reads the store. It never blocks and is
// safe to register as a store change listener.
func (s *Scheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run reconciles the store, then fires reminders until ctx is done. It
// returns nil on cancellation and a wrapped store.ErrPersistence when the
// store can no longer save.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	s.log.Info().Msg("scheduler started")

	for {
		if _, err := s.RunDue(ctx); err != nil {
			return err
		}

		now := s.cfg.Now()
		wait := s.cfg.MaxSleep
		if next, ok := s.NextDeadline(); ok {
			wait = min(max(next.Sub(now), 0), s.cfg.MaxSleep)
		}
		nextWake.Set(float64(now.Add(wait).Unix()))
		planned := now.Add(wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			if late := s.cfg.Now().Sub(planned); late > s.cfg.LateThreshold {
				lateWakeups.Inc()
				s.log.Warn().Dur("late_by", late).Msg("late wake-up, rescanning for overdue reminders")
			}
		}
	}
}

// NextDeadline returns the earliest next_fire_at among active reminders.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	for _, r := range s.store.List(scheduled) {
		if !found || r.NextFireAt.Before(best) {
			best, found = *r.NextFireAt, true
		}
	}
	return best, found
}

// Reconcile fills in next_fire_at for active reminders that lack one, and
// expires those whose schedule is already exhausted.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	now := s.cfg.Now()
	pending := s.store.List(func(r domain.Reminder) bool {
		return r.Active() && r.NextFireAt == nil
	})
	for _, r := range pending {
		updated, err := s.store.Mutate(ctx, r.ID, func(cur *domain.Reminder) error {
			if cur.Active() && cur.NextFireAt == nil {
				s.calc.Schedule(cur, now)
			}
			return nil
		})
		if err := s.fatal(err); err != nil {
			return err
		}
		s.log.Info().
			Str("reminder_id", r.ID).
			Str("status", string(updated.Status)).
			Msg("reconciled schedule")
	}
	return nil
}

// RunDue dispatches every reminder due at the current time, oldest first,
// and returns how many were dispatched. Each dispatch completes its store
// mutation before the next one starts.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.cfg.Now()
	due := s.store.List(func(r domain.Reminder) bool {
		return scheduled(r) && !r.NextFireAt.After(now)
	})
	sort.SliceStable(due, func(i, j int) bool {
		a, b := *due[i].NextFireAt, *due[j].NextFireAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].ID < due[j].ID
	})

	n := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return n, nil
		}
		fired, err := s.dispatch(ctx, r, now)
		if err != nil {
			return n, err
		}
		if fired {
			n++
		}
	}
	return n, nil
}

// dispatch fires one snapshot r that was due at now. It reports false when
// the reminder was deleted or rescheduled after the snapshot was taken.
func (s *Scheduler) dispatch(ctx context.Context, r domain.Reminder, now time.Time) (bool, error) {
	fireAt := r.NextFireAt.UTC()
	if cur, err := s.store.Get(r.ID); err != nil || !scheduled(cur) || !cur.NextFireAt.Equal(fireAt) {
		return false, nil
	}
	lg := s.log.With().
		Str("reminder_id", r.ID).
		Int64("chat_id", r.TargetChatID).
		Time("fire_at", fireAt).
		Logger()

	ctx, span := otel.Tracer("scheduler").Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("reminder.id", r.ID),
			attribute.Int64("chat.id", r.TargetChatID),
			attribute.Int64("fire_at", fireAt.Unix()),
			attribute.Int("parts", len(r.Messages)),
		),
	)
	defer span.End()

	lag := now.Sub(fireAt)
	dispatchLag.Observe(lag.Seconds())
	if lag > s.cfg.LateThreshold {
		overdueDispatches.Inc()
		lg.Warn().Dur("overdue_by", lag).Msg("dispatching overdue reminder")
	}

	var confirm *domain.Confirmation
	if r.RequestConfirmation {
		confirm = &domain.Confirmation{ReminderID: r.ID, FireAt: fireAt}
	}

	// A failed send still records the firing and advances the schedule.
	if err := s.sender.SendReminder(ctx, r.TargetChatID, r.Messages, confirm); err != nil {
		firings.WithLabelValues("send_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		lg.Error().Err(err).Msg("delivery failed")
	} else {
		firings.WithLabelValues("sent").Inc()
	}

	if s.tracker != nil {
		if err := s.tracker.Record(ctx, r.ID, fireAt); err != nil {
			lg.Error().Err(err).Msg("record delivery")
		}
	}

	updated, err := s.store.Mutate(ctx, r.ID, func(cur *domain.Reminder) error {
		fired := now.UTC()
		cur.LastFiredAt = &fired
		// An edit that landed during the send already rescheduled the reminder.
		if !cur.Active() || cur.NextFireAt == nil || !cur.NextFireAt.Equal(fireAt) {
			return nil
		}
		ref := now
		if fireAt.After(ref) {
			ref = fireAt
		}
		s.calc.Schedule(cur, ref)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		lg.Info().Msg("reminder deleted during dispatch")
		return true, nil
	}
	if err := s.fatal(err); err != nil {
		span.RecordError(err)
		return true, err
	}

	ev := lg.Info().Str("status", string(updated.Status))
	if updated.NextFireAt != nil {
		ev = ev.Time("next_fire_at", *updated.NextFireAt)
	}
	ev.Msg("reminder fired")
	if updated.Status == domain.StatusExpired {
		expirations.Inc()
	}
	return true, nil
}

// fatal maps a store error to Run's result: nil for success or a vanished
// reminder, a wrapped error otherwise.
func (s *Scheduler) fatal(err error) error {
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, store.ErrPersistence):
		s.log.Error().Err(err).Msg("store persistence failed")
		return fmt.Errorf("scheduler: %w", err)
	default:
		return fmt.Errorf("scheduler: %w", err)
	}
}

// scheduled selects active reminders with a known next firing.
func scheduled(r domain.Reminder) bool {
	return r.Active() && r.NextFireAt != nil
}
