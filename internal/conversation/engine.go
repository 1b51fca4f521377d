// Package conversation drives the multi-step reminder wizard.
//
// Each (chat, user) pair has at most one session. A session moves through
// the steps
//
//	frequency → time → [days] → messages → attachment → [end date] → destination
//
// validating every answer before advancing. Days is asked only for weekly
// and custom-day reminders, end date only for recurring ones. /cancel drops
// the session at any point without touching the store. Create commits with
// Store.Create; edits re-run the steps of a single field and commit with
// Store.Mutate on the existing id.
//
// Sessions live in memory only and expire after Config.Timeout without
// input.
package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reminder-bot/internal/domain"
	"github.com/tbourn/go-reminder-bot/internal/recurrence"
	"github.com/tbourn/go-reminder-bot/internal/store"
)

// Store is the part of the reminder store the wizard needs.
type Store interface {
	Get(id string) (domain.Reminder, error)
	List(pred func(domain.Reminder) bool) []domain.Reminder
	NewID() string
	Create(ctx context.Context, r domain.Reminder) error
	Delete(ctx context.Context, id string) error
	Mutate(ctx context.Context, id string, fn func(*domain.Reminder) error) (domain.Reminder, error)
}

// Directory resolves and checks destinations.
type Directory interface {
	ResolveUsername(ctx context.Context, username string) (int64, error)
	DefaultGroup() (int64, error)
	EnsureReachable(ctx context.Context, chatID int64) error
}

// Forgetter drops delivery state of a deleted reminder.
type Forgetter interface {
	Forget(ctx context.Context, reminderID string) error
}

// Config tunes the engine.
type Config struct {
	// Timeout discards sessions idle for longer. Default 15m.
	Timeout time.Duration
	// RequestConfirmation is stored on new reminders.
	RequestConfirmation bool
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Engine owns all wizard sessions. It is safe for concurrent use; events for
// the same chat and user are handled one at a time.
type Engine struct {
	store  Store
	dir    Directory
	forget Forgetter
	calc   recurrence.Calculator
	cfg    Config
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session
	// touched holds the last input time per session; guarded by mu.
	touched map[*session]time.Time
}

// New returns an Engine. forget may be nil.
func New(st Store, dir Directory, forget Forgetter, calc recurrence.Calculator, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	lg := log.Logger
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	return &Engine{
		store:    st,
		dir:      dir,
		forget:   forget,
		calc:     calc,
		cfg:      cfg,
		log:      lg.With().Str("component", "conversation").Logger(),
		sessions: make(map[sessionKey]*session),
		touched:  make(map[*session]time.Time),
	}
}

// Handle processes one event and returns the replies for the originating
// chat.
//
// Invalid input never returns an error: the reply explains what was
// expected and repeats the question. Errors are ErrUnknownCommand,
// ErrNoSession for stray text, or a failure from the store or directory;
// errors.Is(err, store.ErrPersistence) means the process should stop.
func (e *Engine) Handle(ctx context.Context, ev Event) ([]Reply, error) {
	k := sessionKey{chatID: ev.ChatID, userID: ev.UserID}
	now := e.now()

	if ev.Kind == EventCommand {
		switch ev.Command {
		case "newreminder":
			return e.begin(k, now), nil
		case "editreminder":
			return e.beginEdit(k, ev.Args, now)
		case "deletereminder":
			return e.beginDelete(ctx, k, ev.Args, now)
		case "listreminders":
			return []Reply{done(e.listing(ev.UserID))}, nil
		case "cancel":
			e.Cancel(ev.ChatID, ev.UserID)
			return []Reply{done("❌ Operation cancelled.")}, nil
		case "done":
		default:
			return nil, ErrUnknownCommand
		}
	}

	s, expired := e.lookup(k, now)
	if s == nil {
		if expired {
			return []Reply{done("⌛ That conversation timed out. Start again with /newreminder.")}, nil
		}
		return nil, ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !e.current(s) {
		return nil, ErrNoSession
	}

	replies, err := e.step(ctx, s, ev, now)
	var ve *ValidationError
	switch {
	case err == nil:
		return replies, nil
	case errors.As(err, &ve):
		validationErrors.WithLabelValues(ve.Field).Inc()
		e.log.Debug().
			Int64("chat_id", k.chatID).
			Str("step", s.step.String()).
			Str("field", ve.Field).
			Msg("rejected input")
		p := e.prompt(s)
		p.Text = "❌ Invalid " + ve.Field + ". Expected " + ve.Expected + ".\n\n" + p.Text
		return []Reply{p}, nil
	case errors.Is(err, store.ErrPersistence):
		e.end(s, "aborted")
		return nil, err
	default:
		e.log.Error().Err(err).
			Int64("chat_id", k.chatID).
			Str("step", s.step.String()).
			Msg("wizard step failed")
		return []Reply{say("⚠️ Something went wrong. Please try again or /cancel.")}, err
	}
}

// Cancel drops the session for chatID and userID, if any. It is safe to
// call repeatedly.
func (e *Engine) Cancel(chatID, userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := sessionKey{chatID: chatID, userID: userID}
	if s, ok := e.sessions[k]; ok {
		e.removeLocked(s)
		sessionEnds.WithLabelValues("cancelled").Inc()
		e.log.Debug().Int64("chat_id", chatID).Int64("user_id", userID).Msg("session cancelled")
	}
}

// Session returns a snapshot of the session for chatID and userID.
func (e *Engine) Session(chatID, userID int64) (Snapshot, bool) {
	e.mu.Lock()
	s, ok := e.sessions[sessionKey{chatID: chatID, userID: userID}]
	e.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), true
}

// Active returns the number of sessions in progress.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Sweep discards sessions idle since before now-Timeout and returns how many
// were removed.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.sessions {
		if now.Sub(e.touched[s]) > e.cfg.Timeout {
			e.removeLocked(s)
			sessionEnds.WithLabelValues("timeout").Inc()
			n++
		}
	}
	if n > 0 {
		e.log.Info().Int("sessions", n).Msg("expired idle sessions")
	}
	return n
}

// RunJanitor calls Sweep every interval until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Sweep(e.now())
		}
	}
}

func (e *Engine) now() time.Time {
	loc := e.calc.Location
	if loc == nil {
		loc = time.UTC
	}
	return e.cfg.Now().In(loc)
}

// start replaces any session for k with a fresh one at step.
func (e *Engine) start(k sessionKey, step Step, now time.Time) *session {
	s := &session{key: k, step: step, createdAt: now}
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.sessions[k]; ok {
		e.removeLocked(old)
		sessionEnds.WithLabelValues("cancelled").Inc()
	}
	e.sessions[k] = s
	e.touched[s] = now
	activeSessions.Set(float64(len(e.sessions)))
	return s
}

// lookup returns the live session for k and refreshes its idle timer. An
// expired session is removed and reported.
func (e *Engine) lookup(k sessionKey, now time.Time) (s *session, expired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[k]
	if !ok {
		return nil, false
	}
	if now.Sub(e.touched[s]) > e.cfg.Timeout {
		e.removeLocked(s)
		sessionEnds.WithLabelValues("timeout").Inc()
		return nil, true
	}
	e.touched[s] = now
	return s, false
}

// current reports whether s is still the registered session for its key.
func (e *Engine) current(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[s.key] == s
}

// end removes s after it finished for reason. Caller holds s.mu.
func (e *Engine) end(s *session, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[s.key] == s {
		e.removeLocked(s)
		sessionEnds.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) removeLocked(s *session) {
	delete(e.sessions, s.key)
	delete(e.touched, s)
	activeSessions.Set(float64(len(e.sessions)))
}
