// Package store implements the crash-safe reminder collection.
//
// The whole collection lives in memory and is persisted to a single JSON file
// after every mutation. Writes go to a temporary file in the same directory,
// are fsynced, then renamed over the previous copy, so the on-disk file is
// always either the old or the new version. A write is only applied to the
// in-memory collection once it has reached disk.
//
// All mutations (Upsert, Delete, Mutate) are serialized by one exclusive
// lock; readers get deep copies taken under a shared lock.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

var (
	// ErrNotFound is returned when an operation references an unknown id.
	ErrNotFound = errors.New("store: reminder not found")

	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("store: reminder id already exists")

	// ErrCorrupt is returned by Open when the data file cannot be decoded.
	ErrCorrupt = errors.New("store: data file is corrupt")

	// ErrPersistence is returned when a save still fails after all retries.
	// The process should stop: memory still holds the last persisted state
	// but the caller's change was not applied.
	ErrPersistence = errors.New("store: persistence failed")
)

// fileVersion is written into every data file.
const fileVersion = 1

type fileFormat struct {
	Version   int               `json:"version"`
	Reminders []domain.Reminder `json:"reminders"`
}

// Options tunes persistence behavior.
type Options struct {
	// SaveAttempts bounds how many times a single save is tried (>= 1).
	SaveAttempts int
	// RetryBackoff is the initial wait between attempts; it grows exponentially.
	RetryBackoff time.Duration
	// Logger receives retry and failure logs; defaults to the global logger.
	Logger *zerolog.Logger
}

// FileStore is the reminder collection backed by one JSON file.
type FileStore struct {
	path string
	opts Options
	log  zerolog.Logger

	mu    sync.RWMutex
	items map[string]domain.Reminder
	order []string

	listenersMu sync.Mutex
	listeners   []func()

	// write persists data at path; replaced in tests to inject failures.
	write func(path string, data []byte) error
	// now stamps UpdatedAt; replaced in tests.
	now func() time.Time
}

// Open loads the collection from path. A missing or empty file yields an
// empty collection; undecodable content is reported as ErrCorrupt.
func Open(path string, opts Options) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: empty path")
	}
	if opts.SaveAttempts < 1 {
		opts.SaveAttempts = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}

	s := &FileStore{
		path:  path,
		opts:  opts,
		log:   lg.With().Str("component", "store").Str("path", path).Logger(),
		items: make(map[string]domain.Reminder),
		write: writeFileAtomic,
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info().Msg("data file missing, starting empty")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.log.Info().Msg("data file empty, starting empty")
		return s, nil
	}

	var f fileFormat
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, f.Version)
	}
	for i, r := range f.Reminders {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %v", ErrCorrupt, path, i, err)
		}
		if _, dup := s.items[r.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate id %q", ErrCorrupt, path, r.ID)
		}
		s.items[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	s.log.Info().Int("reminders", len(s.order)).Msg("data file loaded")
	return s, nil
}

// Path returns the data file location.
func (s *FileStore) Path() string { return s.path }

// OnChange registers fn to be called after every successful mutation.
// Callbacks run synchronously after the lock is released and must not block.
func (s *FileStore) OnChange(fn func()) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *FileStore) notify() {
	s.listenersMu.Lock()
	ls := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// Load returns every reminder in stored order.
func (s *FileStore) Load() []domain.Reminder {
	return s.List(nil)
}

// List returns, in stored order, the reminders for which pred returns true.
// A nil pred selects everything.
func (s *FileStore) List(pred func(domain.Reminder) bool) []domain.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reminder, 0, len(s.order))
	for _, id := range s.order {
		r := s.items[id]
		if pred == nil || pred(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Get returns a copy of the reminder with id.
func (s *FileStore) Get(id string) (domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return domain.Reminder{}, ErrNotFound
	}
	return r.Clone(), nil
}

// Len returns the number of stored reminders.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NewID returns a short identifier not used by any stored reminder.
func (s *FileStore) NewID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, taken := s.items[id]; !taken {
			return id
		}
	}
}

// Upsert inserts r, or replaces the stored reminder with the same id keeping
// its position.
func (s *FileStore) Upsert(ctx context.Context, r domain.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()
	r.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	order := s.order
	if _, exists := s.items[r.ID]; !exists {
		order = append(append([]string(nil), s.order...), r.ID)
	}
	err := s.commit(ctx, order, map[string]*domain.Reminder{r.ID: &r})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Create inserts r. Unlike Upsert it never replaces a stored reminder: if
// r.ID is already taken it returns ErrExists and writes nothing.
func (s *FileStore) Create(ctx context.Context, r domain.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()
	r.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	if _, exists := s.items[r.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, r.ID)
	}
	order := append(append([]string(nil), s.order...), r.ID)
	err := s.commit(ctx, order, map[string]*domain.Reminder{r.ID: &r})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Delete removes the reminder with id.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	order := make([]string, 0, len(s.order))
	for _, oid := range s.order {
		if oid != id {
			order = append(order, oid)
		}
	}
	err := s.commit(ctx, order, map[string]*domain.Reminder{id: nil})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Mutate applies fn to a copy of the reminder with id under the store's
// exclusive lock and persists the result. If fn returns an error nothing is
// written and that error is returned. The id cannot be changed by fn.
func (s *FileStore) Mutate(ctx context.Context, id string, fn func(*domain.Reminder) error) (domain.Reminder, error) {
	s.mu.Lock()
	cur, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return domain.Reminder{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return domain.Reminder{}, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return domain.Reminder{}, err
	}
	next.UpdatedAt = s.now().UTC()
	err := s.commit(ctx, s.order, map[string]*domain.Reminder{id: &next})
	s.mu.Unlock()
	if err != nil {
		return domain.Reminder{}, err
	}
	s.notify()
	return next.Clone(), nil
}

// commit persists the collection described by order with changes applied
// (a nil value deletes), then swaps it into memory. Caller holds s.mu.
func (s *FileStore) commit(ctx context.Context, order []string, changes map[string]*domain.Reminder) error {
	list := make([]domain.Reminder, 0, len(order))
	for _, id := range order {
		if r, changed := changes[id]; changed {
			if r != nil {
				list = append(list, *r)
			}
			continue
		}
		list = append(list, s.items[id])
	}

	if err := s.save(ctx, list); err != nil {
		return err
	}

	for id, r := range changes {
		if r == nil {
			delete(s.items, id)
			continue
		}
		s.items[id] = *r
	}
	s.order = order
	return nil
}

// save encodes list and writes it, retrying with exponential backoff.
func (s *FileStore) save(ctx context.Context, list []domain.Reminder) error {
	data, err := json.MarshalIndent(fileFormat{Version: fileVersion, Reminders: list}, "", "  ")
	if err != nil {
		saveTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	data = append(data, '\n')

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryBackoff
	bo.MaxInterval = 16 * s.opts.RetryBackoff

	start := time.Now()
	// A save that started must finish even if the caller is shutting down.
	_, err = backoff.Retry(context.WithoutCancel(ctx), func() (struct{}, error) {
		return struct{}{}, s.write(s.path, data)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(s.opts.SaveAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			saveRetries.Inc()
			s.log.Warn().Err(err).Dur("retry_in", wait).Msg("save failed, retrying")
		}),
	)
	saveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		saveTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int("attempts", s.opts.SaveAttempts).Msg("save failed permanently")
		return fmt.Errorf("%w: %s: %w", ErrPersistence, s.path, err)
	}
	saveTotal.WithLabelValues("ok").Inc()
	return nil
}

// writeFileAtomic writes data to a temp file beside path, fsyncs it and
// renames it over path. The directory is fsynced afterwards so the rename
// itself is durable.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir is best effort: some platforms cannot fsync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
