// Package cases tracks investigator notes and case actions per anchor key
// and keeps them in sync with the backend.
package cases

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fraud-workbench/internal/anchor"
	wberrors "fraud-workbench/internal/errors"
)

// Note is one investigator note. Pending notes have not been confirmed by
// the backend yet.
type Note struct {
	ID        int       `json:"id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Pending   bool      `json:"-"`
}

// Action is the latest case action on an anchor key.
type Action struct {
	Status     string    `json:"status"`
	LastAction string    `json:"last_action"`
	Timestamp  time.Time `json:"timestamp"`
}

// Mirror keeps confirmed entries outside the process.
type Mirror interface {
	AppendNote(ctx context.Context, key anchor.Key, n Note) error
	SetAction(ctx context.Context, key anchor.Key, a Action) error
	Load(ctx context.Context, key anchor.Key) ([]Note, *Action, error)
}

// Store holds notes and actions keyed by anchor key. Submissions for one
// key are serialized; different keys proceed concurrently.
type Store struct {
	backend Backend
	mirror  Mirror
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	notes    map[anchor.Key][]Note
	actions  map[anchor.Key]Action
	hydrated map[anchor.Key]bool

	locksMu sync.Mutex
	locks   map[anchor.Key]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMirror attaches a mirror for confirmed entries.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithClock overrides the local clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store persisting through backend.
func NewStore(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:  backend,
		logger:   logger,
		now:      time.Now,
		notes:    make(map[anchor.Key][]Note),
		actions:  make(map[anchor.Key]Action),
		hydrated: make(map[anchor.Key]bool),
		locks:    make(map[anchor.Key]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) keyLock(key anchor.Key) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// AddNote appends a note for a. The note is shown as pending until the
// backend confirms it and removed again if the backend rejects it.
func (s *Store) AddNote(ctx context.Context, a anchor.Anchor, text string) (Note, error) {
	const op = "cases.AddNote"
	text = strings.TrimSpace(text)
	if a.IsZero() {
		return Note{}, wberrors.New(op, wberrors.KindNoSelection, "select an anchor before adding notes")
	}
	if text == "" {
		return Note{}, wberrors.Validation(op, "note text is empty")
	}

	key := a.Key()
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	idx := len(s.notes[key])
	s.notes[key] = append(s.notes[key], Note{Text: text, Timestamp: s.now(), Pending: true})
	s.mu.Unlock()

	conf, err := s.backend.SaveNote(ctx, a, text)
	if err != nil {
		s.mu.Lock()
		s.notes[key] = s.notes[key][:idx]
		s.mu.Unlock()
		return Note{}, wberrors.Wrap(op, wberrors.KindPersistence, err)
	}

	note := Note{ID: conf.ID, Text: text, Timestamp: conf.CreatedAt}
	if note.Timestamp.IsZero() {
		note.Timestamp = s.now()
	}

	s.mu.Lock()
	s.notes[key][idx] = note
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.AppendNote(ctx, key, note); err != nil {
			s.logger.Warn("failed to mirror note", "key", key.String(), "error", err)
		}
	}
	return note, nil
}

// RecordAction saves an investigator action and sets the case status from
// the action policy. The stored record is replaced, never appended.
func (s *Store) RecordAction(ctx context.Context, a anchor.Anchor, action string) (Action, error) {
	const op = "cases.RecordAction"
	action = NormalizeAction(action)
	if a.IsZero() {
		return Action{}, wberrors.New(op, wberrors.KindNoSelection, "select an anchor before taking action")
	}
	if action == "" {
		return Action{}, wberrors.Validation(op, "action is required")
	}
	status := StatusFor(action)

	key := a.Key()
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	conf, err := s.backend.SaveAction(ctx, a, action, status)
	if err != nil {
		return Action{}, wberrors.Wrap(op, wberrors.KindPersistence, err)
	}

	rec := Action{Status: status, LastAction: action, Timestamp: conf.CreatedAt}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	s.mu.Lock()
	s.actions[key] = rec
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.SetAction(ctx, key, rec); err != nil {
			s.logger.Warn("failed to mirror action", "key", key.String(), "error", err)
		}
	}
	return rec, nil
}

// Notes returns the notes for key in submission order.
func (s *Store) Notes(key anchor.Key) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, len(s.notes[key]))
	copy(out, s.notes[key])
	return out
}

// Action returns the current action record for key.
func (s *Store) Action(key anchor.Key) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[key]
	return a, ok
}

// Status returns the case status for key, Open when no action was taken.
func (s *Store) Status(key anchor.Key) string {
	if a, ok := s.Action(key); ok {
		return a.Status
	}
	return StatusOpen
}

// Hydrate loads mirrored entries for key the first time it is viewed.
// Mirrored notes come first, followed by local notes the mirror does not
// hold yet. A local action is newer than the mirrored one and is kept.
func (s *Store) Hydrate(ctx context.Context, key anchor.Key) error {
	if s.mirror == nil || key == "" {
		return nil
	}

	// Wait for in-flight submissions on key so no pending note is merged.
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	done := s.hydrated[key]
	s.mu.RUnlock()
	if done {
		return nil
	}

	notes, action, err := s.mirror.Load(ctx, key)
	if err != nil {
		return wberrors.Wrap("cases.Hydrate", wberrors.KindPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated[key] = true
	s.notes[key] = mergeNotes(notes, s.notes[key])
	if _, ok := s.actions[key]; !ok && action != nil {
		s.actions[key] = *action
	}
	return nil
}

func mergeNotes(mirrored, local []Note) []Note {
	if len(mirrored) == 0 {
		return local
	}
	out := make([]Note, 0, len(mirrored)+len(local))
	out = append(out, mirrored...)
	for _, n := range local {
		if !containsNote(mirrored, n) {
			out = append(out, n)
		}
	}
	return out
}

func containsNote(list []Note, n Note) bool {
	for _, m := range list {
		if m.ID == n.ID && m.Text == n.Text && m.Timestamp.Equal(n.Timestamp) {
			return true
		}
	}
	return false
}

// Keys returns every anchor key with notes or an action.
func (s *Store) Keys() []anchor.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[anchor.Key]bool)
	var keys []anchor.Key
	for k, n := range s.notes {
		if len(n) > 0 && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range s.actions {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
