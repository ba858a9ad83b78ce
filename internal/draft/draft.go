// Package draft keeps the forms that visitors are currently composing. Each
// draft is addressed by a random id carried in a cookie and lives in a
// bounded LRU cache; a draft that falls out of the cache releases its photo
// previews.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vbonduro/adpost/internal/form"
)

// ErrNotFound is returned when no live draft has the requested id.
var ErrNotFound = errors.New("draft not found")

// NewFormFunc builds the form controller for a new draft.
type NewFormFunc func(id string) *form.Controller

// Draft is one visitor's form. Access to the controller is serialized.
type Draft struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	form     *form.Controller
	released bool
}

// Do runs fn with exclusive access to the draft's form. It returns
// ErrNotFound once the draft has left the store, so a request that fetched
// the draft before its eviction cannot acquire previews nobody releases.
func (d *Draft) Do(fn func(*form.Controller) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrNotFound
	}
	return fn(d.form)
}

type Store struct {
	cache   *lru.Cache[string, *Draft]
	newForm NewFormFunc
	logger  *slog.Logger
}

func NewStore(size int, newForm NewFormFunc, logger *slog.Logger) (*Store, error) {
	s := &Store{newForm: newForm, logger: logger}
	cache, err := lru.NewWithEvict[string, *Draft](size, s.release)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// release is called by the cache whenever a draft leaves it, whether by
// eviction, Discard or Close.
func (s *Store) release(id string, d *Draft) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	if err := d.form.Reset(context.Background()); err != nil {
		s.logger.Error("failed to release draft", "draft_id", id, "error", err)
		return
	}
	s.logger.Info("draft released", "draft_id", id, "age", time.Since(d.CreatedAt).Round(time.Second).String())
}

// Create starts a new empty draft.
func (s *Store) Create() *Draft {
	id := uuid.NewString()
	d := &Draft{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		form:      s.newForm(id),
	}
	if evicted := s.cache.Add(id, d); evicted {
		s.logger.Warn("draft cache full, oldest draft evicted", "size", s.cache.Len())
	}
	s.logger.Info("draft created", "draft_id", id)
	return d
}

func (s *Store) Get(id string) (*Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	d, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Discard drops the draft and releases its photos. Unknown ids are ignored.
// The caller must not hold the draft's lock.
func (s *Store) Discard(id string) {
	if s.cache.Remove(id) {
		s.logger.Info("draft discarded", "draft_id", id)
	}
}

func (s *Store) Len() int { return s.cache.Len() }

// Close releases every live draft.
func (s *Store) Close() {
	s.cache.Purge()
}
