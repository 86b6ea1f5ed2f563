package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Fetch loads a value from its source of truth.
type Fetch[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Store is a keyed read-through cache over upstream responses. Reads within
// the staleness window return the cached copy; a read of a stale entry
// returns the stale copy and refetches in the background; a miss fetches
// synchronously with one automatic retry before the error is surfaced.
type Store[T any] struct {
	staleAfter time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	entries    map[string]entry[T]
	refreshing map[string]bool

	now func() time.Time
}

func New[T any](staleAfter time.Duration, logger *slog.Logger) *Store[T] {
	return &Store[T]{
		staleAfter: staleAfter,
		logger:     logger,
		entries:    make(map[string]entry[T]),
		refreshing: make(map[string]bool),
		now:        time.Now,
	}
}

func (s *Store[T]) Get(ctx context.Context, key string, fetch Fetch[T]) (T, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		age := s.now().Sub(e.fetchedAt)
		if age < s.staleAfter {
			s.mu.Unlock()
			return e.value, nil
		}
		if !s.refreshing[key] {
			s.refreshing[key] = true
			go s.refresh(context.WithoutCancel(ctx), key, fetch)
		}
		s.mu.Unlock()
		return e.value, nil
	}
	s.mu.Unlock()

	value, err := s.fetchWithRetry(ctx, key, fetch)
	if err != nil {
		var zero T
		return zero, err
	}

	s.store(key, value)
	return value, nil
}

// refresh replaces a stale entry off the request path. Failures keep the
// stale copy; the next stale read tries again.
func (s *Store[T]) refresh(ctx context.Context, key string, fetch Fetch[T]) {
	value, err := s.fetchWithRetry(ctx, key, fetch)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshing, key)
	if err != nil {
		s.logger.Warn("background cache refresh failed", "key", key, "error", err)
		return
	}
	s.entries[key] = entry[T]{value: value, fetchedAt: s.now()}
}

func (s *Store[T]) fetchWithRetry(ctx context.Context, key string, fetch Fetch[T]) (T, error) {
	value, err := fetch(ctx)
	if err == nil {
		return value, nil
	}
	s.logger.Warn("cache fetch failed, retrying once", "key", key, "error", err)

	value, err = fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

func (s *Store[T]) store(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[T]{value: value, fetchedAt: s.now()}
}

// Invalidate drops one key so the next read refetches.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// InvalidatePrefix drops every key under a prefix, used when a mutation
// affects a family of cached lists.
func (s *Store[T]) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
}
