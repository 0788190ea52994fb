// Package memory provides an in-process Store for single-instance and
// test deployments. Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emberlink/go-identity-broker/storage"
)

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// Store is a mutex-guarded map with a background janitor that purges
// expired entries. All operations are O(1) map accesses, so a single
// exclusion scope is adequate.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	nowTime func() time.Time
}

// StoreOption modifies a Store instance.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// New creates a memory store. cleanupInterval is how often the janitor
// sweeps expired entries; expiry is also enforced on every read, so the
// sweep only bounds memory growth.
func New(cleanupInterval time.Duration, options ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	go s.cleanupLoop(cleanupInterval)
	return s
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: s.nowTime().Add(ttl),
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || s.nowTime().After(e.expiresAt) {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(s.entries, key)
	if s.nowTime().After(e.expiresAt) {
		return nil, storage.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = entry{expiresAt: now.Add(ttl)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

// Close stops the janitor goroutine.
func (s *Store) Close() error {
	close(s.done)
	return nil
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}
