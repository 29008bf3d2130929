// Package sessions keeps merge sessions between HTTP requests.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"pdfmerge/internal/domain"
	"pdfmerge/internal/infra/logging"
	"pdfmerge/internal/merge"
)

type entry struct {
	mu       sync.Mutex
	session  *merge.Session
	lastUsed time.Time
	closed   bool
}

// Store maps session ids to merge sessions. Each session is used by one
// request at a time; the store serialises access per id.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	codec   merge.Codec
	ttl     time.Duration
	now     func() time.Time
}

// NewStore returns a store creating sessions on codec. Sessions idle for
// longer than ttl are removed by Sweep; ttl <= 0 disables expiry.
func NewStore(codec merge.Codec, ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		codec:   codec,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a new empty session and returns its id.
func (s *Store) Create() string {
	id := xid.New().String()
	e := &entry{session: merge.NewSession(s.codec), lastUsed: s.now()}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
	return id
}

// With runs fn with exclusive access to the session id.
func (s *Store) With(id string, fn func(*merge.Session) error) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrSessionNotFound
	}
	e.lastUsed = s.now()
	return fn(e.session)
}

// Delete closes and forgets the session id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.close()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep closes sessions idle for longer than the ttl and reports how many
// were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	expired := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		// Closed under e.mu: a With waiting on the entry then sees closed.
		if e.lastUsed.Before(cutoff) {
			e.closeLocked()
			delete(s.entries, id)
			expired++
		}
		e.mu.Unlock()
	}
	return expired
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logging.Info("Expired merge sessions", "count", n, "live", s.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases every session.
func (s *Store) Close() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
}

func (e *entry) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *entry) closeLocked() {
	e.closed = true
	_ = e.session.Close()
}
