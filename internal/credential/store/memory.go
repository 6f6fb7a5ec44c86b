package store

import (
	"context"
	"sync"
	"time"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/pkg/platform/sentinel"
)

// DefaultMemoryTTL bounds how long the in-process store keeps a record.
const DefaultMemoryTTL = 24 * time.Hour

type memoryEntry struct {
	rec     credential.Record
	expires time.Time
}

// MemoryStore is an in-process expiring map. It is the last-resort backend
// when neither Postgres nor Redis is reachable.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[credential.ID]memoryEntry
	ttl     time.Duration
	clock   func() time.Time

	stop chan struct{}
	once sync.Once
}

type MemoryOption func(*MemoryStore)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemory builds a MemoryStore. Call Start to run the janitor.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[credential.ID]memoryEntry),
		ttl:     DefaultMemoryTTL,
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start evicts expired entries every interval until Close.
func (s *MemoryStore) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Evict()
			}
		}
	}()
}

// Close stops the janitor, if running.
func (s *MemoryStore) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
}

// Evict drops every expired entry and reports how many were removed.
func (s *MemoryStore) Evict() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Save(_ context.Context, rec credential.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[rec.ID]; ok && s.clock().Before(e.expires) {
		return sentinel.ErrConflict
	}
	s.entries[rec.ID] = memoryEntry{rec: rec, expires: s.clock().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id credential.ID) (credential.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || !s.clock().Before(e.expires) {
		return credential.Record{}, sentinel.ErrNotFound
	}
	return e.rec, nil
}

func (s *MemoryStore) FindByRef(ctx context.Context, ref credential.Ref) (credential.Record, error) {
	id, err := credential.ParseRef(ref)
	if err != nil {
		return credential.Record{}, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *MemoryStore) FindByNumber(_ context.Context, n identity.Number) ([]credential.Record, error) {
	return s.filter(func(rec credential.Record) bool {
		return rec.Number == n
	}), nil
}

func (s *MemoryStore) FindBySubjects(_ context.Context, subjects []did.DID) ([]credential.Record, error) {
	set := did.NewSet(subjects)
	return s.filter(func(rec credential.Record) bool {
		return set.Contains(rec.SubjectDID)
	}), nil
}

func (s *MemoryStore) Stats(_ context.Context) (credential.Stats, error) {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	producers := make(map[identity.Number]struct{})
	stats := credential.Stats{}
	for _, e := range s.entries {
		if !now.Before(e.expires) {
			continue
		}
		stats.TotalCredentials++
		producers[e.rec.Number] = struct{}{}
	}
	stats.UniqueProducers = len(producers)
	return stats, nil
}

func (s *MemoryStore) Health(context.Context) error {
	return nil
}

func (s *MemoryStore) filter(keep func(credential.Record) bool) []credential.Record {
	now := s.clock()
	s.mu.RLock()
	out := make([]credential.Record, 0)
	for _, e := range s.entries {
		if now.Before(e.expires) && keep(e.rec) {
			out = append(out, e.rec)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out
}
