package memory

import (
	"context"
	"sync"

	"duel-match-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchStore, used by tests
// and the demo runner. Mutations are serialized by a mutex; watchers receive
// snapshots in commit order.
type MatchStore struct {
	mu       sync.RWMutex
	matches  map[string]*domain.Match
	watchers map[string]map[chan *domain.Match]struct{}
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches:  make(map[string]*domain.Match),
		watchers: make(map[string]map[chan *domain.Match]struct{}),
	}
}

func (s *MatchStore) Create(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[m.Code]; exists {
		return domain.ErrCodeTaken
	}
	s.matches[m.Code] = m.Clone()
	s.broadcastLocked(m.Code)
	return nil
}

func (s *MatchStore) Get(_ context.Context, code string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MatchStore) UpdateFields(_ context.Context, code string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[code]
	if !ok {
		return domain.ErrNotFound
	}
	next := m.Clone()
	for path, value := range fields {
		if p, isPlayer := value.(*domain.Player); isPlayer {
			value = p.Clone()
		}
		if err := next.ApplyField(path, value); err != nil {
			return err
		}
	}
	s.matches[code] = next
	s.broadcastLocked(code)
	return nil
}

func (s *MatchStore) Mutate(_ context.Context, code string, fn func(*domain.Match) error) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := m.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.matches[code] = next
	s.broadcastLocked(code)
	return next.Clone(), nil
}

func (s *MatchStore) Watch(_ context.Context, code string) (<-chan *domain.Match, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[code]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}

	ch := make(chan *domain.Match, 8)
	if s.watchers[code] == nil {
		s.watchers[code] = make(map[chan *domain.Match]struct{})
	}
	s.watchers[code][ch] = struct{}{}
	ch <- m.Clone()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[code][ch]; ok {
			delete(s.watchers[code], ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *MatchStore) broadcastLocked(code string) {
	m, ok := s.matches[code]
	if !ok {
		return
	}
	for ch := range s.watchers[code] {
		snapshot := m.Clone()
		select {
		case ch <- snapshot:
		default:
			// Drop the stale update so a slow watcher never blocks a write.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
