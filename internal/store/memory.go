package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store with the same capacity and ordering
// semantics as the Redis implementation. It backs tests and local
// development without a cache server.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string][]*Message
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{rooms: make(map[string][]*Message), capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, room string, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.rooms[room], m)
	if len(log) > s.capacity {
		log = log[len(log)-s.capacity:]
	}
	s.rooms[room] = log
	return nil
}

func (s *MemoryStore) Range(_ context.Context, room string, limit, offset int) ([]*Message, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.rooms[room]
	end := len(log) - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]*Message, end-start)
	copy(out, log[start:end])
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, room string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rooms[room])), nil
}

func (s *MemoryStore) Search(_ context.Context, room, term string) ([]*Message, error) {
	if term == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.rooms[room] {
		if m.Body.Contains(term) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
	return nil
}
