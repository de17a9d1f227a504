package booking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps bookings in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Booking
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Booking), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, nb NewBooking) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.rows[s.nextID] = newRecord(nb, s.nextID, s.now())
	return s.nextID, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Booking, 0, len(s.rows))
	for _, b := range s.rows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.rows[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now().UTC()
	b.Status = status
	b.UpdatedAt = &now
	s.rows[id] = b
	return nil
}

func (s *MemoryStore) Close() error { return nil }
