package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. Used by tests and for
// running the bot without a database; contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]*User // keyed by telegram id
	order   []int64         // user insertion order
	blocked map[int64]BlockRecord
	events  []rateEvent

	orders   []time.Time
	products int64
}

type rateEvent struct {
	telegramID int64
	kind       ActionKind
	at         time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int64]*User),
		blocked: make(map[int64]BlockRecord),
	}
}

func (s *MemoryStore) FindUser(_ context.Context, telegramID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.TelegramID]; ok {
		existing.LastActivity = time.Now().UTC()
		*u = *existing
		return nil
	}
	s.nextID++
	now := time.Now().UTC()
	cp := *u
	cp.ID = s.nextID
	cp.CreatedAt = now
	cp.LastActivity = now
	s.users[u.TelegramID] = &cp
	s.order = append(s.order, u.TelegramID)
	*u = cp
	return nil
}

func (s *MemoryStore) ListUserIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, len(s.order))
	copy(ids, s.order)
	return ids, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) CountUsersSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocked[telegramID]
	return ok, nil
}

func (s *MemoryStore) CreateBlock(_ context.Context, rec BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocked[rec.TelegramID]; ok {
		return ErrDuplicate
	}
	if rec.BlockedAt.IsZero() {
		rec.BlockedAt = time.Now().UTC()
	}
	s.blocked[rec.TelegramID] = rec
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocked[telegramID]; !ok {
		return false, nil
	}
	delete(s.blocked, telegramID)
	return true, nil
}

func (s *MemoryStore) ListBlocked(_ context.Context) ([]BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]BlockRecord, 0, len(s.blocked))
	for _, r := range s.blocked {
		recs = append(recs, r)
	}
	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			if recs[j].BlockedAt.After(recs[i].BlockedAt) {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}
	return recs, nil
}

func (s *MemoryStore) CountRateEvents(_ context.Context, telegramID int64, kind ActionKind, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, e := range s.events {
		if e.telegramID == telegramID && e.kind == kind && !e.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateRateEvent(_ context.Context, telegramID int64, kind ActionKind, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rateEvent{telegramID: telegramID, kind: kind, at: at})
	return nil
}

func (s *MemoryStore) DeleteRateEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

func (s *MemoryStore) CountOrders(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func (s *MemoryStore) CountOrdersSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, at := range s.orders {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountProducts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products, nil
}

// AddOrder records an order timestamp. Test helper.
func (s *MemoryStore) AddOrder(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, at)
}

// SetProducts sets the catalog size. Test helper.
func (s *MemoryStore) SetProducts(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = n
}

func (s *MemoryStore) Close() error {
	return nil
}
