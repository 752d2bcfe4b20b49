package credits

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps balances in memory and is safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	freeCredits int
	balances    map[string]Balance
}

// NewMemoryStore constructs a MemoryStore granting freeCredits to new users.
func NewMemoryStore(freeCredits int) *MemoryStore {
	if freeCredits < 0 {
		freeCredits = 0
	}
	return &MemoryStore{freeCredits: freeCredits, balances: make(map[string]Balance)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *MemoryStore) Consume(ctx context.Context, userID string, n int) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.ensureLocked(userID)
	if b.Credits < n {
		return b, ErrInsufficientCredits
	}
	b.Credits -= n
	b.UpdatedAt = time.Now().UTC()
	s.balances[userID] = b
	return b, nil
}

func (s *MemoryStore) Grant(ctx context.Context, userID string, n int) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.ensureLocked(userID)
	b.Credits += n
	b.UpdatedAt = time.Now().UTC()
	s.balances[userID] = b
	return b, nil
}

func (s *MemoryStore) ensureLocked(userID string) Balance {
	if b, ok := s.balances[userID]; ok {
		return b
	}
	b := Balance{UserID: userID, Credits: s.freeCredits, UpdatedAt: time.Now().UTC()}
	s.balances[userID] = b
	return b
}
