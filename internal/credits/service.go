package credits

import (
	"context"
	"strings"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Store persists balances. Get creates the row with the starting allowance when absent.
type Store interface {
	Get(ctx context.Context, userID string) (Balance, error)
	Consume(ctx context.Context, userID string, n int) (Balance, error)
	Grant(ctx context.Context, userID string, n int) (Balance, error)
}

// Service manages credit balances via an underlying store.
type Service struct {
	store Store
}

// NewService constructs a Service with an in-memory store.
func NewService(freeCredits int) *Service {
	return &Service{store: NewMemoryStore(freeCredits)}
}

// NewServiceWithStore constructs a Service backed by the given store.
func NewServiceWithStore(store Store) *Service {
	return &Service{store: store}
}

// Balance returns the user's balance.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	return s.store.Get(ctx, normalizeID(userID))
}

// CanConsume reports whether the user holds at least n credits.
func (s *Service) CanConsume(ctx context.Context, userID string, n int) (bool, Balance, error) {
	b, err := s.store.Get(ctx, normalizeID(userID))
	if err != nil {
		return false, Balance{}, err
	}
	if n <= 0 {
		return true, b, nil
	}
	return b.Credits >= n, b, nil
}

// Consume debits n credits or fails with ErrInsufficientCredits.
func (s *Service) Consume(ctx context.Context, userID string, n int) (Balance, error) {
	if n <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	b, err := s.store.Consume(ctx, normalizeID(userID), n)
	if err != nil {
		return Balance{}, err
	}
	telemetry.Info("credits.consumed", map[string]any{"user_id": b.UserID, "amount": n, "balance": b.Credits})
	return b, nil
}

// Grant credits n to the user.
func (s *Service) Grant(ctx context.Context, userID string, n int) (Balance, error) {
	if n <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	b, err := s.store.Grant(ctx, normalizeID(userID), n)
	if err != nil {
		return Balance{}, err
	}
	telemetry.Info("credits.granted", map[string]any{"user_id": b.UserID, "amount": n, "balance": b.Credits})
	return b, nil
}

func normalizeID(userID string) string {
	return strings.TrimSpace(userID)
}
