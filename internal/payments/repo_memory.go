package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores payments in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Payment
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Payment)}
}

func (r *MemoryRepo) Create(ctx context.Context, p Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[paymentID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) MarkVerified(ctx context.Context, paymentID, signature string, at time.Time) error {
	return r.transition(ctx, paymentID, func(p *Payment) {
		p.Status = StatusVerified
		p.Signature = signature
		verifiedAt := at
		p.VerifiedAt = &verifiedAt
	})
}

func (r *MemoryRepo) MarkCancelled(ctx context.Context, paymentID string) error {
	return r.transition(ctx, paymentID, func(p *Payment) {
		p.Status = StatusCancelled
	})
}

func (r *MemoryRepo) MarkGranted(ctx context.Context, paymentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[paymentID]
	if !ok {
		return ErrNotFound
	}
	p.CreditsGranted = true
	r.byID[paymentID] = p
	return nil
}

func (r *MemoryRepo) transition(ctx context.Context, paymentID string, apply func(*Payment)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[paymentID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return ErrNotPending
	}
	apply(&p)
	r.byID[paymentID] = p
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := []Payment{}
	for _, p := range r.byID {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
