package payments

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignatureLedger records which on-chain signatures already settled a payment.
type SignatureLedger interface {
	// Claim reserves signature for paymentID and reports false when it was already taken.
	Claim(ctx context.Context, signature, paymentID string) (bool, error)
}

// MemoryLedger is a process-local SignatureLedger.
type MemoryLedger struct {
	mu     sync.Mutex
	claims map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{claims: make(map[string]string)}
}

func (l *MemoryLedger) Claim(ctx context.Context, signature, paymentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.claims[signature]; ok {
		return owner == paymentID, nil
	}
	l.claims[signature] = paymentID
	return true, nil
}

// RedisLedger shares claims across instances with SETNX.
type RedisLedger struct {
	Client *redis.Client
	TTL    time.Duration
}

const ledgerPrefix = "payments:signature:"

func (l *RedisLedger) Claim(ctx context.Context, signature, paymentID string) (bool, error) {
	key := ledgerPrefix + signature
	ok, err := l.Client.SetNX(ctx, key, paymentID, l.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	owner, err := l.Client.Get(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return owner == paymentID, nil
}
