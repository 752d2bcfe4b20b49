package payments

import (
	"context"
	"time"
)

// Repo defines persistence operations for payments.
type Repo interface {
	Create(ctx context.Context, p Payment) error
	GetByID(ctx context.Context, paymentID string) (Payment, error)
	// MarkVerified transitions a pending payment; ErrNotPending when it already left pending.
	MarkVerified(ctx context.Context, paymentID, signature string, at time.Time) error
	// MarkCancelled transitions a pending payment; ErrNotPending when it already left pending.
	MarkCancelled(ctx context.Context, paymentID string) error
	// MarkGranted records that the purchased credits reached the user balance.
	MarkGranted(ctx context.Context, paymentID string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error)
}
