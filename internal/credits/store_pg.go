package credits

import (
	"context"
	"database/sql"
	"time"
)

// PGStore implements Store using Postgres.
type PGStore struct {
	DB          *sql.DB
	FreeCredits int
}

// NewPGStore constructs a Postgres-backed credit store.
func NewPGStore(db *sql.DB, freeCredits int) *PGStore {
	return &PGStore{DB: db, FreeCredits: freeCredits}
}

func (s *PGStore) Get(ctx context.Context, userID string) (Balance, error) {
	return s.update(ctx, userID, 0)
}

func (s *PGStore) Consume(ctx context.Context, userID string, n int) (Balance, error) {
	return s.update(ctx, userID, -n)
}

func (s *PGStore) Grant(ctx context.Context, userID string, n int) (Balance, error) {
	return s.update(ctx, userID, n)
}

// update locks the row, applies delta and commits. A zero delta only ensures the row exists.
func (s *PGStore) update(ctx context.Context, userID string, delta int) (b Balance, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err = s.lockAndEnsure(ctx, tx, userID)
	if err != nil {
		return Balance{}, err
	}
	if delta != 0 {
		if b.Credits+delta < 0 {
			err = ErrInsufficientCredits
			return Balance{}, err
		}
		b.Credits += delta
		b.UpdatedAt = time.Now().UTC()
		if _, err = tx.ExecContext(ctx, `
UPDATE credits SET balance = $1, updated_at = $2 WHERE user_id = $3`, b.Credits, b.UpdatedAt, userID); err != nil {
			return Balance{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// lockAndEnsure creates the row with the starting allowance when absent, then locks it.
// ON CONFLICT keeps concurrent first accesses from racing on the insert.
func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string) (Balance, error) {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO credits (user_id, balance, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING`, userID, s.FreeCredits, time.Now().UTC()); err != nil {
		return Balance{}, err
	}

	b := Balance{UserID: userID}
	if err := tx.QueryRowContext(ctx, `
SELECT balance, updated_at FROM credits WHERE user_id = $1 FOR UPDATE`, userID).Scan(&b.Credits, &b.UpdatedAt); err != nil {
		return Balance{}, err
	}
	return b, nil
}
