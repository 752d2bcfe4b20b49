package payments

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, p Payment) error {
	const query = `
INSERT INTO payments (id, user_id, sender_address, receiver_address, expected_amount, credits, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.SenderAddress,
		p.ReceiverAddress,
		p.ExpectedAmount,
		p.Credits,
		p.Status,
		p.CreatedAt,
		p.ExpiresAt,
	)
	return err
}

const paymentColumns = `id, user_id, sender_address, receiver_address, expected_amount, credits, status, signature, created_at, expires_at, verified_at, credits_granted`

func (r *PGRepo) GetByID(ctx context.Context, paymentID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) MarkVerified(ctx context.Context, paymentID, signature string, at time.Time) error {
	return r.transition(ctx, paymentID, `
UPDATE payments SET status = $2, signature = $3, verified_at = $4 WHERE id = $1`, StatusVerified, signature, at)
}

func (r *PGRepo) MarkCancelled(ctx context.Context, paymentID string) error {
	return r.transition(ctx, paymentID, `
UPDATE payments SET status = $2 WHERE id = $1`, StatusCancelled)
}

func (r *PGRepo) MarkGranted(ctx context.Context, paymentID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE payments SET credits_granted = true WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// transition locks the row, checks it is still pending and applies update.
func (r *PGRepo) transition(ctx context.Context, paymentID, update string, args ...any) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	if err = tx.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = $1 FOR UPDATE`, paymentID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return err
	}
	if status != StatusPending {
		err = ErrNotPending
		return err
	}
	if _, err = tx.ExecContext(ctx, update, append([]any{paymentID}, args...)...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	var signature sql.NullString
	var verifiedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.SenderAddress,
		&p.ReceiverAddress,
		&p.ExpectedAmount,
		&p.Credits,
		&p.Status,
		&signature,
		&p.CreatedAt,
		&p.ExpiresAt,
		&verifiedAt,
		&p.CreditsGranted,
	)
	if err != nil {
		return Payment{}, err
	}
	p.Signature = signature.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	return p, nil
}
