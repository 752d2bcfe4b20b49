package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, user_id, timeframe, source, recommendation, certainty, result, chart_key, model, telegram_user_id, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	payload, err := json.Marshal(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.UserID,
		analysis.Timeframe,
		string(analysis.Source),
		analysis.Result.Recommendation,
		analysis.Result.Certainty,
		payload,
		nullableString(analysis.ChartKey),
		nullableString(analysis.Model),
		nullableInt64(analysis.TelegramUserID),
		analysis.CreatedAt,
	)
	return err
}

const selectColumns = `id, user_id, timeframe, source, result, chart_key, model, telegram_user_id, created_at`

// GetByID returns an analysis owned by userID.
func (r *PGRepo) GetByID(ctx context.Context, userID, analysisID string) (Analysis, error) {
	query := `SELECT ` + selectColumns + `
FROM analyses
WHERE id = $1 AND user_id = $2
LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

// ListByUser returns analyses for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + selectColumns + `
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var source string
	var result []byte
	var chartKey, model sql.NullString
	var telegramID sql.NullInt64
	if err := row.Scan(&a.ID, &a.UserID, &a.Timeframe, &source, &result, &chartKey, &model, &telegramID, &a.CreatedAt); err != nil {
		return Analysis{}, err
	}
	a.Source = Source(source)
	if len(result) > 0 {
		if err := json.Unmarshal(result, &a.Result); err != nil {
			return Analysis{}, err
		}
	}
	a.ChartKey = chartKey.String
	a.Model = model.String
	a.TelegramUserID = telegramID.Int64
	return a, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
