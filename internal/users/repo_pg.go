package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, email, password_hash, full_name, picture_url, provider, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		emailKey(user.Email),
		nullableString(user.PasswordHash),
		nullableString(user.FullName),
		nullableString(user.PictureURL),
		user.Provider,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (r *PGRepo) Upsert(ctx context.Context, user User) (User, error) {
	const query = `
INSERT INTO users (id, email, full_name, picture_url, provider, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (email) DO UPDATE SET
  full_name = COALESCE(EXCLUDED.full_name, users.full_name),
  picture_url = COALESCE(EXCLUDED.picture_url, users.picture_url),
  updated_at = now()
RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, query,
		user.ID,
		emailKey(user.Email),
		nullableString(user.FullName),
		nullableString(user.PictureURL),
		user.Provider,
	))
}

const userColumns = `id, email, password_hash, full_name, picture_url, provider, created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, userID))
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, emailKey(email)))
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	var passwordHash, fullName, pictureURL sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&fullName,
		&pictureURL,
		&user.Provider,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.PasswordHash = passwordHash.String
	user.FullName = fullName.String
	user.PictureURL = pictureURL.String
	return user, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
