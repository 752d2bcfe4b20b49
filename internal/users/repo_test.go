package users

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMemoryRepoCreateRejectsDuplicateEmail(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, User{ID: "u1", Email: "A@example.com", Provider: ProviderLocal}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, User{ID: "u2", Email: "a@example.com "}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := repo.GetByEmail(ctx, "a@EXAMPLE.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("GetByEmail = %+v, %v", got, err)
	}
}

func TestMemoryRepoUpsertLinksExistingEmail(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	_ = repo.Create(ctx, User{ID: "u1", Email: "a@example.com", Provider: ProviderLocal})

	linked, err := repo.Upsert(ctx, User{ID: "google:123", Email: "a@example.com", FullName: "Ana", Provider: ProviderGoogle})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if linked.ID != "u1" || linked.FullName != "Ana" {
		t.Fatalf("expected existing account to be linked, got %+v", linked)
	}
}

func TestPGRepoCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "a@example.com", "hash", nil, nil, ProviderLocal).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), User{ID: "u1", Email: "a@example.com", PasswordHash: "hash", Provider: ProviderLocal})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestPGRepoGetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByEmail(context.Background(), "Missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
