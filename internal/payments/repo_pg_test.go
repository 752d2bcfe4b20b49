package payments

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	p := Payment{
		ID:              "pay-1",
		UserID:          "user-1",
		SenderAddress:   testSender,
		ReceiverAddress: testReceiver,
		ExpectedAmount:  decimal.RequireFromString("0.02"),
		Credits:         2,
		Status:          StatusPending,
		CreatedAt:       testNow,
		ExpiresAt:       testNow.Add(ExpiryWindow),
	}

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.UserID, p.SenderAddress, p.ReceiverAddress, sqlmock.AnyArg(), p.Credits, p.Status, p.CreatedAt, p.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoGetByIDScansNullableColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	columns := []string{"id", "user_id", "sender_address", "receiver_address", "expected_amount", "credits", "status", "signature", "created_at", "expires_at", "verified_at", "credits_granted"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1")).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("pay-1", "user-1", testSender, testReceiver, "0.020000000", 2, StatusPending, nil, testNow, testNow.Add(ExpiryWindow), nil, false))

	p, err := repo.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.True(t, p.ExpectedAmount.Equal(decimal.RequireFromString("0.02")))
	assert.Empty(t, p.Signature)
	assert.Nil(t, p.VerifiedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGRepoMarkVerifiedLocksRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := testNow.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM payments WHERE id = $1 FOR UPDATE")).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusPending))
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs("pay-1", StatusVerified, "sig-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkVerified(context.Background(), "pay-1", "sig-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoMarkCancelledRejectsSettled(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM payments WHERE id = $1 FOR UPDATE")).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusVerified))
	mock.ExpectRollback()

	err := repo.MarkCancelled(context.Background(), "pay-1")
	assert.ErrorIs(t, err, ErrNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoMarkGranted(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET credits_granted = true WHERE id = $1")).
		WithArgs("pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkGranted(context.Background(), "pay-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET credits_granted = true WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkGranted(context.Background(), "missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
