package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchpay/gateway/models"
	"go.uber.org/zap"
)

func TestGuardRepositoryCreateIfAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	guard := models.NewIdempotencyGuard("tok-1", "merchant-1", "abc123")

	mock.ExpectExec("INSERT INTO idempotency_guards").
		WithArgs(guard.Token, guard.MerchantID, guard.Fingerprint, guard.State, nil, nil, guard.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.CreateIfAbsent(context.Background(), guard)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryCreateIfAbsentAlreadyExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	guard := models.NewIdempotencyGuard("tok-1", "merchant-1", "abc123")

	mock.ExpectExec("INSERT INTO idempotency_guards").
		WithArgs(guard.Token, guard.MerchantID, guard.Fingerprint, guard.State, nil, nil, guard.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfAbsent(context.Background(), guard)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryGetByToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	txID := uuid.New()
	createdAt := time.Now().UTC()
	snapshot := []byte(`{"id":"` + txID.String() + `","status":"succeeded"}`)

	rows := sqlmock.NewRows([]string{
		"token", "merchant_id", "fingerprint", "state", "transaction_id", "response_snapshot", "created_at",
	}).AddRow("tok-1", "merchant-1", "abc123", "completed", txID.String(), snapshot, createdAt)

	mock.ExpectQuery("SELECT (.+) FROM idempotency_guards").
		WithArgs("tok-1").
		WillReturnRows(rows)

	guard, err := repo.GetByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", guard.Token)
	assert.Equal(t, "merchant-1", guard.MerchantID)
	assert.Equal(t, "abc123", guard.Fingerprint)
	assert.Equal(t, models.GuardStateCompleted, guard.State)
	require.NotNil(t, guard.TransactionID)
	assert.Equal(t, txID, *guard.TransactionID)
	assert.JSONEq(t, string(snapshot), string(guard.ResponseSnapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryGetByTokenInProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	createdAt := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"token", "merchant_id", "fingerprint", "state", "transaction_id", "response_snapshot", "created_at",
	}).AddRow("tok-1", "merchant-1", "abc123", "in-progress", nil, nil, createdAt)

	mock.ExpectQuery("SELECT (.+) FROM idempotency_guards").
		WithArgs("tok-1").
		WillReturnRows(rows)

	guard, err := repo.GetByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.GuardStateInProgress, guard.State)
	assert.Nil(t, guard.TransactionID)
	assert.Empty(t, guard.ResponseSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryGetByTokenNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT (.+) FROM idempotency_guards").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"token"}))

	guard, err := repo.GetByToken(context.Background(), "missing")
	require.Error(t, err)
	assert.Nil(t, guard)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryComplete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	txID := uuid.New()
	snapshot := []byte(`{"status":"succeeded"}`)

	mock.ExpectExec("UPDATE idempotency_guards").
		WithArgs("tok-1", models.GuardStateCompleted, snapshot, txID, models.GuardStateInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	completed, err := repo.Complete(context.Background(), "tok-1", snapshot, txID)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardRepositoryCompleteAlreadyCompleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuardRepository(db, zap.NewNop())
	txID := uuid.New()

	mock.ExpectExec("UPDATE idempotency_guards").
		WithArgs("tok-1", models.GuardStateCompleted, []byte(`{}`), txID, models.GuardStateInProgress).
		WillReturnResult(sqlmock.NewResult(0, 0))

	completed, err := repo.Complete(context.Background(), "tok-1", []byte(`{}`), txID)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
