package core

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PgCredentialStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPgCredentialStore(mock, "credentials")
	require.NoError(t, err)
	return store, mock
}

func TestNewPgCredentialStore_RejectsBadTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, table := range []string{"", "1abc", "cred; DROP TABLE x", `a"b`} {
		_, err := NewPgCredentialStore(mock, table)
		assert.ErrorIs(t, err, ErrConfig, "table %q", table)
	}
}

func TestPgCredentialStore_EnsureSchema(t *testing.T) {
	ctx := context.Background()
	createSQL := regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "credentials"`)

	t.Run("creates table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(createSQL).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, store.EnsureSchema(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race is success", func(t *testing.T) {
		for _, code := range []string{pgerrcode.DuplicateTable, pgerrcode.UniqueViolation} {
			store, mock := newMockStore(t)
			mock.ExpectExec(createSQL).WillReturnError(&pgconn.PgError{Code: code})

			require.NoError(t, store.EnsureSchema(ctx), "code %s", code)
			require.NoError(t, mock.ExpectationsWereMet())
		}
	})

	t.Run("other failure surfaces", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(createSQL).WillReturnError(errors.New("connection refused"))

		err := store.EnsureSchema(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgCredentialStore_Get(t *testing.T) {
	ctx := context.Background()
	selectSQL := regexp.QuoteMeta(`SELECT username, password_hash, created_at FROM "credentials" WHERE username = $1`)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectSQL).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"username", "password_hash", "created_at"}).
				AddRow("alice", "$argon2id$hash", created))

		rec, found, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, CredentialRecord{Username: "alice", PasswordHash: "$argon2id$hash", CreatedAt: created}, *rec)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectSQL).WithArgs("nobody").WillReturnError(pgx.ErrNoRows)

		rec, found, err := store.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, rec)
	})

	t.Run("transport failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectSQL).WithArgs("alice").WillReturnError(errors.New("timeout"))

		rec, found, err := store.Get(ctx, "alice")
		require.Error(t, err)
		assert.False(t, found)
		assert.Nil(t, rec)
	})
}

func TestPgCredentialStore_Put(t *testing.T) {
	ctx := context.Background()
	insertSQL := regexp.QuoteMeta(`INSERT INTO "credentials" (username, password_hash, created_at) VALUES ($1, $2, $3)`)
	rec := CredentialRecord{Username: "bob", PasswordHash: "$argon2id$hash"}

	t.Run("created", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(insertSQL).
			WithArgs("bob", "$argon2id$hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Put(ctx, "bob", rec))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict resolved by ON CONFLICT", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(insertSQL).
			WithArgs("bob", "$argon2id$hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := store.Put(ctx, "bob", rec)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unique violation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(insertSQL).
			WithArgs("bob", "$argon2id$hash", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := store.Put(ctx, "bob", rec)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("other failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(insertSQL).
			WithArgs("bob", "$argon2id$hash", pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		err := store.Put(ctx, "bob", rec)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestPgCredentialStore_ScanAll(t *testing.T) {
	ctx := context.Background()
	scanSQL := regexp.QuoteMeta(`SELECT username, password_hash, created_at FROM "credentials" ORDER BY username`)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store, mock := newMockStore(t)
	mock.ExpectQuery(scanSQL).
		WillReturnRows(pgxmock.NewRows([]string{"username", "password_hash", "created_at"}).
			AddRow("alice", "h1", created).
			AddRow("bob", "h2", created))

	records, err := store.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].Username)
	assert.Equal(t, "bob", records[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}
