package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// ErrAlreadyExists is returned by CredentialStore.Put when the username is taken.
var ErrAlreadyExists = errors.New("credential already exists")

// CredentialRecord is a stored (username, password-hash) pair. It never holds plaintext.
type CredentialRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialListItem is the listing projection of a record (no password hash).
type CredentialListItem struct {
	Username  string    `json:"username" yaml:"username"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// CredentialStore persists credential records keyed by username.
type CredentialStore interface {
	// EnsureSchema provisions the backing structure. It is idempotent and safe to
	// call concurrently from several processes.
	EnsureSchema(ctx context.Context) error
	// Get returns (record, true, nil) when present and (nil, false, nil) when absent.
	Get(ctx context.Context, username string) (*CredentialRecord, bool, error)
	// Put atomically creates the record, failing with ErrAlreadyExists when taken.
	Put(ctx context.Context, username string, record CredentialRecord) error
	// ScanAll returns every record. Debug/ops listing only; it does not scale.
	ScanAll(ctx context.Context) ([]CredentialRecord, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// pgxPool is the subset of *pgxpool.Pool used by PgCredentialStore.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgCredentialStore implements CredentialStore on a PostgreSQL table.
type PgCredentialStore struct {
	db    pgxPool
	table string
}

// NewPgCredentialStore returns a store backed by the given table.
func NewPgCredentialStore(db pgxPool, table string) (*PgCredentialStore, error) {
	if !validIdentifier(table) {
		return nil, newError(KindConfig, "invalid table name", fmt.Errorf("table %q", table))
	}
	return &PgCredentialStore{db: db, table: pgx.Identifier{table}.Sanitize()}, nil
}

// EnsureSchema creates the credential table if absent. Losing a concurrent
// CREATE race surfaces as duplicate_table or unique_violation and is success.
func (r *PgCredentialStore) EnsureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (
		username      TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := r.db.Exec(ctx, q); err != nil {
		if isPgCode(err, pgerrcode.DuplicateTable, pgerrcode.UniqueViolation) {
			return nil
		}
		return oops.Code("STORE_SCHEMA_FAILED").
			With("table", r.table).
			Wrap(err)
	}
	return nil
}

func (r *PgCredentialStore) Get(ctx context.Context, username string) (*CredentialRecord, bool, error) {
	q := `SELECT username, password_hash, created_at FROM ` + r.table + ` WHERE username = $1`
	var rec CredentialRecord
	if err := r.db.QueryRow(ctx, q, username).Scan(&rec.Username, &rec.PasswordHash, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, oops.Code("STORE_GET_FAILED").
			With("table", r.table).
			With("username", username).
			Wrap(err)
	}
	return &rec, true, nil
}

func (r *PgCredentialStore) Put(ctx context.Context, username string, record CredentialRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO ` + r.table + ` (username, password_hash, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING`
	tag, err := r.db.Exec(ctx, q, username, record.PasswordHash, record.CreatedAt)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return oops.With("username", username).Wrap(ErrAlreadyExists)
		}
		return oops.Code("STORE_PUT_FAILED").
			With("table", r.table).
			With("username", username).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("username", username).Wrap(ErrAlreadyExists)
	}
	return nil
}

func (r *PgCredentialStore) ScanAll(ctx context.Context) ([]CredentialRecord, error) {
	q := `SELECT username, password_hash, created_at FROM ` + r.table + ` ORDER BY username`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, oops.Code("STORE_SCAN_FAILED").With("table", r.table).Wrap(err)
	}
	defer rows.Close()

	var out []CredentialRecord
	for rows.Next() {
		var rec CredentialRecord
		if err := rows.Scan(&rec.Username, &rec.PasswordHash, &rec.CreatedAt); err != nil {
			return nil, oops.Code("STORE_SCAN_FAILED").With("table", r.table).Wrap(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_SCAN_FAILED").With("table", r.table).Wrap(err)
	}
	return out, nil
}

func isPgCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}
