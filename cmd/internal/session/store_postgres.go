package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL. The pool is owned by the
// caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "unidash").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "unidash"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.MemberID) == "" || strings.TrimSpace(in.TokenHash) == "" {
		return ErrInvalidInput
	}

	sessions := pgx.Identifier{s.schema, "sessions"}.Sanitize()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (id, member_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		in.ID, in.MemberID, in.TokenHash, in.CreatedAt, in.ExpiresAt,
	)
	return err
}

// GetByTokenHash fetches a session by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Session{}, ErrNotActive
	}

	sessions := pgx.Identifier{s.schema, "sessions"}.Sanitize()
	var out Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, member_id, token_hash, created_at, expires_at, revoked_at
		   FROM `+sessions+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(&out.ID, &out.MemberID, &out.TokenHash, &out.CreatedAt, &out.ExpiresAt, &out.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotActive
		}
		return Session{}, err
	}
	return out, nil
}

// Revoke marks the session revoked; unknown tokens are a no-op.
func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgx.Identifier{s.schema, "sessions"}.Sanitize()
	_, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`,
		now, tokenHash,
	)
	return err
}
