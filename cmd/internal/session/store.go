package session

import (
	"context"
	"time"
)

// Session is a stored browser session. The plain token is never stored.
type Session struct {
	ID        string
	MemberID  string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// CreateRecord is a normalized session insert payload.
type CreateRecord struct {
	ID        string
	MemberID  string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for sessions.
type Store interface {
	Create(ctx context.Context, in CreateRecord) error
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	// Revoke marks the session revoked; revoking an unknown or already revoked
	// token is a no-op (logout must be idempotent).
	Revoke(ctx context.Context, tokenHash string, now time.Time) error
}
