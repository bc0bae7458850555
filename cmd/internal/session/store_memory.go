package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback when DB is not configured.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Session
}

// NewMemoryStore constructs an in-memory session Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]Session)}
}

// Create inserts a new session.
func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.ID == "" || in.MemberID == "" || strings.TrimSpace(in.TokenHash) == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[in.TokenHash] = Session{
		ID:        in.ID,
		MemberID:  in.MemberID,
		TokenHash: in.TokenHash,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	return nil
}

// GetByTokenHash fetches a session by token hash.
func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byHash[tokenHash]
	if !ok {
		return Session{}, ErrNotActive
	}
	return sess, nil
}

// Revoke marks the session revoked; unknown tokens are a no-op.
func (s *MemoryStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byHash[tokenHash]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	sess.RevokedAt = &now
	s.byHash[tokenHash] = sess
	return nil
}
