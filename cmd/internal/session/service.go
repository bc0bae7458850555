package session

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Service implements session issue, validation, and revocation.
type Service struct {
	cfg   Config
	store Store
}

// Issued is the result of issuing a session. Token is the plain value for the
// cookie and is shown exactly once.
type Issued struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// NewService constructs a Service.
func NewService(cfg Config, store Store) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	if cfg.TTL <= 0 || cfg.TokenBytes <= 0 {
		return nil, ErrConfig
	}
	return &Service{cfg: cfg, store: store}, nil
}

// Config returns the session configuration (cookie attributes live there).
func (s *Service) Config() Config { return s.cfg }

// Issue creates a session for memberID and returns the plain token.
func (s *Service) Issue(ctx context.Context, memberID string, now time.Time) (Issued, error) {
	if s == nil || s.store == nil {
		return Issued{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Issued{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	token, err := newOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Issued{}, err
	}

	expiresAt := now.Add(s.cfg.TTL)
	if err := s.store.Create(ctx, CreateRecord{
		ID:        id.String(),
		MemberID:  memberID,
		TokenHash: hashToken(token, s.cfg.HMACKey),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return Issued{}, err
	}

	return Issued{SessionID: id.String(), Token: token, ExpiresAt: expiresAt}, nil
}

// Validate resolves a plain token to the member it authenticates.
// Missing, expired, and revoked sessions are indistinguishable (ErrNotActive).
func (s *Service) Validate(ctx context.Context, token string, now time.Time) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotActive
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sess, err := s.store.GetByTokenHash(ctx, hashToken(token, s.cfg.HMACKey))
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			return "", ErrNotActive
		}
		return "", err
	}
	if sess.RevokedAt != nil || !sess.ExpiresAt.After(now) {
		return "", ErrNotActive
	}
	return sess.MemberID, nil
}

// Revoke invalidates the session behind token. Unknown tokens are a no-op.
func (s *Service) Revoke(ctx context.Context, token string, now time.Time) error {
	if s == nil || s.store == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.Revoke(ctx, hashToken(token, s.cfg.HMACKey), now)
}
