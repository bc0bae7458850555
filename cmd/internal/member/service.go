package member

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Service resolves logins into members. It delegates code verification to the
// identity provider and owns the find-or-create step against the store.
type Service struct {
	provider IdentityProvider
	store    Store

	// allowedDomain restricts membership to one organizational email domain.
	// Empty means unrestricted (dev only).
	allowedDomain string
}

// Option configures the Service.
type Option func(*Service) error

// WithAllowedDomain restricts logins to emails under the given domain.
func WithAllowedDomain(domain string) Option {
	return func(s *Service) error {
		s.allowedDomain = strings.ToLower(strings.TrimSpace(domain))
		return nil
	}
}

// NewService constructs a Service.
func NewService(provider IdentityProvider, store Store, opts ...Option) (*Service, error) {
	if provider == nil || store == nil {
		return nil, invalid("member.NewService", "nil provider or store")
	}
	s := &Service{provider: provider, store: store}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoginURL returns the provider consent URL for the given state value.
func (s *Service) LoginURL(state string) string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.AuthCodeURL(state)
}

// ResolveLogin exchanges a callback code for a verified profile and returns
// the matching member, creating it on first login. Name and avatar are
// refreshed on every login; email and Google id are immutable after creation.
func (s *Service) ResolveLogin(ctx context.Context, code string, now time.Time) (Member, error) {
	const op = "member.ResolveLogin"

	if s == nil || s.provider == nil || s.store == nil {
		return Member{}, invalid(op, "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	profile, err := s.provider.ResolveCode(ctx, code)
	if err != nil {
		return Member{}, err
	}
	if !EmailInDomain(profile.Email, s.allowedDomain) {
		return Member{}, OpError{Op: op, Kind: ErrDomainNotAllowed, Msg: "email outside the permitted domain"}
	}

	existing, err := s.store.GetByGoogleID(ctx, profile.GoogleID)
	if err == nil {
		return s.store.UpdateProfile(ctx, existing.ID, profile.Name, profile.AvatarURL)
	}
	if !IsNotFound(err) {
		return Member{}, err
	}

	id, err := newULID(now)
	if err != nil {
		return Member{}, err
	}
	return s.store.Create(ctx, CreateRecord{
		ID:        id,
		GoogleID:  profile.GoogleID,
		Email:     NormalizeEmail(profile.Email),
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
		CreatedAt: now,
	})
}

// Get returns a member by id.
func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	if s == nil || s.store == nil {
		return Member{}, invalid("member.Get", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	return s.store.GetByID(ctx, strings.TrimSpace(id))
}

// RecordPhone stores a member's contact phone. Blank phones are ignored so a
// request without one keeps whatever was recorded earlier.
func (s *Service) RecordPhone(ctx context.Context, id, phone string) error {
	if s == nil || s.store == nil {
		return invalid("member.RecordPhone", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	return s.store.UpdatePhone(ctx, strings.TrimSpace(id), phone)
}

func newULID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
