package member

import (
	"context"
	"strings"
	"time"
)

// Member is a registered community participant.
// GoogleID and Email are unique; Email is restricted to the permitted
// organizational domain at login time.
type Member struct {
	ID        string
	GoogleID  string
	Email     string
	Name      string
	AvatarURL *string
	Phone     *string
	CreatedAt time.Time
}

// CreateRecord is a normalized member insert payload.
type CreateRecord struct {
	ID        string
	GoogleID  string
	Email     string
	Name      string
	AvatarURL *string
	CreatedAt time.Time
}

// Store is the persistence boundary for members.
type Store interface {
	GetByID(ctx context.Context, id string) (Member, error)
	GetByGoogleID(ctx context.Context, googleID string) (Member, error)
	Create(ctx context.Context, in CreateRecord) (Member, error)
	// UpdateProfile refreshes name and avatar on login.
	UpdateProfile(ctx context.Context, id, name string, avatarURL *string) (Member, error)
	// UpdatePhone records a member's contact phone (first set on their first request).
	UpdatePhone(ctx context.Context, id, phone string) error
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailInDomain reports whether email belongs to the given organizational
// domain (e.g. "vitstudent.ac.in"). An empty domain allows any email, which is
// only sensible for local development.
func EmailInDomain(email, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return true
	}
	return strings.HasSuffix(NormalizeEmail(email), "@"+domain)
}
