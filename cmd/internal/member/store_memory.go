package member

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a dev/test fallback when DB is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Member
	idByG    map[string]string // google_id -> id
	idByMail map[string]string // normalized email -> id
}

// NewMemoryStore constructs an in-memory member Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Member),
		idByG:    make(map[string]string),
		idByMail: make(map[string]string),
	}
}

// GetByID fetches a member by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return Member{}, OpError{Op: "member.GetByID", Kind: ErrNotFound, Msg: "member not found"}
	}
	return m, nil
}

// GetByGoogleID fetches a member by their external identity key.
func (s *MemoryStore) GetByGoogleID(ctx context.Context, googleID string) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idByG[googleID]
	if !ok {
		return Member{}, OpError{Op: "member.GetByGoogleID", Kind: ErrNotFound, Msg: "member not found"}
	}
	return s.byID[id], nil
}

// Create inserts a new member, enforcing google_id and email uniqueness.
func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) (Member, error) {
	const op = "member.Create"

	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	if in.ID == "" || in.GoogleID == "" || strings.TrimSpace(in.Email) == "" {
		return Member{}, invalid(op, "id, google id and email are required")
	}
	mail := NormalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.idByG[in.GoogleID]; dup {
		return Member{}, OpError{Op: op, Kind: ErrConflict, Msg: "google id already registered"}
	}
	if _, dup := s.idByMail[mail]; dup {
		return Member{}, OpError{Op: op, Kind: ErrConflict, Msg: "email already registered"}
	}

	m := Member{
		ID:        in.ID,
		GoogleID:  in.GoogleID,
		Email:     mail,
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
		CreatedAt: in.CreatedAt,
	}
	s.byID[m.ID] = m
	s.idByG[m.GoogleID] = m.ID
	s.idByMail[mail] = m.ID
	return m, nil
}

// UpdateProfile refreshes name and avatar.
func (s *MemoryStore) UpdateProfile(ctx context.Context, id, name string, avatarURL *string) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return Member{}, OpError{Op: "member.UpdateProfile", Kind: ErrNotFound, Msg: "member not found"}
	}
	m.Name = name
	m.AvatarURL = avatarURL
	s.byID[id] = m
	return m, nil
}

// UpdatePhone records a member's contact phone.
func (s *MemoryStore) UpdatePhone(ctx context.Context, id, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if id == "" || phone == "" {
		return invalid("member.UpdatePhone", "id and phone are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return OpError{Op: "member.UpdatePhone", Kind: ErrNotFound, Msg: "member not found"}
	}
	m.Phone = &phone
	s.byID[id] = m
	return nil
}
