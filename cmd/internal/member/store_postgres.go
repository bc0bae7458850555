package member

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists members in PostgreSQL. The pool is owned by the
// caller and never closed here.
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
			return invalid("member.WithSchema", "empty schema")
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
		return nil, invalid("member.NewPostgresStore", "nil pool")
	}
	return st, nil
}

const memberColumns = `id, google_id, email, name, avatar_url, phone, created_at`

// GetByID fetches a member by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Member, error) {
	const op = "member.GetByID"

	if s == nil || s.pool == nil {
		return Member{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Member{}, invalid(op, "id is required")
	}

	members := pgIdent(s.schema, "members")
	return s.scanOne(op, s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM `+members+` WHERE id = $1`, id))
}

// GetByGoogleID fetches a member by their external identity key.
func (s *PostgresStore) GetByGoogleID(ctx context.Context, googleID string) (Member, error) {
	const op = "member.GetByGoogleID"

	if s == nil || s.pool == nil {
		return Member{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	googleID = strings.TrimSpace(googleID)
	if googleID == "" {
		return Member{}, invalid(op, "google id is required")
	}

	members := pgIdent(s.schema, "members")
	return s.scanOne(op, s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM `+members+` WHERE google_id = $1`, googleID))
}

// Create inserts a new member. Uniqueness conflicts on google_id or email map
// to ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Member, error) {
	const op = "member.Create"

	if s == nil || s.pool == nil {
		return Member{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.GoogleID) == "" || strings.TrimSpace(in.Email) == "" {
		return Member{}, invalid(op, "id, google id and email are required")
	}

	members := pgIdent(s.schema, "members")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+members+` (id, google_id, email, name, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID, in.GoogleID, in.Email, in.Name, in.AvatarURL, in.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Member{}, OpError{Op: op, Kind: ErrConflict, Msg: "google id or email already registered"}
		}
		return Member{}, err
	}

	return Member{
		ID:        in.ID,
		GoogleID:  in.GoogleID,
		Email:     in.Email,
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
		CreatedAt: in.CreatedAt,
	}, nil
}

// UpdateProfile refreshes name and avatar and returns the updated row.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id, name string, avatarURL *string) (Member, error) {
	const op = "member.UpdateProfile"

	if s == nil || s.pool == nil {
		return Member{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Member{}, invalid(op, "id is required")
	}

	members := pgIdent(s.schema, "members")
	return s.scanOne(op, s.pool.QueryRow(ctx,
		`UPDATE `+members+`
		    SET name = $1, avatar_url = $2
		  WHERE id = $3
		RETURNING `+memberColumns,
		name, avatarURL, id))
}

// UpdatePhone records a member's contact phone.
func (s *PostgresStore) UpdatePhone(ctx context.Context, id, phone string) error {
	const op = "member.UpdatePhone"

	if s == nil || s.pool == nil {
		return invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	phone = strings.TrimSpace(phone)
	if id == "" || phone == "" {
		return invalid(op, "id and phone are required")
	}

	members := pgIdent(s.schema, "members")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+members+` SET phone = $1 WHERE id = $2`, phone, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "member not found"}
	}
	return nil
}

func (s *PostgresStore) scanOne(op string, row pgx.Row) (Member, error) {
	var out Member
	err := row.Scan(
		&out.ID,
		&out.GoogleID,
		&out.Email,
		&out.Name,
		&out.AvatarURL,
		&out.Phone,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, OpError{Op: op, Kind: ErrNotFound, Msg: "member not found"}
		}
		return Member{}, err
	}
	return out, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
