package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists requests in PostgreSQL.
//
// Ownership model:
//   - The pgx pool is owned by the caller; this store never closes it.
//   - Schema/table identifiers are safely quoted.
//
// Concurrency model:
//   - Transitions are single conditional UPDATE ... WHERE <state predicates>
//     RETURNING statements. Row-level atomicity in Postgres serializes
//     concurrent attempts; a loser matches zero rows and is classified by a
//     follow-up read. No transactions or advisory locks are needed because
//     each transition touches exactly one row.
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
			return invalid("delivery.WithSchema", "empty schema")
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
		return nil, invalid("delivery.NewPostgresStore", "nil pool")
	}
	return st, nil
}

const requestColumns = `id, requester_id, deliverer_id, status,
	item_description, category, payment_status,
	pickup_location, delivery_location, note, code, created_at`

// Insert inserts a new request row in state pending.
func (s *PostgresStore) Insert(ctx context.Context, in InsertRecord) (Request, error) {
	const op = "delivery.Insert"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.RequesterID) == "" {
		return Request{}, invalid(op, "id and requester are required")
	}

	requests := pgIdent(s.schema, "requests")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+requests+` (
		     id, requester_id, status, item_description, category, payment_status,
		     pickup_location, delivery_location, note, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID,
		in.RequesterID,
		StatusPending,
		in.ItemDescription,
		in.Category,
		in.PaymentStatus,
		in.PickupLocation,
		in.DeliveryLocation,
		in.Note,
		in.CreatedAt,
	)
	if err != nil {
		return Request{}, err
	}

	return Request{
		ID:               in.ID,
		RequesterID:      in.RequesterID,
		ItemDescription:  in.ItemDescription,
		Category:         in.Category,
		PaymentStatus:    in.PaymentStatus,
		PickupLocation:   in.PickupLocation,
		DeliveryLocation: in.DeliveryLocation,
		Note:             in.Note,
		Status:           StatusPending,
		CreatedAt:        in.CreatedAt,
	}, nil
}

// GetByID fetches a request by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Request, error) {
	const op = "delivery.GetByID"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Request{}, invalid(op, "id is required")
	}

	requests := pgIdent(s.schema, "requests")
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM `+requests+` WHERE id = $1`, id)

	out, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, notFound(op)
		}
		return Request{}, err
	}
	return out, nil
}

// AcceptPending applies pending -> in_progress as a compare-and-swap keyed on
// status = 'pending'. Exactly one of N concurrent acceptors wins; the rest are
// classified as conflicts.
func (s *PostgresStore) AcceptPending(ctx context.Context, in AcceptRecord) (Request, error) {
	const op = "delivery.AcceptPending"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(in.RequestID) == "" || strings.TrimSpace(in.DelivererID) == "" {
		return Request{}, invalid(op, "request id and deliverer are required")
	}
	if !ValidCodeFormat(in.Code) {
		return Request{}, invalid(op, "malformed verification code")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	requests := pgIdent(s.schema, "requests")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+requests+`
		    SET deliverer_id = $1,
		        code = $2,
		        status = $3
		  WHERE id = $4
		    AND status = $5
		    AND requester_id <> $1
		RETURNING `+requestColumns,
		in.DelivererID,
		in.Code,
		StatusInProgress,
		in.RequestID,
		StatusPending,
	)

	out, err := scanRequest(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Request{}, err
	}

	// Zero rows: distinguish missing, self-accept, and lost race.
	cur, selErr := s.GetByID(ctx, in.RequestID)
	if selErr != nil {
		return Request{}, selErr
	}
	if cur.RequesterID == in.DelivererID {
		return Request{}, forbidden(op, "cannot accept your own request")
	}
	return Request{}, conflict(op, "no longer available")
}

// CompleteInProgress applies in_progress -> completed, guarded on the assigned
// deliverer and an exact code match.
func (s *PostgresStore) CompleteInProgress(ctx context.Context, in CompleteRecord) (Request, error) {
	const op = "delivery.CompleteInProgress"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(in.RequestID) == "" || strings.TrimSpace(in.DelivererID) == "" {
		return Request{}, invalid(op, "request id and deliverer are required")
	}
	if !ValidCodeFormat(in.Code) {
		return Request{}, invalid(op, "a 4-digit code is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	requests := pgIdent(s.schema, "requests")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+requests+`
		    SET status = $1
		  WHERE id = $2
		    AND status = $3
		    AND deliverer_id = $4
		    AND code = $5
		RETURNING `+requestColumns,
		StatusCompleted,
		in.RequestID,
		StatusInProgress,
		in.DelivererID,
		in.Code,
	)

	out, err := scanRequest(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Request{}, err
	}

	// Zero rows: classify in precondition order.
	cur, selErr := s.GetByID(ctx, in.RequestID)
	if selErr != nil {
		return Request{}, selErr
	}
	if cur.Status != StatusInProgress {
		return Request{}, conflict(op, "not currently in progress")
	}
	if cur.DelivererID == nil || *cur.DelivererID != in.DelivererID {
		return Request{}, forbidden(op, "not the assigned deliverer")
	}
	return Request{}, OpError{Op: op, Kind: ErrInvalidCode, Msg: "code does not match"}
}

// CancelPending applies pending -> cancelled, guarded on the requester.
func (s *PostgresStore) CancelPending(ctx context.Context, in CancelRecord) (Request, error) {
	const op = "delivery.CancelPending"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(in.RequestID) == "" || strings.TrimSpace(in.RequesterID) == "" {
		return Request{}, invalid(op, "request id and requester are required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	requests := pgIdent(s.schema, "requests")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+requests+`
		    SET status = $1
		  WHERE id = $2
		    AND status = $3
		    AND requester_id = $4
		RETURNING `+requestColumns,
		StatusCancelled,
		in.RequestID,
		StatusPending,
		in.RequesterID,
	)

	out, err := scanRequest(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Request{}, err
	}

	cur, selErr := s.GetByID(ctx, in.RequestID)
	if selErr != nil {
		return Request{}, selErr
	}
	if cur.RequesterID != in.RequesterID {
		return Request{}, forbidden(op, "only the requester may cancel")
	}
	return Request{}, conflict(op, "already in progress or completed")
}

// ListOpen returns pending requests excluding viewerID's own, with the
// requester's display name joined in.
func (s *PostgresStore) ListOpen(ctx context.Context, viewerID string) ([]OpenRequest, error) {
	const op = "delivery.ListOpen"

	if s == nil || s.pool == nil {
		return nil, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requests := pgIdent(s.schema, "requests")
	members := pgIdent(s.schema, "members")
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.item_description, r.category, r.payment_status,
		        r.pickup_location, r.delivery_location, r.note,
		        m.name, r.created_at
		   FROM `+requests+` r
		   JOIN `+members+` m ON m.id = r.requester_id
		  WHERE r.status = $1
		    AND r.requester_id <> $2
		  ORDER BY r.created_at DESC`,
		StatusPending, viewerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenRequest
	for rows.Next() {
		var r OpenRequest
		if err := rows.Scan(
			&r.ID, &r.ItemDescription, &r.Category, &r.PaymentStatus,
			&r.PickupLocation, &r.DeliveryLocation, &r.Note,
			&r.RequesterName, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListByRequester returns requesterID's requests newest first, with the
// deliverer's name joined when assigned.
func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID string) ([]OwnRequest, error) {
	const op = "delivery.ListByRequester"

	if s == nil || s.pool == nil {
		return nil, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requests := pgIdent(s.schema, "requests")
	members := pgIdent(s.schema, "members")
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.item_description, r.status, r.code,
		        r.delivery_location, m.name, r.created_at
		   FROM `+requests+` r
		   LEFT JOIN `+members+` m ON m.id = r.deliverer_id
		  WHERE r.requester_id = $1
		  ORDER BY r.created_at DESC`,
		requesterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OwnRequest
	for rows.Next() {
		var r OwnRequest
		if err := rows.Scan(
			&r.ID, &r.ItemDescription, &r.Status, &r.Code,
			&r.DeliveryLocation, &r.DelivererName, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveDeliveries returns in_progress requests assigned to delivererID,
// with the requester's name and phone for coordination.
func (s *PostgresStore) ListActiveDeliveries(ctx context.Context, delivererID string) ([]ActiveDelivery, error) {
	const op = "delivery.ListActiveDeliveries"

	if s == nil || s.pool == nil {
		return nil, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requests := pgIdent(s.schema, "requests")
	members := pgIdent(s.schema, "members")
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.item_description, r.pickup_location, r.delivery_location,
		        r.note, m.name, m.phone, r.created_at
		   FROM `+requests+` r
		   JOIN `+members+` m ON m.id = r.requester_id
		  WHERE r.deliverer_id = $1
		    AND r.status = $2
		  ORDER BY r.created_at DESC`,
		delivererID, StatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveDelivery
	for rows.Next() {
		var r ActiveDelivery
		if err := rows.Scan(
			&r.ID, &r.ItemDescription, &r.PickupLocation, &r.DeliveryLocation,
			&r.Note, &r.RequesterName, &r.RequesterPhone, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindActiveOrder returns memberID's single active order, deliverer role first.
func (s *PostgresStore) FindActiveOrder(ctx context.Context, memberID string) (Request, error) {
	const op = "delivery.FindActiveOrder"

	if s == nil || s.pool == nil {
		return Request{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Request{}, invalid(op, "member id is required")
	}

	requests := pgIdent(s.schema, "requests")

	// Deliverer role takes priority over requester role.
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+`
		   FROM `+requests+`
		  WHERE deliverer_id = $1 AND status = $2
		  ORDER BY created_at DESC
		  LIMIT 1`,
		memberID, StatusInProgress,
	)
	out, err := scanRequest(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Request{}, err
	}

	row = s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+`
		   FROM `+requests+`
		  WHERE requester_id = $1 AND status = ANY($2)
		  ORDER BY created_at DESC
		  LIMIT 1`,
		memberID, []string{string(StatusPending), string(StatusInProgress)},
	)
	out, err = scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, OpError{Op: op, Kind: ErrNotFound, Msg: "no active order"}
		}
		return Request{}, err
	}
	return out, nil
}

// CountStats returns lifetime activity counts for memberID.
func (s *PostgresStore) CountStats(ctx context.Context, memberID string) (Stats, error) {
	const op = "delivery.CountStats"

	if s == nil || s.pool == nil {
		return Stats{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	requests := pgIdent(s.schema, "requests")
	var out Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		     count(*) FILTER (WHERE requester_id = $1),
		     count(*) FILTER (WHERE deliverer_id = $1 AND status = $2)
		   FROM `+requests,
		memberID, StatusCompleted,
	).Scan(&out.RequestsCreated, &out.DeliveriesCompleted)
	if err != nil {
		return Stats{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var out Request
	err := row.Scan(
		&out.ID,
		&out.RequesterID,
		&out.DelivererID,
		&out.Status,
		&out.ItemDescription,
		&out.Category,
		&out.PaymentStatus,
		&out.PickupLocation,
		&out.DeliveryLocation,
		&out.Note,
		&out.Code,
		&out.CreatedAt,
	)
	return out, err
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
