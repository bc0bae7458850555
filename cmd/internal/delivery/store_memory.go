package delivery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NameLookup resolves a member id to a display name and optional phone for
// list rows. The Postgres store does this with a join; the in-memory store
// delegates to whatever member directory the app wired in. A nil lookup
// yields empty names.
type NameLookup func(ctx context.Context, memberID string) (name string, phone *string, err error)

// MemoryStore is a dev/test fallback when DB is not configured. It implements
// the same compare-and-swap transition semantics as PostgresStore: the state
// predicate and the write happen under one mutex hold, so the single-acceptance
// property holds here too.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]Request
	lookup   NameLookup
}

// NewMemoryStore constructs an in-memory Store. lookup may be nil.
func NewMemoryStore(lookup NameLookup) *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]Request),
		lookup:   lookup,
	}
}

// Insert stores a new pending request.
func (s *MemoryStore) Insert(ctx context.Context, in InsertRecord) (Request, error) {
	const op = "delivery.Insert"

	if in.ID == "" || in.RequesterID == "" {
		return Request{}, invalid(op, "id and requester are required")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	req := Request{
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
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[in.ID]; exists {
		return Request{}, conflict(op, "duplicate request id")
	}
	s.requests[in.ID] = req
	return req, nil
}

// GetByID fetches a request by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, notFound("delivery.GetByID")
	}
	return req, nil
}

// AcceptPending applies pending -> in_progress atomically under the store lock.
func (s *MemoryStore) AcceptPending(ctx context.Context, in AcceptRecord) (Request, error) {
	const op = "delivery.AcceptPending"

	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if in.RequestID == "" || in.DelivererID == "" || !ValidCodeFormat(in.Code) {
		return Request{}, invalid(op, "malformed accept record")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[in.RequestID]
	if !ok {
		return Request{}, notFound(op)
	}
	if req.RequesterID == in.DelivererID {
		return Request{}, forbidden(op, "cannot accept your own request")
	}
	if req.Status != StatusPending {
		return Request{}, conflict(op, "no longer available")
	}

	deliverer := in.DelivererID
	code := in.Code
	req.DelivererID = &deliverer
	req.Code = &code
	req.Status = StatusInProgress
	s.requests[in.RequestID] = req
	return req, nil
}

// CompleteInProgress applies in_progress -> completed atomically under the
// store lock. Failures classify in precondition order and leave the row
// untouched.
func (s *MemoryStore) CompleteInProgress(ctx context.Context, in CompleteRecord) (Request, error) {
	const op = "delivery.CompleteInProgress"

	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if in.RequestID == "" || in.DelivererID == "" {
		return Request{}, invalid(op, "request id and deliverer are required")
	}
	if !ValidCodeFormat(in.Code) {
		return Request{}, invalid(op, "a 4-digit code is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[in.RequestID]
	if !ok {
		return Request{}, notFound(op)
	}
	if req.Status != StatusInProgress {
		return Request{}, conflict(op, "not currently in progress")
	}
	if req.DelivererID == nil || *req.DelivererID != in.DelivererID {
		return Request{}, forbidden(op, "not the assigned deliverer")
	}
	if req.Code == nil || *req.Code != in.Code {
		return Request{}, OpError{Op: op, Kind: ErrInvalidCode, Msg: "code does not match"}
	}

	req.Status = StatusCompleted
	s.requests[in.RequestID] = req
	return req, nil
}

// CancelPending applies pending -> cancelled atomically under the store lock.
func (s *MemoryStore) CancelPending(ctx context.Context, in CancelRecord) (Request, error) {
	const op = "delivery.CancelPending"

	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if in.RequestID == "" || in.RequesterID == "" {
		return Request{}, invalid(op, "request id and requester are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[in.RequestID]
	if !ok {
		return Request{}, notFound(op)
	}
	if req.RequesterID != in.RequesterID {
		return Request{}, forbidden(op, "only the requester may cancel")
	}
	if req.Status != StatusPending {
		return Request{}, conflict(op, "already in progress or completed")
	}

	req.Status = StatusCancelled
	s.requests[in.RequestID] = req
	return req, nil
}

// ListOpen returns pending requests excluding viewerID's own, newest first.
func (s *MemoryStore) ListOpen(ctx context.Context, viewerID string) ([]OpenRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.snapshot(func(r Request) bool {
		return r.Status == StatusPending && r.RequesterID != viewerID
	})

	var out []OpenRequest
	for _, r := range snap {
		name, _, err := s.resolve(ctx, r.RequesterID)
		if err != nil {
			return nil, err
		}
		out = append(out, OpenRequest{
			ID:               r.ID,
			ItemDescription:  r.ItemDescription,
			Category:         r.Category,
			PaymentStatus:    r.PaymentStatus,
			PickupLocation:   r.PickupLocation,
			DeliveryLocation: r.DeliveryLocation,
			Note:             r.Note,
			RequesterName:    name,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

// ListByRequester returns requesterID's requests, newest first.
func (s *MemoryStore) ListByRequester(ctx context.Context, requesterID string) ([]OwnRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.snapshot(func(r Request) bool {
		return r.RequesterID == requesterID
	})

	var out []OwnRequest
	for _, r := range snap {
		var delivererName *string
		if r.DelivererID != nil {
			name, _, err := s.resolve(ctx, *r.DelivererID)
			if err != nil {
				return nil, err
			}
			delivererName = &name
		}
		out = append(out, OwnRequest{
			ID:               r.ID,
			ItemDescription:  r.ItemDescription,
			Status:           r.Status,
			Code:             r.Code,
			DeliveryLocation: r.DeliveryLocation,
			DelivererName:    delivererName,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

// ListActiveDeliveries returns in_progress requests assigned to delivererID.
func (s *MemoryStore) ListActiveDeliveries(ctx context.Context, delivererID string) ([]ActiveDelivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.snapshot(func(r Request) bool {
		return r.Status == StatusInProgress && r.DelivererID != nil && *r.DelivererID == delivererID
	})

	var out []ActiveDelivery
	for _, r := range snap {
		name, phone, err := s.resolve(ctx, r.RequesterID)
		if err != nil {
			return nil, err
		}
		out = append(out, ActiveDelivery{
			ID:               r.ID,
			ItemDescription:  r.ItemDescription,
			PickupLocation:   r.PickupLocation,
			DeliveryLocation: r.DeliveryLocation,
			Note:             r.Note,
			RequesterName:    name,
			RequesterPhone:   phone,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

// FindActiveOrder returns memberID's single active order, deliverer role first.
func (s *MemoryStore) FindActiveOrder(ctx context.Context, memberID string) (Request, error) {
	const op = "delivery.FindActiveOrder"

	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if memberID == "" {
		return Request{}, invalid(op, "member id is required")
	}

	asDeliverer := s.snapshot(func(r Request) bool {
		return r.Status == StatusInProgress && r.DelivererID != nil && *r.DelivererID == memberID
	})
	if len(asDeliverer) > 0 {
		return asDeliverer[0], nil
	}

	asRequester := s.snapshot(func(r Request) bool {
		return r.RequesterID == memberID && (r.Status == StatusPending || r.Status == StatusInProgress)
	})
	if len(asRequester) > 0 {
		return asRequester[0], nil
	}

	return Request{}, OpError{Op: op, Kind: ErrNotFound, Msg: "no active order"}
}

// CountStats returns lifetime activity counts for memberID.
func (s *MemoryStore) CountStats(ctx context.Context, memberID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out Stats
	for _, r := range s.requests {
		if r.RequesterID == memberID {
			out.RequestsCreated++
		}
		if r.DelivererID != nil && *r.DelivererID == memberID && r.Status == StatusCompleted {
			out.DeliveriesCompleted++
		}
	}
	return out, nil
}

// snapshot copies matching requests out under the lock, newest first.
func (s *MemoryStore) snapshot(match func(Request) bool) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) resolve(ctx context.Context, memberID string) (string, *string, error) {
	if s.lookup == nil {
		return "", nil, nil
	}
	return s.lookup(ctx, memberID)
}
