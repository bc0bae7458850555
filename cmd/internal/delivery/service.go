package delivery

import (
	"context"
	"strings"
	"time"
)

// Service is the request lifecycle manager. It validates preconditions through
// the access guard, computes the next state, and issues the verification code
// on acceptance. It holds no cached request state across calls: every
// transition re-reads the current row immediately before the conditional
// update that mutates it.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, invalid("delivery.NewService", "nil store")
	}
	return &Service{store: store}, nil
}

// Create validates fields and inserts a new request in state pending.
func (s *Service) Create(ctx context.Context, in CreateInput) (Request, error) {
	const op = "delivery.Create"

	if s == nil || s.store == nil {
		return Request{}, invalid(op, "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	requesterID := strings.TrimSpace(in.RequesterID)
	if requesterID == "" {
		return Request{}, invalid(op, "requester is required")
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"item description", &in.ItemDescription},
		{"category", &in.Category},
		{"payment status", &in.PaymentStatus},
		{"pickup location", &in.PickupLocation},
		{"delivery location", &in.DeliveryLocation},
	}
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return Request{}, invalid(op, f.name+" is required")
		}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Request{}, err
	}

	return s.store.Insert(ctx, InsertRecord{
		ID:               id,
		RequesterID:      requesterID,
		ItemDescription:  in.ItemDescription,
		Category:         in.Category,
		PaymentStatus:    in.PaymentStatus,
		PickupLocation:   in.PickupLocation,
		DeliveryLocation: in.DeliveryLocation,
		Note:             trimPtr(in.Note),
		CreatedAt:        now,
	})
}

// Accept transitions a pending request to in_progress, assigning actorID as
// deliverer and generating a fresh verification code. The guard check here
// gives a precise early answer; the store's conditional update is what
// actually decides a race, so a concurrent winner surfaces as ErrConflict.
func (s *Service) Accept(ctx context.Context, requestID, actorID string) (Request, error) {
	const op = "delivery.Accept"

	if s == nil || s.store == nil {
		return Request{}, invalid(op, "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	requestID = strings.TrimSpace(requestID)
	actorID = strings.TrimSpace(actorID)
	if requestID == "" || actorID == "" {
		return Request{}, invalid(op, "request id and actor are required")
	}

	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if err := CanAccept(actorID, req); err != nil {
		return Request{}, err
	}

	code, err := NewCode()
	if err != nil {
		return Request{}, err
	}

	return s.store.AcceptPending(ctx, AcceptRecord{
		RequestID:   requestID,
		DelivererID: actorID,
		Code:        code,
		Now:         time.Now().UTC(),
	})
}

// Complete transitions an in_progress request to completed when actorID is the
// assigned deliverer and suppliedCode matches the stored code exactly. An
// incorrect code is rejected without side effects; the caller may retry.
func (s *Service) Complete(ctx context.Context, requestID, actorID, suppliedCode string) (Request, error) {
	const op = "delivery.Complete"

	if s == nil || s.store == nil {
		return Request{}, invalid(op, "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	requestID = strings.TrimSpace(requestID)
	actorID = strings.TrimSpace(actorID)
	if requestID == "" || actorID == "" {
		return Request{}, invalid(op, "request id and actor are required")
	}

	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if err := CanComplete(actorID, req, suppliedCode); err != nil {
		return Request{}, err
	}

	return s.store.CompleteInProgress(ctx, CompleteRecord{
		RequestID:   requestID,
		DelivererID: actorID,
		Code:        suppliedCode,
		Now:         time.Now().UTC(),
	})
}

// Cancel transitions a pending request to cancelled. Only the requester may
// cancel, and only while no deliverer has accepted.
func (s *Service) Cancel(ctx context.Context, requestID, actorID string) (Request, error) {
	const op = "delivery.Cancel"

	if s == nil || s.store == nil {
		return Request{}, invalid(op, "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	requestID = strings.TrimSpace(requestID)
	actorID = strings.TrimSpace(actorID)
	if requestID == "" || actorID == "" {
		return Request{}, invalid(op, "request id and actor are required")
	}

	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if err := CanCancel(actorID, req); err != nil {
		return Request{}, err
	}

	return s.store.CancelPending(ctx, CancelRecord{
		RequestID:   requestID,
		RequesterID: actorID,
		Now:         time.Now().UTC(),
	})
}

// ListOpen returns browsable pending requests, excluding viewerID's own.
func (s *Service) ListOpen(ctx context.Context, viewerID string) ([]OpenRequest, error) {
	if s == nil || s.store == nil {
		return nil, invalid("delivery.ListOpen", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListOpen(ctx, strings.TrimSpace(viewerID))
}

// ListByRequester returns memberID's own requests, newest first.
func (s *Service) ListByRequester(ctx context.Context, memberID string) ([]OwnRequest, error) {
	if s == nil || s.store == nil {
		return nil, invalid("delivery.ListByRequester", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListByRequester(ctx, strings.TrimSpace(memberID))
}

// ListActiveDeliveries returns memberID's in_progress deliveries.
func (s *Service) ListActiveDeliveries(ctx context.Context, memberID string) ([]ActiveDelivery, error) {
	if s == nil || s.store == nil {
		return nil, invalid("delivery.ListActiveDeliveries", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListActiveDeliveries(ctx, strings.TrimSpace(memberID))
}

// ActiveOrder returns memberID's single currently-active order, deliverer role
// first. Only one order is ever surfaced even when the member is both an
// active deliverer and an active requester.
func (s *Service) ActiveOrder(ctx context.Context, memberID string) (Request, error) {
	if s == nil || s.store == nil {
		return Request{}, invalid("delivery.ActiveOrder", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	return s.store.FindActiveOrder(ctx, strings.TrimSpace(memberID))
}

// Stats returns memberID's lifetime activity counts.
func (s *Service) Stats(ctx context.Context, memberID string) (Stats, error) {
	if s == nil || s.store == nil {
		return Stats{}, invalid("delivery.Stats", "nil service")
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	return s.store.CountStats(ctx, strings.TrimSpace(memberID))
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
