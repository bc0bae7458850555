package delivery

import (
	"context"
	"time"
)

// InsertRecord is a normalized request insert payload.
// IDs and the pending status are assigned by the service before insert.
type InsertRecord struct {
	ID               string
	RequesterID      string
	ItemDescription  string
	Category         string
	PaymentStatus    string
	PickupLocation   string
	DeliveryLocation string
	Note             *string
	CreatedAt        time.Time
}

// AcceptRecord describes the pending -> in_progress transition.
type AcceptRecord struct {
	RequestID   string
	DelivererID string
	Code        string
	Now         time.Time
}

// CompleteRecord describes the in_progress -> completed transition.
type CompleteRecord struct {
	RequestID   string
	DelivererID string
	Code        string
	Now         time.Time
}

// CancelRecord describes the pending -> cancelled transition.
type CancelRecord struct {
	RequestID   string
	RequesterID string
	Now         time.Time
}

// Store is the persistence boundary for requests.
//
// Transition contract (AcceptPending, CompleteInProgress, CancelPending):
//   - The state predicate and the write are one atomic unit against the row
//     (conditional update). The row-level atomicity of the backing store is
//     the sole serialization point; no in-process locks.
//   - When the conditional update matches zero rows, the store re-reads the
//     row and classifies the failure: ErrNotFound if the request is missing,
//     otherwise the precise denial kind (ErrConflict, ErrForbidden,
//     ErrInvalidCode) for the condition that failed.
//   - A rejected transition leaves the row untouched.
type Store interface {
	Insert(ctx context.Context, in InsertRecord) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)

	AcceptPending(ctx context.Context, in AcceptRecord) (Request, error)
	CompleteInProgress(ctx context.Context, in CompleteRecord) (Request, error)
	CancelPending(ctx context.Context, in CancelRecord) (Request, error)

	// ListOpen returns pending requests excluding those created by viewerID.
	ListOpen(ctx context.Context, viewerID string) ([]OpenRequest, error)
	// ListByRequester returns requesterID's requests, newest first.
	ListByRequester(ctx context.Context, requesterID string) ([]OwnRequest, error)
	// ListActiveDeliveries returns in_progress requests assigned to delivererID,
	// newest first.
	ListActiveDeliveries(ctx context.Context, delivererID string) ([]ActiveDelivery, error)
	// FindActiveOrder returns memberID's single active request: the deliverer
	// role (in_progress) is searched first, then the requester role (pending or
	// in_progress), newest first within each role. ErrNotFound when none.
	FindActiveOrder(ctx context.Context, memberID string) (Request, error)

	CountStats(ctx context.Context, memberID string) (Stats, error)
}
