package delivery

import "time"

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Request is a single delivery task.
//
// Invariants maintained by the store transitions:
//   - DelivererID is non-nil iff Status is in_progress or completed.
//   - Code is non-nil only while Status is in_progress or completed
//     (it is set exactly once, at acceptance, and never regenerated).
//   - RequesterID and DelivererID never refer to the same member.
type Request struct {
	ID          string
	RequesterID string
	DelivererID *string

	ItemDescription  string
	Category         string
	PaymentStatus    string
	PickupLocation   string
	DeliveryLocation string
	Note             *string

	Code   *string
	Status Status

	CreatedAt time.Time
}

// CreateInput describes a new request.
type CreateInput struct {
	RequesterID      string
	ItemDescription  string
	Category         string
	PaymentStatus    string
	PickupLocation   string
	DeliveryLocation string
	Note             *string
	Now              time.Time
}

// OpenRequest is a browsable pending request, as seen by a prospective deliverer.
type OpenRequest struct {
	ID               string
	ItemDescription  string
	Category         string
	PaymentStatus    string
	PickupLocation   string
	DeliveryLocation string
	Note             *string
	RequesterName    string
	CreatedAt        time.Time
}

// OwnRequest is a request as seen by its requester, including the verification
// code they read out to the deliverer at handoff.
type OwnRequest struct {
	ID               string
	ItemDescription  string
	Status           Status
	Code             *string
	DeliveryLocation string
	DelivererName    *string
	CreatedAt        time.Time
}

// ActiveDelivery is an in-progress request as seen by its deliverer.
type ActiveDelivery struct {
	ID               string
	ItemDescription  string
	PickupLocation   string
	DeliveryLocation string
	Note             *string
	RequesterName    string
	RequesterPhone   *string
	CreatedAt        time.Time
}

// Stats summarizes a member's lifetime activity.
type Stats struct {
	RequestsCreated     int
	DeliveriesCompleted int
}
