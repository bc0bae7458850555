package delivery

// Access guard: pure predicates consulted before every mutation. Each returns
// nil when the transition is permitted, or the precise denial kind otherwise.
// The guard never mutates; the store re-enforces the state predicate atomically
// so a stale guard result can never apply a transition.

// CanAccept reports whether actorID may accept req.
// Self-acceptance is forbidden regardless of the request's current state.
func CanAccept(actorID string, req Request) error {
	const op = "delivery.Accept"

	if actorID == req.RequesterID {
		return forbidden(op, "cannot accept your own request")
	}
	if req.Status != StatusPending {
		return conflict(op, "no longer available")
	}
	return nil
}

// CanComplete reports whether actorID may complete req with suppliedCode.
// Checks run in precondition order: state, role, code format, code match.
func CanComplete(actorID string, req Request, suppliedCode string) error {
	const op = "delivery.Complete"

	if req.Status != StatusInProgress {
		return conflict(op, "not currently in progress")
	}
	if req.DelivererID == nil || *req.DelivererID != actorID {
		return forbidden(op, "not the assigned deliverer")
	}
	if !ValidCodeFormat(suppliedCode) {
		return invalid(op, "a 4-digit code is required")
	}
	// Opaque string comparison: no normalization of either side.
	if req.Code == nil || *req.Code != suppliedCode {
		return OpError{Op: op, Kind: ErrInvalidCode, Msg: "code does not match"}
	}
	return nil
}

// CanCancel reports whether actorID may cancel req.
func CanCancel(actorID string, req Request) error {
	const op = "delivery.Cancel"

	if actorID != req.RequesterID {
		return forbidden(op, "only the requester may cancel")
	}
	if req.Status != StatusPending {
		return conflict(op, "already in progress or completed")
	}
	return nil
}
