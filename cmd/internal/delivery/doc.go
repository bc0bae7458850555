// Package delivery owns the request lifecycle state machine for UniDash.
//
// A request moves pending -> in_progress -> completed, with pending -> cancelled
// as the only other edge. Completed and cancelled are terminal. Every transition
// is applied as a single conditional update against the stored row, so two
// concurrent Accept calls on the same pending request race safely: exactly one
// wins, the other observes a conflict.
package delivery
