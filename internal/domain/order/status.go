package order

import "github.com/xenking/storefront-orders/internal/fault"

// Status is an order lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusStuffing  Status = "Stuffing"
	StatusShipped   Status = "Shipped"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusRejected  Status = "Rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStuffing, StatusShipped, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Role is the kind of actor requesting a transition.
type Role int

const (
	// RoleCustomer may only cancel their own pending order.
	RoleCustomer Role = iota
	// RoleManager drives all forward, cancelling and rejecting transitions.
	RoleManager
	// RoleSystem is the sweep's sentinel identity; it only completes
	// shipped orders.
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleManager:
		return "manager"
	case RoleSystem:
		return "system"
	}
	return "unknown"
}

// Transition errors.
var (
	// ErrIllegalTransition is returned for any (from, to) pair absent from
	// the transition table, including re-entering a prior state.
	ErrIllegalTransition = fault.New(fault.Conflict, "illegal status transition")
	// ErrRoleNotAllowed is returned when the edge exists but the actor's
	// role may not drive it.
	ErrRoleNotAllowed = fault.New(fault.Unauthorized, "role not allowed for this transition")
	// ErrNotOwned is returned when a customer acts on another customer's
	// order.
	ErrNotOwned = fault.New(fault.Unauthorized, "order belongs to another customer")
)

type edge struct {
	from, to Status
}

type roleSet uint8

const (
	byCustomer roleSet = 1 << iota
	byManager
	bySystem
)

func (rs roleSet) has(r Role) bool {
	switch r {
	case RoleCustomer:
		return rs&byCustomer != 0
	case RoleManager:
		return rs&byManager != 0
	case RoleSystem:
		return rs&bySystem != 0
	}
	return false
}

// transitions is the closed transition table. Any pair not present is
// illegal; presence alone is not enough, the role must match too.
var transitions = map[edge]roleSet{
	{StatusPending, StatusStuffing}:  byManager,
	{StatusStuffing, StatusShipped}:  byManager,
	{StatusShipped, StatusCompleted}: byManager | bySystem,
	{StatusPending, StatusRejected}:  byManager,
	{StatusPending, StatusCancelled}: byCustomer | byManager,
	{StatusStuffing, StatusCancelled}: byManager,
}

// CanTransition validates one edge of the state machine for the given role.
// It distinguishes an illegal edge (conflict) from a legal edge driven by
// the wrong role (unauthorized).
func CanTransition(from, to Status, r Role) error {
	roles, ok := transitions[edge{from, to}]
	if !ok {
		return ErrIllegalTransition
	}
	if !roles.has(r) {
		return ErrRoleNotAllowed
	}
	return nil
}

// ReleasesReservations reports whether a transition to the target status
// must restore stock, reverse discount usage, and refund spent points.
func ReleasesReservations(to Status) bool {
	return to == StatusCancelled || to == StatusRejected
}
