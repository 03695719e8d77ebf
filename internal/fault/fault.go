// Package fault classifies domain errors into coarse kinds so that callers
// (HTTP controllers, batch reporting) can map them without knowing every
// sentinel error in every domain package.
package fault

import "github.com/go-faster/errors"

// Kind is the coarse classification of a domain error.
type Kind int

const (
	// Unknown marks errors that carry no classification, typically nil.
	Unknown Kind = iota
	// NotFound marks lookups of missing orders, variants, addresses, codes.
	NotFound
	// Conflict marks retryable contention: exhausted stock or discount
	// capacity, illegal state transitions, lost row locks.
	Conflict
	// Invalid marks rejected input: bad quantities, ineligible discounts,
	// amounts below the store minimum.
	Invalid
	// Unauthorized marks transitions the actor's role does not permit.
	Unauthorized
	// Internal marks unexpected persistence or infrastructure failures.
	Internal
)

// Error is a classified error. Domain packages declare their sentinels with
// New so the kind travels with the error through wrapping.
type Error struct {
	kind Kind
	msg  string
}

// New returns a classified sentinel error.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf walks the error chain and returns the first classification found.
// A non-nil error without any classified cause is Internal; nil is Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return Internal
}
