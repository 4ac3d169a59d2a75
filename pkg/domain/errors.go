package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any *Error.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidGraph         = errors.New("invalid graph")
	ErrInconsistentCurrency = errors.New("inconsistent currency")
	ErrConflict             = errors.New("conflict")
	ErrInvalid              = errors.New("invalid record")
)

// Error is a structured failure naming the entity that caused it.
type Error struct {
	Kind   error
	Entity string // "product", "actor", "shipment", ...
	ID     string
	Reason string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Entity, e.ID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound reports an unknown entity id.
func NotFound(entity, id string) *Error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InvalidGraph reports a cycle or an ancestry that exceeds resolution limits.
func InvalidGraph(productID, reason string) *Error {
	return &Error{Kind: ErrInvalidGraph, Entity: "product", ID: productID, Reason: reason}
}

// InconsistentCurrency reports payouts in more than one currency for one actor.
func InconsistentCurrency(actorID, want, got string) *Error {
	return &Error{
		Kind:   ErrInconsistentCurrency,
		Entity: "actor",
		ID:     actorID,
		Reason: fmt.Sprintf("payouts in %s and %s", want, got),
	}
}

// Conflict reports a write that collides with an existing record.
func Conflict(entity, id, reason string) *Error {
	return &Error{Kind: ErrConflict, Entity: entity, ID: id, Reason: reason}
}

// Invalid reports a write whose shape is malformed (unknown type, zero
// weight, outputs heavier than inputs).
func Invalid(entity, id, reason string) *Error {
	return &Error{Kind: ErrInvalid, Entity: entity, ID: id, Reason: reason}
}

// AsError extracts the structured error from a chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
