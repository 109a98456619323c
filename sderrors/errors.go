// Package sderrors defines the sentinel and typed errors returned by the
// SignalDB core. User-input errors are returned synchronously by mutators;
// adapter/storage failures are coerced to error and surfaced through events
// instead of panicking.
package sderrors

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by any operation on a collection that has
	// already been disposed.
	ErrDisposed = errors.New("signaldb: collection is disposed")

	// ErrInvalidSelector reports a selector of an unsupported shape. The
	// matcher and the collections in this module do not return it; a nil
	// selector matches every document.
	ErrInvalidSelector = errors.New("signaldb: invalid selector")

	// ErrInvalidModifier is returned when a modifier is nil or cannot be
	// applied. An empty, non-nil modifier is accepted and changes nothing.
	ErrInvalidModifier = errors.New("signaldb: invalid modifier")

	// ErrMixedIndexModes is returned when a planner is configured with
	// both synchronous and asynchronous index providers.
	ErrMixedIndexModes = errors.New("signaldb: cannot mix synchronous and asynchronous index providers")

	// ErrNotFoundOnIndex signals an internal invariant violation: an item
	// expected to be present in an index was not found there. This is
	// fatal and should never occur from well-formed inputs.
	ErrNotFoundOnIndex = errors.New("signaldb: item missing from index during update")

	// ErrIndexAfterSetup is returned, wrapped in a StorageError, by the
	// in-memory storage adapter's CreateIndex when called after Setup. The
	// Mongo, Redis and Badger adapters, and DropIndex on every adapter, do
	// not check for it.
	ErrIndexAfterSetup = errors.New("signaldb: cannot modify indexes after storage setup")
)

// DuplicateIDError is returned when an insert or id-changing update would
// violate the collection's id uniqueness invariant.
type DuplicateIDError struct {
	ID any
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("signaldb: duplicate id %v", e.ID)
}

// Is reports whether target is the DuplicateID sentinel, so callers can use
// errors.Is(err, sderrors.ErrDuplicateID) without caring about the field.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// ErrDuplicateID is the sentinel matched by DuplicateIDError.Is, allowing
// callers who don't need the offending id to use errors.Is directly.
var ErrDuplicateID = errors.New("signaldb: duplicate id")

// NewDuplicateIDError builds a DuplicateIDError for id.
func NewDuplicateIDError(id any) *DuplicateIDError {
	return &DuplicateIDError{ID: id}
}

// StorageError wraps an error returned by a storage.Adapter call and
// records which operation failed. AsyncCollection returns it from its
// mutators and queries; the persistence coordinator reports adapter errors
// as the adapter returned them, without this wrapper.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("signaldb: storage failure: %v", e.Err)
	}
	return fmt.Sprintf("signaldb: storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err in a StorageError for op. err may be nil, in
// which case nil is returned.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// CoerceError turns an arbitrary recovered value into an error. Adapters
// implemented in languages/bindings that signal failure by non-error values
// (or that panic) must still surface a well-formed error at the collection
// boundary; this mirrors the teacher's decode-error handling in its change
// stream dispatch loop.
func CoerceError(v any) error {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}

// QueryError describes a failed storage-backed query. AsyncCollection does
// not wrap query failures in it: a failing QueryRecord holds the
// underlying error (a *StorageError for adapter failures) in its Err.
type QueryError struct {
	Selector any
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("signaldb: query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
