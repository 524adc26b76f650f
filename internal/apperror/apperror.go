// Package apperror defines the error taxonomy shared by the offline subsystem.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindStorageUnavailable Kind = "storage_unavailable"
	KindQueuePersist       Kind = "queue_persist"
	KindNetwork            Kind = "network"
	KindTimeout            Kind = "timeout"
	KindLookupNotFound     Kind = "lookup_not_found"
	KindSyncDelivery       Kind = "sync_delivery"
	KindAmbiguousMatch     Kind = "ambiguous_match"
	KindValidation         Kind = "validation"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQueuePersist       = errors.New("pending action could not be persisted")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("request timed out")
	ErrLookupNotFound     = errors.New("lookup found no match")
	ErrSyncDelivery       = errors.New("sync delivery failed")
	ErrAmbiguousMatch     = errors.New("multiple candidate matches")
	ErrValidation         = errors.New("validation failed")
)

var sentinels = map[Kind]error{
	KindStorageUnavailable: ErrStorageUnavailable,
	KindQueuePersist:       ErrQueuePersist,
	KindNetwork:            ErrNetwork,
	KindTimeout:            ErrTimeout,
	KindLookupNotFound:     ErrLookupNotFound,
	KindSyncDelivery:       ErrSyncDelivery,
	KindAmbiguousMatch:     ErrAmbiguousMatch,
	KindValidation:         ErrValidation,
}

// Error carries the operation and kind of a failure along with its cause.
type Error struct {
	Op        string
	Kind      Kind
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err, Retryable: kind == KindNetwork || kind == KindTimeout || kind == KindSyncDelivery}
}

func Storage(op string, err error) *Error {
	return New(op, KindStorageUnavailable, err)
}

func Network(op string, err error) *Error {
	return New(op, KindNetwork, err)
}

func Timeout(op string, err error) *Error {
	return New(op, KindTimeout, err)
}

func Delivery(op string, err error) *Error {
	return New(op, KindSyncDelivery, err)
}

func Validation(op string, format string, args ...any) *Error {
	return New(op, KindValidation, fmt.Errorf(format, args...))
}

// IsRetryable reports whether err wraps a retryable *Error.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
