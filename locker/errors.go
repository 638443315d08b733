package locker

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStore           = errors.New("store error")
	ErrLockUnavailable = errors.New("unable to obtain lock")
	ErrTokenGeneration = errors.New("token generation failed")
	// ErrMalformedReply is wrapped into a StoreError when the store answers
	// with something that is neither a success nor a failure.
	ErrMalformedReply = errors.New("malformed store reply")
)

// StoreError is a transport or protocol failure of the underlying store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// UnavailableError is returned by Optimistic once every attempt met a held lock.
type UnavailableError struct {
	MaxAttempts int
	Name        string
	TTL         time.Duration
	Wait        time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v: name=%q maxAttempts=%d ttl=%s wait=%s",
		ErrLockUnavailable, e.Name, e.MaxAttempts, e.TTL, e.Wait)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrLockUnavailable }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func storeError(op, key string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}
