package ratelimiter

import (
	"errors"
	"fmt"
)

// ErrorExceeded is a sentinel error passed to HTTP error handlers when a
// request is blocked by a rule.
var ErrorExceeded = errors.New("rate limit exceeded")

var (
	// ErrInvalidPeriod matches any *FormatError.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrConfiguration matches any *ConfigurationError.
	ErrConfiguration = errors.New("invalid rate limit configuration")
	// ErrStoreUnavailable matches any *StoreError.
	ErrStoreUnavailable = errors.New("counter store unavailable")
)

// FormatError reports a period string that cannot be converted to a duration.
type FormatError struct {
	Period string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s can't be converted to a duration: %s", e.Period, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidPeriod
}

// ConfigurationError reports invalid options or a missing dependency. It is
// returned at construction time and should not be retried.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration: %s", e.Field)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// StoreError wraps a failure of the backing counter or policy store. The core
// never turns a StoreError into an allow or deny decision on its own.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// NewStoreError wraps err as a *StoreError. A nil err returns nil.
func NewStoreError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

func configError(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}
