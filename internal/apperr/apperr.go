// Package apperr holds the error kinds shared by every component of the booking core.
// Packages declare their own sentinel errors wrapping one of these kinds so callers can
// branch on the kind with errors.Is without knowing the concrete sentinel.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict means the slot is already claimed. Expected and retryable with another slot.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means an unknown provider, patient, appointment or slot reference.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest covers malformed input, inactive rules and past-dated slots.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAlreadyTerminal is returned when an appointment is no longer scheduled.
	ErrAlreadyTerminal = errors.New("appointment already terminal")
	// ErrStorageUnavailable is fatal to the current operation; nothing was committed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Invalid builds an ErrInvalidRequest with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Storage wraps a driver error as ErrStorageUnavailable while keeping the cause in the chain.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// Kind returns the kind sentinel err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrConflict, ErrNotFound, ErrInvalidRequest, ErrAlreadyTerminal, ErrStorageUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
