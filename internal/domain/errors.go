package domain

import "errors"

var (
	// ErrPaymentNotFound is returned when no payment exists for the given id.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrAlreadyTerminal is returned by lifecycle transitions that lost the
	// race: some other caller already moved the payment out of pending.
	// Callers must treat it as a successful no-op.
	ErrAlreadyTerminal = errors.New("payment already in a terminal state")

	// ErrNoMatch is returned by the matcher when no candidate transfer on the
	// scanned page satisfies the payment.
	ErrNoMatch = errors.New("no matching transfer found")

	// ErrNoNodeAvailable is returned by the node registry when every
	// configured node is unhealthy and the emergency probe sweep found none
	// responding.
	ErrNoNodeAvailable = errors.New("no healthy node available")

	// ErrNotYetExpired is returned when an expiry transition is attempted
	// before the payment's window has actually closed.
	ErrNotYetExpired = errors.New("payment window has not expired yet")
)
