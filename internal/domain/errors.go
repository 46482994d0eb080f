package domain

import "errors"

// Sentinel errors shared across the repository, CRM, and API boundaries.
var (
	// ErrNotFound is returned when a record, rule, config, or assessment
	// does not exist for the requesting org.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput marks a request that fails basic argument checks.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig marks a configuration that violates a write-time
	// invariant (weight sums, enum values, empty conditions on active rules).
	ErrInvalidConfig = errors.New("invalid configuration")
)
