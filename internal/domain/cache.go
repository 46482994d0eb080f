package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Used for scoring
// snapshots during batch runs and short-lived CRM record caching.
// All methods require orgID for strict multi-org isolation.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, orgID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, orgID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, orgID string, key string) error

	// GetRecord retrieves a cached CRM record.
	GetRecord(ctx context.Context, orgID string, objectType ObjectType, recordID string) (Record, error)

	// SetRecord caches a fetched CRM record.
	SetRecord(ctx context.Context, orgID string, objectType ObjectType, recordID string, rec Record, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
