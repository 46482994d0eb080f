package domain

import "context"

// RecordFetcher is the boundary to the external CRM read layer. It returns
// flat key→value records; field discovery and writes live outside Kestrel.
type RecordFetcher interface {
	// FetchRecord retrieves one record by object type and id.
	// Returns ErrNotFound when the CRM has no such record.
	FetchRecord(ctx context.Context, orgID string, objectType ObjectType, recordID string) (Record, error)

	// Health check
	Ping(ctx context.Context) error
}
