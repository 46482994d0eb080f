// Package crm provides the CRM record-fetch boundary implementations.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/opensource-crm/kestrel/internal/domain"
)

// New creates a record fetcher based on configuration.
// "static" returns an in-memory fetcher (community/dev); "http" proxies the
// external CRM read layer.
func New(cfg domain.CRMConfig) (domain.RecordFetcher, error) {
	switch cfg.Mode {
	case "static", "":
		return NewStaticFetcher(nil), nil
	case "http":
		return NewHTTPFetcher(cfg)
	default:
		return nil, fmt.Errorf("unsupported crm mode: %s", cfg.Mode)
	}
}

// StaticFetcher serves records from memory. Used in the Community tier
// (records pushed in via the ingest API) and in tests.
type StaticFetcher struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewStaticFetcher creates a fetcher preloaded with the given records,
// keyed as org/objectType/recordID.
func NewStaticFetcher(seed map[string]domain.Record) *StaticFetcher {
	records := make(map[string]domain.Record, len(seed))
	for k, v := range seed {
		records[k] = v
	}
	return &StaticFetcher{records: records}
}

// Put stores or replaces a record.
func (f *StaticFetcher) Put(orgID string, objectType domain.ObjectType, recordID string, rec domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[staticKey(orgID, objectType, recordID)] = rec
}

// FetchRecord returns the stored record or ErrNotFound.
func (f *StaticFetcher) FetchRecord(ctx context.Context, orgID string, objectType domain.ObjectType, recordID string) (domain.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rec, ok := f.records[staticKey(orgID, objectType, recordID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

// Ping always succeeds for the static fetcher.
func (f *StaticFetcher) Ping(ctx context.Context) error {
	return nil
}

func staticKey(orgID string, objectType domain.ObjectType, recordID string) string {
	return orgID + "/" + string(objectType) + "/" + recordID
}

// HTTPFetcher reads flattened records from the CRM proxy:
// GET {base}/orgs/{org}/records/{objectType}/{id} returning a flat JSON
// object of string/number/boolean/null values.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPFetcher creates an HTTP-backed record fetcher.
func NewHTTPFetcher(cfg domain.CRMConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crm base URL is required in http mode")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchRecord retrieves one record from the CRM proxy.
func (f *HTTPFetcher) FetchRecord(ctx context.Context, orgID string, objectType domain.ObjectType, recordID string) (domain.Record, error) {
	endpoint := fmt.Sprintf("%s/orgs/%s/records/%s/%s",
		f.baseURL,
		url.PathEscape(orgID),
		url.PathEscape(string(objectType)),
		url.PathEscape(recordID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("crm fetch returned %d: %s", resp.StatusCode, body)
	}

	var rec domain.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode crm record: %w", err)
	}
	return rec, nil
}

// Ping checks connectivity to the CRM proxy.
func (f *HTTPFetcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("crm proxy unhealthy: %d", resp.StatusCode)
	}
	return nil
}
