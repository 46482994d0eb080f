package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-crm/kestrel/internal/domain"
)

func TestStaticFetcher(t *testing.T) {
	ctx := context.Background()
	fetcher := NewStaticFetcher(nil)

	t.Run("PutAndFetch", func(t *testing.T) {
		fetcher.Put("org-1", domain.ObjectAccount, "acct-1", domain.Record{
			"Name":            "Acme",
			"Intent_Score__c": 80.0,
		})

		rec, err := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-1")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if rec["Name"] != "Acme" {
			t.Errorf("expected Name Acme, got %v", rec["Name"])
		}
	})

	t.Run("MissingRecord", func(t *testing.T) {
		_, err := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-ghost")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("OrgAndTypeIsolation", func(t *testing.T) {
		if _, err := fetcher.FetchRecord(ctx, "org-2", domain.ObjectAccount, "acct-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for foreign org, got %v", err)
		}
		if _, err := fetcher.FetchRecord(ctx, "org-1", domain.ObjectOpportunity, "acct-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for wrong object type, got %v", err)
		}
	})

	t.Run("FetchReturnsCopy", func(t *testing.T) {
		rec, _ := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-1")
		rec["Name"] = "Mutated"

		again, _ := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-1")
		if again["Name"] != "Acme" {
			t.Errorf("stored record was mutated through a fetched copy: %v", again["Name"])
		}
	})
}

func TestHTTPFetcher(t *testing.T) {
	ctx := context.Background()

	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		switch r.URL.Path {
		case "/orgs/org-1/records/Account/acct-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"Name":"Acme","Intent_Score__c":80,"Churned__c":null}`))
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher, err := NewHTTPFetcher(domain.CRMConfig{
		Mode:        "http",
		BaseURL:     server.URL,
		AccessToken: "secret-token",
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	t.Run("FetchRecord", func(t *testing.T) {
		rec, err := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-1")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		if gotPath != "/orgs/org-1/records/Account/acct-1" {
			t.Errorf("unexpected request path: %s", gotPath)
		}
		if gotAuth != "Bearer secret-token" {
			t.Errorf("expected bearer token header, got %q", gotAuth)
		}
		if rec["Name"] != "Acme" {
			t.Errorf("expected Name Acme, got %v", rec["Name"])
		}
		// JSON numbers decode as float64
		if rec["Intent_Score__c"] != 80.0 {
			t.Errorf("expected Intent_Score__c 80, got %v", rec["Intent_Score__c"])
		}
	})

	t.Run("MissingRecordMapsToNotFound", func(t *testing.T) {
		_, err := fetcher.FetchRecord(ctx, "org-1", domain.ObjectAccount, "acct-ghost")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := fetcher.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestNewFetcherFactory(t *testing.T) {
	t.Run("StaticMode", func(t *testing.T) {
		fetcher, err := New(domain.CRMConfig{Mode: "static"})
		if err != nil {
			t.Fatalf("factory failed: %v", err)
		}
		if _, ok := fetcher.(*StaticFetcher); !ok {
			t.Errorf("expected *StaticFetcher, got %T", fetcher)
		}
	})

	t.Run("HTTPModeRequiresBaseURL", func(t *testing.T) {
		if _, err := New(domain.CRMConfig{Mode: "http"}); err == nil {
			t.Error("expected error for http mode without base URL")
		}
	})

	t.Run("UnknownMode", func(t *testing.T) {
		if _, err := New(domain.CRMConfig{Mode: "carrier-pigeon"}); err == nil {
			t.Error("expected error for unknown mode")
		}
	})
}
