package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/praxishq/coursesync/internal/model"
)

func testServer(t *testing.T, routes map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestPublishedVersion(t *testing.T) {
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/items/course-1/version": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]string{"version": "2.3"})
		},
	})

	v, err := c.PublishedVersion(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("PublishedVersion: %v", err)
	}
	if v != "2.3" {
		t.Fatalf("version = %q, want 2.3", v)
	}
}

func TestEntitlementMissingRecordIsNotAnError(t *testing.T) {
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/owners/o/entitlements/gone": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	})

	ent, err := c.Entitlement(context.Background(), "o", "gone")
	if err != nil {
		t.Fatalf("Entitlement: %v", err)
	}
	if ent != nil {
		t.Fatalf("entitlement = %+v, want nil for a missing record", ent)
	}
}

func TestEntitlementsList(t *testing.T) {
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/owners/o/entitlements": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"entitlements": []model.MembershipEntry{
					{ItemID: "a", Status: model.MembershipActive, ExpiresAt: exp},
					{ItemID: "b", IsTrial: true},
				},
			})
		},
	})

	got, err := c.Entitlements(context.Background(), "o")
	if err != nil {
		t.Fatalf("Entitlements: %v", err)
	}
	if len(got) != 2 || got[0].ItemID != "a" || !got[1].IsTrial {
		t.Fatalf("entitlements = %+v", got)
	}
	if !got[0].ExpiresAt.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got[0].ExpiresAt, exp)
	}
}

func TestContentRoundTrip(t *testing.T) {
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/owners/o/items/course-1/content": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, ItemContent{
				ItemID:        "course-1",
				Version:       "1.4",
				Payload:       []byte(`{"lessons":12}`),
				Cadenced:      true,
				MinimalRecord: false,
			})
		},
	})

	content, err := c.Content(context.Background(), "course-1", "o")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content.Version != "1.4" || !content.Cadenced {
		t.Fatalf("content = %+v", content)
	}
	if string(content.Payload) != `{"lessons":12}` {
		t.Fatalf("payload = %s", content.Payload)
	}
}

func TestStatusCodeTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrPermissionDenied},
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testServer(t, map[string]http.HandlerFunc{
				"/api/items/x/version": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tc.status)
				},
			})
			_, err := c.PublishedVersion(context.Background(), "x")
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestServerErrorIsNotOffline(t *testing.T) {
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/items/x/version": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	_, err := c.PublishedVersion(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error for 500")
	}
	if errors.Is(err, ErrOffline) || errors.Is(err, ErrNotFound) {
		t.Fatalf("500 mapped to the wrong sentinel: %v", err)
	}
}

func TestUnreachableBackendIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := srv.Client()
	srv.Close() // connection refused from here on

	c := NewClient(client, srv.URL)
	_, err := c.PublishedVersion(context.Background(), "x")
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}
}

func TestCanceledContextShortCircuits(t *testing.T) {
	hit := false
	c := testServer(t, map[string]http.HandlerFunc{
		"/api/items/x/version": func(w http.ResponseWriter, r *http.Request) {
			hit = true
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.PublishedVersion(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if hit {
		t.Fatal("request must not reach the server after cancellation")
	}
}
