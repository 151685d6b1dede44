package adminserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mnohosten/laura-core/pkg/events"
	"github.com/mnohosten/laura-core/pkg/storage"
	"github.com/mnohosten/laura-core/pkg/txn"
)

func newTestServer(t *testing.T) (*Server, *storage.Engine) {
	t.Helper()
	cfg := storage.DefaultConfig(filepath.Join(t.TempDir(), "data"))
	cfg.Events = events.NewBus()
	engine, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	lm := txn.NewLockManager(false, cfg.Events)
	srv, err := New(DefaultConfig(), engine, lm)
	if err != nil {
		t.Fatalf("adminserver.New: %v", err)
	}
	return srv, engine
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("status field = %v, want healthy", body["status"])
	}
}

func TestStatsEndpointIncludesLockManager(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["buffer_pool"]; !ok {
		t.Fatalf("stats response missing buffer_pool: %v", body)
	}
	if _, ok := body["lock_manager"]; !ok {
		t.Fatalf("stats response missing lock_manager: %v", body)
	}
}

func TestGraphQLStatsQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	reqBody, _ := json.Marshal(graphQLRequest{Query: "{ stats { persistentLsn } }"})
	resp, err := http.Post(ts.URL+"/graphql", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /graphql: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if errs, ok := body["errors"]; ok {
		t.Fatalf("graphql query returned errors: %v", errs)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("graphql response missing data: %v", body)
	}
	if _, ok := data["stats"]; !ok {
		t.Fatalf("graphql response missing stats field: %v", data)
	}
}
