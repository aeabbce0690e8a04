package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"gemscope/internal/storage"
)

type mockRegistryMetrics struct {
	mu          sync.Mutex
	syncs       int
	failures    int
	breakerOpen bool
}

func (m *mockRegistryMetrics) SyncsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
}

func (m *mockRegistryMetrics) SyncFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *mockRegistryMetrics) BreakerOpenSet(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerOpen = open
}

func (m *mockRegistryMetrics) snapshot() (int, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs, m.failures, m.breakerOpen
}

// capturedRequest records what the fake registry received.
type capturedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	captured := &[]capturedRequest{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		mu.Lock()
		*captured = append(*captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		AppID:   "app-1",
		Token:   "secret-token",
		Timeout: 2 * time.Second,
	}
}

func TestMirrorDataset(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK)
	mock := &mockRegistryMetrics{}
	client := New(testConfig(server.URL), mock)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.MirrorDataset(context.Background(), storage.DatasetRecord{
		ID:        "ds-1",
		OwnerID:   "owner-a",
		Name:      "March lots",
		Bucket:    "gemscope",
		ObjectKey: "datasets/owner-a/ds-1/lots.csv",
		RowCount:  120,
		Columns:   []string{"carat", "color"},
		CreatedAt: created,
	})

	if len(*captured) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.method)
	}
	if req.path != "/apps/app-1/data/datasets" {
		t.Errorf("Path = %s", req.path)
	}
	if req.auth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", req.auth)
	}
	if req.body["id"] != "ds-1" || req.body["ownerId"] != "owner-a" {
		t.Errorf("Unexpected body: %v", req.body)
	}
	if got := req.body["createdAt"].(float64); int64(got) != created.UnixMilli() {
		t.Errorf("createdAt = %v, want %d", got, created.UnixMilli())
	}

	syncs, failures, _ := mock.snapshot()
	if syncs != 1 || failures != 0 {
		t.Errorf("syncs/failures = %d/%d, want 1/0", syncs, failures)
	}
}

func TestMirrorModel(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusCreated)
	client := New(testConfig(server.URL), nil)

	client.MirrorModel(context.Background(), storage.ModelRecord{
		ID:        "mdl-1",
		OwnerID:   "owner-a",
		DatasetID: "ds-1",
		Family:    "ridge",
		Metrics:   map[string]float64{"price_r2": 0.91},
		CreatedAt: time.Now(),
	})

	if len(*captured) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.path != "/apps/app-1/data/models" {
		t.Errorf("Path = %s", req.path)
	}
	if req.body["family"] != "ridge" || req.body["datasetId"] != "ds-1" {
		t.Errorf("Unexpected body: %v", req.body)
	}
}

func TestMirrorPrediction(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK)
	client := New(testConfig(server.URL), nil)

	client.MirrorPrediction(context.Background(), storage.PredictionRecord{
		ID:          "pr-1",
		OwnerID:     "owner-a",
		DatasetID:   "ds-1",
		ModelFamily: "sgd",
		OutputKey:   "predictions/pr-1/results.csv",
		CreatedAt:   time.Now(),
	})

	if len(*captured) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.path != "/apps/app-1/data/predictions" {
		t.Errorf("Path = %s", req.path)
	}
	if req.body["modelName"] != "sgd" {
		t.Errorf("Expected modelName key, got: %v", req.body)
	}
	if req.body["outputObjectKey"] != "predictions/pr-1/results.csv" {
		t.Errorf("Unexpected output key: %v", req.body["outputObjectKey"])
	}
}

func TestDisabledClientSkipsMirroring(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK)
	mock := &mockRegistryMetrics{}

	cfg := testConfig(server.URL)
	cfg.AppID = ""
	client := New(cfg, mock)

	if client.Enabled() {
		t.Error("Client without app ID should be disabled")
	}

	client.MirrorDataset(context.Background(), storage.DatasetRecord{ID: "ds-1"})
	client.MirrorModel(context.Background(), storage.ModelRecord{ID: "mdl-1"})
	client.MirrorPrediction(context.Background(), storage.PredictionRecord{ID: "pr-1"})

	if len(*captured) != 0 {
		t.Errorf("Disabled client made %d requests", len(*captured))
	}
	syncs, failures, _ := mock.snapshot()
	if syncs != 0 || failures != 0 {
		t.Errorf("Disabled client touched metrics: %d/%d", syncs, failures)
	}
}

func TestServerErrorCountsFailure(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusInternalServerError)
	mock := &mockRegistryMetrics{}
	client := New(testConfig(server.URL), mock)

	client.MirrorDataset(context.Background(), storage.DatasetRecord{ID: "ds-1", CreatedAt: time.Now()})

	if len(*captured) != 1 {
		t.Fatalf("Expected the request to reach the server, got %d", len(*captured))
	}
	syncs, failures, _ := mock.snapshot()
	if syncs != 0 || failures != 1 {
		t.Errorf("syncs/failures = %d/%d, want 0/1", syncs, failures)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusServiceUnavailable)
	mock := &mockRegistryMetrics{}
	client := New(testConfig(server.URL), mock)

	record := storage.DatasetRecord{ID: "ds-1", CreatedAt: time.Now()}
	for i := 0; i < 5; i++ {
		client.MirrorDataset(context.Background(), record)
	}

	// The breaker trips after three consecutive failures; later mirrors
	// fail fast without reaching the server.
	if len(*captured) != 3 {
		t.Errorf("Expected 3 requests before the breaker opened, got %d", len(*captured))
	}
	syncs, failures, open := mock.snapshot()
	if syncs != 0 {
		t.Errorf("Expected no successful syncs, got %d", syncs)
	}
	if failures != 5 {
		t.Errorf("Expected all 5 mirrors counted as failures, got %d", failures)
	}
	if !open {
		t.Error("Expected breaker open gauge set")
	}
}
