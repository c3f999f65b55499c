package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"lingochat/internal/ollama"
)

// fakeServer mimics the inference server endpoints the manager touches.
type fakeServer struct {
	mu        sync.Mutex
	resident  map[string]bool
	installed []string

	generateCalls []generateCall
	failGenerate  map[string]bool
	failPS        bool
}

type generateCall struct {
	Model     string
	KeepAlive any
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		resident:     make(map[string]bool),
		failGenerate: make(map[string]bool),
	}
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model     string `json:"model"`
			KeepAlive any    `json:"keep_alive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.generateCalls = append(f.generateCalls, generateCall{Model: req.Model, KeepAlive: req.KeepAlive})

		if f.failGenerate[req.Model] {
			http.Error(w, "model load failed", http.StatusInternalServerError)
			return
		}

		// keep_alive 0 evicts, anything else makes the model resident
		if n, ok := req.KeepAlive.(float64); ok && n == 0 {
			delete(f.resident, req.Model)
		} else {
			f.resident[req.Model] = true
		}
		w.Write([]byte(`{"done":true}`))
	})
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failPS {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		var models []map[string]any
		for name := range f.resident {
			models = append(models, map[string]any{"name": name})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var models []map[string]any
		for _, name := range f.installed {
			models = append(models, map[string]any{"name": name})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	return mux
}

func (f *fakeServer) isResident(model string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resident[model]
}

func newTestManager(t *testing.T, f *fakeServer) *Manager {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client := ollama.NewClient(srv.URL, nil)
	return NewManager(client, NewRegistry(), nil)
}

func TestLoad_TracksActiveModel(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	res, err := m.Load(context.Background(), "qwen2.5:0.5b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Model != "qwen2.5:0.5b" || res.KeepAlive != "30m" || res.Class != ClassSmall {
		t.Fatalf("unexpected result: %+v", res)
	}
	if active, _ := m.Active(); active != "qwen2.5:0.5b" {
		t.Fatalf("active = %q", active)
	}
	if !f.isResident("qwen2.5:0.5b") {
		t.Fatalf("model not resident on server")
	}
}

func TestLoad_UnknownModelRejected(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	if _, err := m.Load(context.Background(), "never-heard-of-it"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
	if len(f.generateCalls) != 0 {
		t.Fatalf("unknown model must not reach the server")
	}
}

func TestLoad_FailureLeavesStateUntouched(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	if _, err := m.Load(context.Background(), "qwen2.5:0.5b"); err != nil {
		t.Fatalf("load: %v", err)
	}

	f.failGenerate["llama3.2:3b"] = true
	if _, err := m.Load(context.Background(), "llama3.2:3b"); err == nil {
		t.Fatalf("expected load failure")
	}

	if active, _ := m.Active(); active != "qwen2.5:0.5b" {
		t.Fatalf("failed load must not change the active model, got %q", active)
	}
}

func TestUnload_ClearsOnlyActiveModel(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	if _, err := m.Load(context.Background(), "qwen2.5:0.5b"); err != nil {
		t.Fatalf("load: %v", err)
	}

	// unloading some other model keeps tracked state
	if res := m.Unload(context.Background(), "llama3.2:3b"); res.Model != "llama3.2:3b" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if active, _ := m.Active(); active != "qwen2.5:0.5b" {
		t.Fatalf("active changed unexpectedly to %q", active)
	}

	m.Unload(context.Background(), "qwen2.5:0.5b")
	if active, _ := m.Active(); active != "" {
		t.Fatalf("active not cleared, got %q", active)
	}
	if f.isResident("qwen2.5:0.5b") {
		t.Fatalf("model still resident after unload")
	}
}

func TestUnload_IsIdempotent(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	first := m.Unload(context.Background(), "qwen2.5:0.5b")
	second := m.Unload(context.Background(), "qwen2.5:0.5b")
	if first == nil || second == nil {
		t.Fatalf("unload must always report an outcome")
	}
}

func TestSwitch_EvictsEverythingResident(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	// a large model someone else loaded plus our own tracked one
	if _, err := m.Load(context.Background(), "llama3.1:8b"); err != nil {
		t.Fatalf("load: %v", err)
	}
	f.mu.Lock()
	f.resident["llama3.2:3b"] = true
	f.mu.Unlock()

	res, err := m.Switch(context.Background(), "qwen2.5:0.5b")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}

	if res.From != "llama3.1:8b" || res.To != "qwen2.5:0.5b" {
		t.Fatalf("unexpected from/to: %+v", res)
	}
	if len(res.Unloaded) != 2 {
		t.Fatalf("expected both resident models evicted, got %+v", res.Unloaded)
	}
	if res.Loaded == nil || res.Loaded.Model != "qwen2.5:0.5b" {
		t.Fatalf("target not loaded: %+v", res.Loaded)
	}

	if f.isResident("llama3.1:8b") || f.isResident("llama3.2:3b") {
		t.Fatalf("old models still resident")
	}
	if !f.isResident("qwen2.5:0.5b") {
		t.Fatalf("target not resident")
	}
	if active, _ := m.Active(); active != "qwen2.5:0.5b" {
		t.Fatalf("active = %q", active)
	}
}

func TestSwitch_FallsBackToTrackedStateWhenPSFails(t *testing.T) {
	f := newFakeServer()
	m := newTestManager(t, f)

	if _, err := m.Load(context.Background(), "llama3.2:3b"); err != nil {
		t.Fatalf("load: %v", err)
	}

	f.mu.Lock()
	f.failPS = true
	f.mu.Unlock()

	res, err := m.Switch(context.Background(), "qwen2.5:0.5b")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if len(res.Unloaded) != 1 || res.Unloaded[0].Model != "llama3.2:3b" {
		t.Fatalf("expected tracked model evicted, got %+v", res.Unloaded)
	}
}

func TestStatus_MergesServerAndRegistry(t *testing.T) {
	f := newFakeServer()
	f.installed = []string{"qwen2.5:0.5b", "gemma:1b"}
	m := newTestManager(t, f)

	if _, err := m.Load(context.Background(), "qwen2.5:0.5b"); err != nil {
		t.Fatalf("load: %v", err)
	}

	report, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if report.ActiveModel != "qwen2.5:0.5b" {
		t.Fatalf("active = %q", report.ActiveModel)
	}
	if report.LoadedAt == nil {
		t.Fatalf("expected load time")
	}
	if len(report.LoadedModels) != 1 || report.LoadedModels[0].Name != "qwen2.5:0.5b" {
		t.Fatalf("unexpected resident list: %+v", report.LoadedModels)
	}

	// discovered model is classified and listed alongside the static table
	if _, ok := report.Categories["gemma:1b"]; !ok {
		t.Fatalf("installed model missing from categories")
	}
	for i := 1; i < len(report.AvailableModels); i++ {
		if report.AvailableModels[i-1] > report.AvailableModels[i] {
			t.Fatalf("available models not sorted: %v", report.AvailableModels)
		}
	}

	// status must not change tracked state
	if active, _ := m.Active(); active != "qwen2.5:0.5b" {
		t.Fatalf("status mutated active model to %q", active)
	}
}

func TestStatus_FailsWhenServerUnreachable(t *testing.T) {
	f := newFakeServer()
	f.failPS = true
	m := newTestManager(t, f)

	if _, err := m.Status(context.Background()); err == nil {
		t.Fatalf("expected status error when the server cannot report residents")
	}
}
