// Package lifecycle tracks which local model is resident on the inference
// server and for how long it should stay there.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"lingochat/internal/ollama"
)

const (
	loadTimeout      = 60 * time.Second
	loadTimeoutLarge = 180 * time.Second
	unloadTimeout    = 30 * time.Second
	switchUnloadTTL  = 15 * time.Second

	// Grace period after a bulk unload before loading the next model, giving
	// the server time to reclaim memory.
	switchGrace = 2 * time.Second
)

// loadPrompt is the minimal prompt used to force a model into memory.
const loadPrompt = "Hi"

// Manager owns the process-wide active-model state. Load, Unload and Switch
// serialize on a mutex; concurrent switches from different requests cannot
// interleave.
type Manager struct {
	client *ollama.Client
	reg    *Registry
	log    *zap.Logger

	mu       sync.Mutex
	active   string
	loadedAt time.Time
}

func NewManager(client *ollama.Client, reg *Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{client: client, reg: reg, log: log}
}

type LoadResult struct {
	Model     string    `json:"model"`
	Size      string    `json:"size"`
	KeepAlive string    `json:"keepAlive"`
	Class     SizeClass `json:"priority"`
	LoadedAt  time.Time `json:"loadedAt"`
}

type UnloadResult struct {
	Model      string    `json:"model"`
	UnloadedAt time.Time `json:"unloadedAt"`
}

type UnloadOutcome struct {
	Model   string `json:"model"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type SwitchResult struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Unloaded    []UnloadOutcome `json:"unloaded"`
	Loaded      *LoadResult     `json:"loaded,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

type StatusReport struct {
	ActiveModel     string                `json:"activeModel"`
	LoadedAt        *time.Time            `json:"modelLoadTime,omitempty"`
	LoadedModels    []ollama.ProcessModel `json:"loadedModels"`
	AvailableModels []string              `json:"availableModels"`
	Categories      map[string]Descriptor `json:"modelCategories"`
}

// Load makes modelID resident with its keep-alive hint. State is only mutated
// after the server confirms the load.
func (m *Manager) Load(ctx context.Context, modelID string) (*LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx, modelID)
}

func (m *Manager) loadLocked(ctx context.Context, modelID string) (*LoadResult, error) {
	desc, ok := m.reg.Lookup(modelID)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelID)
	}

	timeout := loadTimeout
	if desc.Class == ClassLarge {
		// First load of a large model can exceed a minute.
		timeout = loadTimeoutLarge
	}

	m.log.Info("loading model", zap.String("model", modelID), zap.String("keep_alive", desc.KeepAlive))
	if err := m.client.Generate(ctx, modelID, loadPrompt, desc.KeepAlive, timeout); err != nil {
		m.log.Error("model load failed", zap.String("model", modelID), zap.Error(err))
		return nil, fmt.Errorf("failed to load model %s: %w", modelID, err)
	}

	m.active = modelID
	m.loadedAt = time.Now()
	m.log.Info("model loaded", zap.String("model", modelID), zap.String("keep_alive", desc.KeepAlive))

	return &LoadResult{
		Model:     modelID,
		Size:      desc.Size,
		KeepAlive: desc.KeepAlive,
		Class:     desc.Class,
		LoadedAt:  m.loadedAt,
	}, nil
}

// Unload asks the server to evict modelID immediately. Eviction failures are
// logged but do not fail the operation; tracked state is cleared only when the
// evicted model is the active one.
func (m *Manager) Unload(ctx context.Context, modelID string) *UnloadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unloadLocked(ctx, modelID, unloadTimeout)
	return &UnloadResult{Model: modelID, UnloadedAt: time.Now()}
}

func (m *Manager) unloadLocked(ctx context.Context, modelID string, timeout time.Duration) error {
	err := m.client.Generate(ctx, modelID, "", 0, timeout)
	if err != nil {
		m.log.Warn("model unload failed", zap.String("model", modelID), zap.Error(err))
	}
	if m.active == modelID {
		m.active = ""
		m.loadedAt = time.Time{}
	}
	return err
}

// Switch evicts every model the server reports as resident (not just the one
// we track, to self-heal drift), waits for memory to be reclaimed, then loads
// newModelID. Unloading everything is a memory-safety measure: loading a
// second large model next to a resident one can fail outright.
func (m *Manager) Switch(ctx context.Context, newModelID string) (*SwitchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &SwitchResult{From: m.active, To: newModelID}

	resident, err := m.client.PS(ctx)
	if err != nil {
		m.log.Warn("could not list resident models, falling back to tracked state", zap.Error(err))
		if m.active != "" && m.active != newModelID {
			resident = []ollama.ProcessModel{{Name: m.active}}
		}
	}

	for _, pm := range resident {
		if pm.Name == newModelID {
			continue
		}
		outcome := UnloadOutcome{Model: pm.Name, Success: true}
		if err := m.unloadLocked(ctx, pm.Name, switchUnloadTTL); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
		}
		result.Unloaded = append(result.Unloaded, outcome)
	}

	if len(result.Unloaded) > 0 {
		select {
		case <-time.After(switchGrace):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	loaded, err := m.loadLocked(ctx, newModelID)
	result.CompletedAt = time.Now()
	if err != nil {
		return result, err
	}
	result.Loaded = loaded
	return result, nil
}

// Status merges tracked state with what the server actually reports. It never
// mutates state.
func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	m.mu.Lock()
	active := m.active
	loadedAt := m.loadedAt
	m.mu.Unlock()

	report := &StatusReport{
		ActiveModel:  active,
		LoadedModels: []ollama.ProcessModel{},
	}
	if !loadedAt.IsZero() {
		t := loadedAt
		report.LoadedAt = &t
	}

	resident, err := m.client.PS(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get model status: %w", err)
	}
	report.LoadedModels = resident

	// Tags failures are tolerated; the static table still answers.
	if tags, err := m.client.Tags(ctx); err == nil {
		for _, t := range tags {
			m.reg.Observe(t)
		}
	} else {
		m.log.Warn("could not list available models", zap.Error(err))
	}

	report.Categories = m.reg.Snapshot()
	report.AvailableModels = make([]string, 0, len(report.Categories))
	for id := range report.Categories {
		report.AvailableModels = append(report.AvailableModels, id)
	}
	sort.Strings(report.AvailableModels)
	return report, nil
}

// Active returns the tracked active model id, if any.
func (m *Manager) Active() (string, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.loadedAt
}
