// Package settings persists the chosen chat backend in a flat JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ModelTypeOpenAI = "openai"
	ModelTypeLocal  = "local"
)

type ModelSettings struct {
	ModelType    string `json:"modelType"`
	ModelID      string `json:"modelId,omitempty"`
	OpenAIAPIKey string `json:"openaiApiKey,omitempty"`
	UpdatedAt    string `json:"updatedAt"`
}

func defaultSettings() ModelSettings {
	return ModelSettings{
		ModelType: ModelTypeOpenAI,
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
}

// Store reads and writes the settings file under a mutex. A missing or
// corrupt file degrades to the default (cloud backend, no key).
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() ModelSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ModelSettings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return defaultSettings()
	}
	var ms ModelSettings
	if err := json.Unmarshal(data, &ms); err != nil {
		return defaultSettings()
	}
	if ms.ModelType != ModelTypeOpenAI && ms.ModelType != ModelTypeLocal {
		return defaultSettings()
	}
	return ms
}

var ErrInvalidModelType = errors.New("invalid model type")

// Save validates and persists new settings, returning the stored value.
// Fields not relevant to the chosen backend are dropped.
func (s *Store) Save(modelType, modelID, openAIAPIKey string) (ModelSettings, error) {
	if modelType != ModelTypeOpenAI && modelType != ModelTypeLocal {
		return ModelSettings{}, ErrInvalidModelType
	}

	ms := ModelSettings{
		ModelType: modelType,
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
	switch modelType {
	case ModelTypeLocal:
		ms.ModelID = modelID
	case ModelTypeOpenAI:
		ms.OpenAIAPIKey = openAIAPIKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ModelSettings{}, err
	}
	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return ModelSettings{}, err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return ModelSettings{}, err
	}
	return ms, nil
}
