package lifecycle

import (
	"strconv"
	"strings"
	"sync"

	"lingochat/internal/ollama"
)

type SizeClass string

const (
	ClassSmall  SizeClass = "small"
	ClassMedium SizeClass = "medium"
	ClassLarge  SizeClass = "large"
)

// Descriptor ties a model id to a size class and the keep-alive hint handed to
// the inference server after each load.
type Descriptor struct {
	ID        string    `json:"name"`
	Size      string    `json:"size"`
	KeepAlive string    `json:"keepAliveTime"`
	Class     SizeClass `json:"priority"`
}

// Small models stay resident longer; large ones are evicted sooner to keep
// memory available.
var knownModels = map[string]Descriptor{
	"qwen2.5:0.5b": {ID: "qwen2.5:0.5b", Size: "397MB", KeepAlive: "30m", Class: ClassSmall},
	"qwen2.5:1.5b": {ID: "qwen2.5:1.5b", Size: "900MB", KeepAlive: "20m", Class: ClassSmall},
	"llama3.2:3b":  {ID: "llama3.2:3b", Size: "2.0GB", KeepAlive: "15m", Class: ClassMedium},
	"llama3.1:8b":  {ID: "llama3.1:8b", Size: "4.9GB", KeepAlive: "10m", Class: ClassLarge},
}

func keepAliveForClass(c SizeClass) string {
	switch c {
	case ClassSmall:
		return "30m"
	case ClassMedium:
		return "15m"
	default:
		return "10m"
	}
}

// Registry resolves model ids to descriptors. Models not in the static table
// but discovered on the server get a heuristic descriptor cached for the
// lifetime of the process.
type Registry struct {
	mu         sync.RWMutex
	discovered map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{discovered: make(map[string]Descriptor)}
}

func (r *Registry) Lookup(id string) (Descriptor, bool) {
	if d, ok := knownModels[id]; ok {
		return d, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.discovered[id]
	return d, ok
}

// Observe derives and caches a descriptor for a model reported by the server.
// Already-known models are returned unchanged.
func (r *Registry) Observe(m ollama.TagModel) Descriptor {
	if d, ok := r.Lookup(m.Name); ok {
		return d
	}

	class := classify(m.Name, m.Size)
	d := Descriptor{
		ID:        m.Name,
		Size:      humanSize(m.Size),
		KeepAlive: keepAliveForClass(class),
		Class:     class,
	}

	r.mu.Lock()
	r.discovered[m.Name] = d
	r.mu.Unlock()
	return d
}

// Snapshot returns the merged static + discovered table.
func (r *Registry) Snapshot() map[string]Descriptor {
	out := make(map[string]Descriptor, len(knownModels))
	for id, d := range knownModels {
		out[id] = d
	}
	r.mu.RLock()
	for id, d := range r.discovered {
		out[id] = d
	}
	r.mu.RUnlock()
	return out
}

// classify buckets a model by the parameter-count suffix in its name
// ("qwen2.5:1.5b" -> 1.5) and falls back to the on-disk byte size.
func classify(name string, sizeBytes int64) SizeClass {
	if params, ok := paramsFromName(name); ok {
		switch {
		case params < 2:
			return ClassSmall
		case params <= 4:
			return ClassMedium
		default:
			return ClassLarge
		}
	}

	const gb = 1 << 30
	switch {
	case sizeBytes > 0 && sizeBytes < 3*gb/2:
		return ClassSmall
	case sizeBytes < 3*gb:
		return ClassMedium
	default:
		return ClassLarge
	}
}

func paramsFromName(name string) (float64, bool) {
	idx := strings.LastIndex(name, ":")
	if idx < 0 || idx == len(name)-1 {
		return 0, false
	}
	tag := strings.ToLower(name[idx+1:])
	// tags look like "0.5b", "3b", "8b-instruct-q4"
	if i := strings.IndexByte(tag, 'b'); i > 0 {
		if n, err := strconv.ParseFloat(tag[:i], 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func humanSize(b int64) string {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case b >= gb:
		return strconv.FormatFloat(float64(b)/gb, 'f', 1, 64) + "GB"
	case b >= mb:
		return strconv.FormatInt(b/mb, 10) + "MB"
	case b > 0:
		return strconv.FormatInt(b, 10) + "B"
	default:
		return "unknown"
	}
}
