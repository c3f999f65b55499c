// Package ollama is an HTTP client for a locally running Ollama-compatible
// inference server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:11434"

	healthTimeout = 5 * time.Second
	listTimeout   = 10 * time.Second
	chatTimeout   = 30 * time.Second
	pullTimeout   = 600 * time.Second
)

type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		// No global timeout: every call carries its own deadline via context.
		httpc: &http.Client{},
		log:   log,
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	// String duration ("30m") or the integer 0 for "evict now".
	KeepAlive any `json:"keep_alive"`
}

// TagModel is one entry of GET /api/tags.
type TagModel struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ProcessModel is one entry of GET /api/ps (a resident model).
type ProcessModel struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SizeVRAM  int64     `json:"size_vram"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PullProgress is one decoded line of the streaming POST /api/pull response.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
	Percent   int
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpc.Do(req)
}

// Generate issues a minimal generate request. It is how a model is loaded
// (non-empty keepAlive) or evicted (keepAlive 0).
func (c *Client) Generate(ctx context.Context, model, prompt string, keepAlive any, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.postJSON(cctx, "/api/generate", generateRequest{
		Model:     model,
		Prompt:    prompt,
		Stream:    false,
		KeepAlive: keepAlive,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: generate status %d", resp.StatusCode)
	}
	return nil
}

// Chat performs a blocking, non-streaming chat completion.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	resp, err := c.postJSON(cctx, "/api/chat", chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama: chat status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	return decoded.Message.Content, nil
}

// ChatStream performs a streaming chat completion. Content fragments arrive on
// the first channel; both channels are closed when the stream ends. Malformed
// NDJSON lines are skipped rather than aborting the stream.
func (c *Client) ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := c.postJSON(ctx, "/api/chat", chatRequest{
			Model:    model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- fmt.Errorf("ollama: chat status %d", resp.StatusCode)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		// Long JSON lines are possible with big fragments.
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded chatResponse
			if err := json.Unmarshal(line, &decoded); err != nil {
				c.log.Debug("skipping malformed stream chunk", zap.Error(err))
				continue
			}
			if decoded.Error != "" {
				errs <- errors.New(decoded.Error)
				return
			}

			if decoded.Message.Content != "" {
				select {
				case chunks <- decoded.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			if decoded.Done {
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// Tags lists the models available on the server.
func (c *Client) Tags(ctx context.Context) ([]TagModel, error) {
	cctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: tags status %d", resp.StatusCode)
	}

	var decoded struct {
		Models []TagModel `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Models, nil
}

// PS lists models currently resident in memory.
func (c *Client) PS(ctx context.Context) ([]ProcessModel, error) {
	cctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.baseURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: ps status %d", resp.StatusCode)
	}

	var decoded struct {
		Models []ProcessModel `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Models, nil
}

// Pull downloads a model, invoking onProgress for each well-formed progress
// line. It returns once the server reports success or the stream ends.
func (c *Client) Pull(ctx context.Context, model string, onProgress func(PullProgress)) error {
	cctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	resp, err := c.postJSON(cctx, "/api/pull", map[string]any{
		"name":   model,
		"stream": true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: pull status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var decoded struct {
			Status    string `json:"status"`
			Completed int64  `json:"completed"`
			Total     int64  `json:"total"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(line, &decoded); err != nil {
			continue
		}
		if decoded.Error != "" {
			return errors.New(decoded.Error)
		}

		p := PullProgress{
			Status:    decoded.Status,
			Completed: decoded.Completed,
			Total:     decoded.Total,
		}
		switch {
		case decoded.Status == "success":
			p.Percent = 100
		case decoded.Total > 0:
			p.Percent = int(float64(decoded.Completed) / float64(decoded.Total) * 100)
		}
		if onProgress != nil {
			onProgress(p)
		}
		if decoded.Status == "success" {
			return nil
		}
	}
	return sc.Err()
}

// Delete removes a model from the server's local store.
func (c *Client) Delete(ctx context.Context, model string) error {
	b, err := json.Marshal(map[string]string{"name": model})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodDelete, c.baseURL+"/api/delete", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: delete status %d", resp.StatusCode)
	}
	return nil
}

// Health reports whether the server answers at all.
func (c *Client) Health(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
