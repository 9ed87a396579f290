// Package embed turns text into fixed-size vectors using an
// OpenAI-compatible embeddings endpoint.
//
// The client makes exactly one attempt per call. Request-path callers fail
// fast; batch callers wrap EmbedBatch in retry.Do and rely on rate-limit
// errors being marked retryable.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/retry"
)

// MaxInputChars is the longest text sent to the provider.
const MaxInputChars = 8000

// ErrRateLimited is returned when the provider rejects a request with HTTP 429.
var ErrRateLimited = errors.New("embedding provider rate limited")

// Embedder produces embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Options configures an OpenAI client.
type Options struct {
	APIKey     string // defaults to OPENAI_API_KEY
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	HTTPClient *http.Client
	// RequestsPerSecond caps the request rate. Zero means unlimited.
	RequestsPerSecond float64
}

// OpenAI calls POST {BaseURL}/embeddings.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	http       *http.Client
	limiter    *retry.RateLimiter
}

// NewOpenAI creates a client. It fails with config.ErrMissingCredential when
// no API key is available.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.APIKey == "" {
		key, err := config.Env("OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		opts.APIKey = key
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	c := &OpenAI{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		http:       hc,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = retry.NewRateLimiter(opts.RequestsPerSecond)
	}
	return c, nil
}

func (c *OpenAI) Model() string { return c.model }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns the embedding of a single text.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding per input, in input order.
func (c *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("input %d is empty", i)
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed embeddingResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests || isRateLimitBody(parsed) {
		return nil, retry.Retryable(fmt.Errorf("%w: %s", ErrRateLimited, errorMessage(parsed, data)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("embedding API error: status %d: %s", resp.StatusCode, errorMessage(parsed, data))
		if resp.StatusCode >= 500 {
			return nil, retry.Retryable(err)
		}
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding API returned invalid index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func isRateLimitBody(r embeddingResponse) bool {
	if r.Error == nil {
		return false
	}
	msg := strings.ToLower(r.Error.Type + " " + r.Error.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit")
}

func errorMessage(r embeddingResponse, raw []byte) string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	return Truncate(s, 200)
}

// Truncate shortens s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
