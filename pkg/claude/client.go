// Package claude completes prompts with the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/retry"
)

const DefaultAgent = "claude-haiku-4-5"

// DefaultMaxTokens bounds classification-sized responses.
const DefaultMaxTokens = 1024

// models maps agent names to Anthropic model IDs.
var models = map[string]string{
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-sonnet-4-5": "claude-sonnet-4-5-20250929",
	"claude-opus-4":     "claude-opus-4-20250514",
	"claude-opus-4-5":   "claude-opus-4-5-20251101",
	"claude-haiku-4-5":  "claude-haiku-4-5-20251001",
}

var SupportedAgents = []string{
	"claude-haiku-4-5",
	"claude-sonnet-4-5",
	"claude-sonnet-4",
	"claude-opus-4-5",
	"claude-opus-4",
}

func IsAgentSupported(agent string) bool { return slices.Contains(SupportedAgents, agent) }

// Options configures a Client.
type Options struct {
	APIKey    string // defaults to ANTHROPIC_API_KEY
	BaseURL   string
	MaxTokens int64
	Retry     *retry.Config
	RPS       float64 // requests per second, 0 disables limiting
}

type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int64
	retry     retry.Config
	limiter   *retry.RateLimiter
}

func NewClient(agent string) (*Client, error) {
	return NewClientWithOptions(agent, Options{})
}

func NewClientWithOptions(agent string, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		key, err := config.Env("ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		opts.APIKey = key
	}
	if agent == "" {
		agent = DefaultAgent
	}
	model, ok := models[agent]
	if !ok {
		model = agent
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	c := &Client{
		api:       anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: orDefault(opts.MaxTokens, DefaultMaxTokens),
		retry:     retry.DefaultConfig(),
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if opts.RPS > 0 {
		c.limiter = retry.NewRateLimiter(opts.RPS)
	}
	return c, nil
}

func orDefault(v, fallback int64) int64 {
	if v > 0 {
		return v
	}
	return fallback
}

// apiFailure classifies an error from the Messages API by HTTP status or,
// when no status is available, by the error type in its message.
type apiFailure struct {
	statuses  []int
	markers   []string
	transient bool
	message   func(model string) string
}

var failures = []apiFailure{
	{statuses: []int{401}, markers: []string{"authentication_error"},
		message: func(string) string { return "invalid API key; check ANTHROPIC_API_KEY" }},
	{statuses: []int{403}, markers: []string{"permission_error"},
		message: func(m string) string { return fmt.Sprintf("key has no access to model %q", m) }},
	{statuses: []int{404}, markers: []string{"not_found_error"},
		message: func(m string) string { return fmt.Sprintf("model %q not found", m) }},
	{statuses: []int{429}, markers: []string{"rate_limit"}, transient: true,
		message: func(m string) string { return fmt.Sprintf("rate limited on model %q", m) }},
	{statuses: []int{529}, markers: []string{"overloaded"}, transient: true,
		message: func(string) string { return "service overloaded" }},
	{statuses: []int{500, 502, 503, 504}, markers: []string{"api_error", "timeout"}, transient: true,
		message: func(string) string { return "service unavailable" }},
}

func classifyFailure(err error) (apiFailure, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		for _, f := range failures {
			if slices.Contains(f.statuses, apiErr.StatusCode) {
				return f, true
			}
		}
		return apiFailure{}, false
	}
	s := err.Error()
	for _, f := range failures {
		for _, m := range f.markers {
			if strings.Contains(s, m) {
				return f, true
			}
		}
	}
	return apiFailure{}, false
}

// wrapAPIError turns err into a readable error, marked retryable when the
// failure is transient. Credential and model errors keep only the message.
func (c *Client) wrapAPIError(err error) error {
	f, ok := classifyFailure(err)
	switch {
	case !ok:
		return fmt.Errorf("claude API error: %w", err)
	case f.transient:
		return retry.Retryable(fmt.Errorf("claude API error: %s: %w", f.message(c.model), err))
	default:
		return errors.New("claude API error: " + f.message(c.model))
	}
}

// Complete sends input as the user message with instructions as a cached
// system prompt and returns the first text block of the reply.
func (c *Client) Complete(ctx context.Context, instructions, input string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(input))},
	}
	if instructions != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         instructions,
			CacheControl: anthropic.CacheControlEphemeralParam{Type: "ephemeral"},
		}}
	}

	return retry.Do(ctx, c.retry, func() (string, error) {
		msg, err := c.api.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", c.wrapAPIError(err)
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", errors.New("claude API error: reply has no text block")
	})
}

func (c *Client) Close() {}
