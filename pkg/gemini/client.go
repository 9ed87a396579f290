// Package gemini completes prompts with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/retry"
)

const DefaultAgent = "gemini-2.5-flash"

var SupportedAgents = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
}

func IsAgentSupported(agent string) bool { return slices.Contains(SupportedAgents, agent) }

type Client struct {
	genai *genai.Client
	model string
	retry retry.Config
}

func NewClient(agent string) (*Client, error) {
	key, err := config.Env("GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}
	if agent == "" {
		agent = DefaultAgent
	}

	g, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{genai: g, model: agent, retry: retry.DefaultConfig()}, nil
}

// Complete asks for a JSON reply with instructions as the system
// instruction. Each call builds its own model value.
func (c *Client) Complete(ctx context.Context, instructions, input string) (string, error) {
	m := c.genai.GenerativeModel(c.model)
	m.ResponseMIMEType = "application/json"
	if instructions != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(instructions))
	}

	return retry.Do(ctx, c.retry, func() (string, error) {
		resp, err := m.GenerateContent(ctx, genai.Text(input))
		switch {
		case err == nil:
			return replyText(resp)
		case ctx.Err() != nil:
			return "", ctx.Err()
		case transient(err):
			return "", retry.Retryable(fmt.Errorf("gemini API error: %w", err))
		default:
			return "", fmt.Errorf("gemini API error: %w", err)
		}
	})
}

// replyText joins the text parts of the first candidate.
func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini API error: no candidates in reply")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini API error: reply has no text part")
	}
	return b.String(), nil
}

func transient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	s := err.Error()
	return strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "UNAVAILABLE") ||
		strings.Contains(s, "Error 429") || strings.Contains(s, "Error 503")
}

func (c *Client) Close() { _ = c.genai.Close() }
