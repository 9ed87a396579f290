// Package ai selects the completion provider behind the classifier.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xrsl/solvx/pkg/claude"
	"github.com/xrsl/solvx/pkg/gemini"
)

// Client completes a single prompt. instructions is sent as the system
// prompt where the provider supports one.
type Client interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
	Close()
}

// DefaultAgent is the model used when ai.agent is unset.
const DefaultAgent = claude.DefaultAgent

type provider int

const (
	unknownProvider provider = iota
	claudeAPI
	geminiAPI
	claudeCLI
	geminiCLI
)

// agentName splits "claude-code:sonnet-4-5" into its provider and the model
// handed to the CLI.
type agentName struct {
	provider provider
	model    string
}

func parseAgent(agent string) agentName {
	base, model, _ := strings.Cut(agent, ":")
	switch {
	case base == "claude-code":
		return agentName{claudeCLI, model}
	case base == "gemini-cli":
		return agentName{geminiCLI, model}
	case model != "":
		return agentName{}
	case strings.HasPrefix(agent, "claude-"):
		return agentName{claudeAPI, agent}
	case strings.HasPrefix(agent, "gemini-"):
		return agentName{geminiAPI, agent}
	}
	return agentName{}
}

func (a agentName) cli() bool { return a.provider == claudeCLI || a.provider == geminiCLI }

// NewClient returns the client for agent.
func NewClient(agent string) (Client, error) {
	a := parseAgent(agent)
	switch a.provider {
	case claudeAPI:
		return claude.NewClient(a.model)
	case geminiAPI:
		return gemini.NewClient(a.model)
	case claudeCLI:
		if !IsClaudeCLIAvailable() {
			return nil, fmt.Errorf("agent %s: claude CLI not found in PATH", agent)
		}
		return NewClaudeCLI(a.model), nil
	case geminiCLI:
		if !IsGeminiCLIAvailable() {
			return nil, fmt.Errorf("agent %s: gemini CLI not found in PATH", agent)
		}
		return NewGeminiCLI(a.model), nil
	}
	return nil, fmt.Errorf("unknown agent %q (use claude-*, gemini-*, claude-code or gemini-cli)", agent)
}

// IsAgentCLI reports whether agent runs through a local CLI.
func IsAgentCLI(agent string) bool { return parseAgent(agent).cli() }

// IsAgentSupported reports whether agent names a known API model or a CLI
// that is installed.
func IsAgentSupported(agent string) bool {
	switch parseAgent(agent).provider {
	case claudeAPI:
		return claude.IsAgentSupported(agent)
	case geminiAPI:
		return gemini.IsAgentSupported(agent)
	case claudeCLI:
		return IsClaudeCLIAvailable()
	case geminiCLI:
		return IsGeminiCLIAvailable()
	}
	return false
}

// CredentialEnv names the variable holding the API key for agent. CLI agents
// manage their own credentials and get "".
func CredentialEnv(agent string) string {
	switch parseAgent(agent).provider {
	case claudeAPI:
		return "ANTHROPIC_API_KEY"
	case geminiAPI:
		return "GEMINI_API_KEY"
	}
	return ""
}

// SupportedAgents lists the installed CLIs followed by every API model.
func SupportedAgents() []string {
	var agents []string
	if IsClaudeCLIAvailable() {
		agents = append(agents, "claude-code")
	}
	if IsGeminiCLIAvailable() {
		agents = append(agents, "gemini-cli")
	}
	agents = append(agents, claude.SupportedAgents...)
	return append(agents, gemini.SupportedAgents...)
}
