package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/xrsl/solvx/pkg/config"
)

func TestIsAgentSupported(t *testing.T) {
	tests := []struct {
		agent    string
		expected bool
	}{
		{"gemini-2.5-flash", true},
		{"gemini-2.5-pro", true},
		{"claude-sonnet-4", true},
		{"claude-haiku-4-5", true},
		{"invalid-model", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.agent, func(t *testing.T) {
			got := IsAgentSupported(tt.agent)
			if got != tt.expected {
				t.Errorf("IsAgentSupported(%q) = %v, want %v", tt.agent, got, tt.expected)
			}
		})
	}
}

func TestDefaultAgentSupported(t *testing.T) {
	if !IsAgentSupported(DefaultAgent) {
		t.Errorf("DefaultAgent %q is not supported", DefaultAgent)
	}
}

func TestSupportedAgents(t *testing.T) {
	agents := SupportedAgents()

	hasGemini, hasClaude := false, false
	for _, m := range agents {
		if strings.HasPrefix(m, "gemini-2") {
			hasGemini = true
		}
		if strings.HasPrefix(m, "claude-haiku") {
			hasClaude = true
		}
	}
	if !hasGemini || !hasClaude {
		t.Errorf("SupportedAgents() missing providers: %v", agents)
	}
}

func TestNewClientMissingCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	for _, agent := range []string{"gemini-2.5-flash", "claude-haiku-4-5"} {
		if _, err := NewClient(agent); !errors.Is(err, config.ErrMissingCredential) {
			t.Errorf("NewClient(%q) error = %v, want ErrMissingCredential", agent, err)
		}
	}
}

func TestNewClientInvalid(t *testing.T) {
	_, err := NewClient("invalid-model")
	if err == nil {
		t.Error("Expected error for invalid model")
	}
}

func TestCredentialEnv(t *testing.T) {
	tests := map[string]string{
		"claude-haiku-4-5": "ANTHROPIC_API_KEY",
		"gemini-2.5-flash": "GEMINI_API_KEY",
		"claude-code":      "",
		"gemini-cli:flash": "",
	}
	for agent, want := range tests {
		if got := CredentialEnv(agent); got != want {
			t.Errorf("CredentialEnv(%q) = %q, want %q", agent, got, want)
		}
	}
}

func TestParseAgent(t *testing.T) {
	tests := []struct {
		agent string
		want  agentName
	}{
		{"claude-haiku-4-5", agentName{claudeAPI, "claude-haiku-4-5"}},
		{"gemini-2.5-pro", agentName{geminiAPI, "gemini-2.5-pro"}},
		{"claude-code", agentName{claudeCLI, ""}},
		{"claude-code:opus-4-5", agentName{claudeCLI, "opus-4-5"}},
		{"gemini-cli:flash", agentName{geminiCLI, "flash"}},
		{"claude-haiku-4-5:extra", agentName{}},
		{"gpt-4o", agentName{}},
		{"", agentName{}},
	}
	for _, tt := range tests {
		if got := parseAgent(tt.agent); got != tt.want {
			t.Errorf("parseAgent(%q) = %+v, want %+v", tt.agent, got, tt.want)
		}
	}
	if !IsAgentCLI("gemini-cli") || IsAgentCLI("gemini-2.5-flash") {
		t.Error("IsAgentCLI misclassifies agents")
	}
}

func TestJoinPrompt(t *testing.T) {
	if got := joinPrompt("sys", "user"); got != "sys\n\nuser" {
		t.Errorf("joinPrompt() = %q", got)
	}
	if got := joinPrompt("", "user"); got != "user" {
		t.Errorf("joinPrompt() = %q", got)
	}
}

func TestNewClientClaudeCLI(t *testing.T) {
	if !IsClaudeCLIAvailable() {
		t.Skip("Claude CLI not available")
	}

	client, err := NewClient("claude-code:sonnet-4-5")
	if err != nil {
		t.Fatalf("NewClient(claude-code:sonnet-4-5) error: %v", err)
	}
	defer client.Close()
}
