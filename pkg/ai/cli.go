package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLI implements Client by shelling out to a locally installed agent CLI
// (claude or gemini). Instructions and input are sent as a single prompt.
type CLI struct {
	binary string
	args   func(prompt string) []string
}

// NewClaudeCLI creates a client for the claude CLI. model is e.g. "sonnet-4-5".
func NewClaudeCLI(model string) *CLI {
	return &CLI{binary: "claude", args: func(prompt string) []string {
		args := []string{"-p", prompt, "--output-format", "text"}
		if model != "" {
			args = append(args, "--model", "claude-"+model)
		}
		return args
	}}
}

// NewGeminiCLI creates a client for the gemini CLI. model is e.g. "flash".
func NewGeminiCLI(model string) *CLI {
	return &CLI{binary: "gemini", args: func(prompt string) []string {
		args := []string{"-p", prompt, "-o", "text"}
		if model != "" {
			args = append(args, "--model", model)
		}
		return args
	}}
}

// IsClaudeCLIAvailable checks if claude CLI is installed
func IsClaudeCLIAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

// IsGeminiCLIAvailable checks if gemini CLI is installed
func IsGeminiCLIAvailable() bool {
	_, err := exec.LookPath("gemini")
	return err == nil
}

func joinPrompt(instructions, input string) string {
	if instructions == "" {
		return input
	}
	return instructions + "\n\n" + input
}

func (c *CLI) Complete(ctx context.Context, instructions, input string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, c.args(joinPrompt(instructions, input))...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.binary, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.binary, err)
	}
	return string(output), nil
}

func (c *CLI) Close() {
	// No cleanup needed
}
