package bootstrap

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts/system_prompt.txt
var defaultSystemPrompt string

// loadSystemPrompt reads path, or returns the built-in prompt when path is empty.
func loadSystemPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return strings.TrimSpace(defaultSystemPrompt), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
