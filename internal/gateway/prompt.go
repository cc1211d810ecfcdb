package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/pkg/models"
)

// BuildSystemPrompt composes the system prompt an agent loop would use for
// msg on sessionID: the workspace's AGENTS.md content, if enabled, prefixed
// with a short header identifying the channel and session. It exists so
// `nexus prompt` can show exactly what the loop would see without spinning
// up a provider or a full session.
func BuildSystemPrompt(cfg *config.Config, sessionID string, msg *models.Message) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("gateway: nil config")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n", sessionID)
	if msg != nil && msg.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", msg.Channel)
	}
	b.WriteString("\n")

	if cfg.Workspace.Enabled {
		name := cfg.Workspace.AgentsFile
		if name == "" {
			name = "AGENTS.md"
		}
		path := name
		if cfg.Workspace.Path != "" && !filepath.IsAbs(name) {
			path = filepath.Join(cfg.Workspace.Path, name)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return "", fmt.Errorf("gateway: read %s: %w", path, err)
			}
		} else {
			b.Write(content)
			b.WriteString("\n")
		}
	}

	if msg != nil && msg.Content != "" {
		maxChars := cfg.Workspace.MaxChars
		content := msg.Content
		if maxChars > 0 && len(content) > maxChars {
			content = content[:maxChars]
		}
		fmt.Fprintf(&b, "\n---\n%s\n", content)
	}

	return b.String(), nil
}
