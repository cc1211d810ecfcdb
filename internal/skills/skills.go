// Package skills discovers and gates agent skills: self-describing
// bundles of instructions and tools loaded from the workspace or
// configured extra directories.
package skills

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// InstallSpec describes one way to install a skill's dependencies.
type InstallSpec struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Kind  string `yaml:"kind" json:"kind"`
	Run   string `yaml:"run" json:"run,omitempty"`
}

// RequiresSpec lists the preconditions a skill needs to be eligible.
type RequiresSpec struct {
	Bins    []string `yaml:"bins" json:"bins,omitempty"`
	AnyBins []string `yaml:"any_bins" json:"any_bins,omitempty"`
	Env     []string `yaml:"env" json:"env,omitempty"`
	Config  []string `yaml:"config" json:"config,omitempty"`
}

// Metadata is a skill's parsed frontmatter.
type Metadata struct {
	SkillKey   string        `yaml:"skill_key" json:"skill_key,omitempty"`
	Emoji      string        `yaml:"emoji" json:"emoji,omitempty"`
	Always     bool          `yaml:"always" json:"always,omitempty"`
	OS         []string      `yaml:"os" json:"os,omitempty"`
	PrimaryEnv string        `yaml:"primary_env" json:"primary_env,omitempty"`
	Requires   *RequiresSpec `yaml:"requires" json:"requires,omitempty"`
	Install    []InstallSpec `yaml:"install" json:"install,omitempty"`
}

// SkillEntry is one discovered skill.
type SkillEntry struct {
	Name        string
	Description string
	Homepage    string
	Path        string
	Source      string // "workspace", "builtin", or the configured extra dir
	Metadata    *Metadata
	content     string
}

// ConfigKey returns the key used to look up per-skill overrides.
func (s *SkillEntry) ConfigKey() string {
	if s.Metadata != nil && s.Metadata.SkillKey != "" {
		return s.Metadata.SkillKey
	}
	return s.Name
}

// SkillConfig is a per-skill override.
type SkillConfig struct {
	Enabled *bool `yaml:"enabled" json:"enabled,omitempty"`
}

// LoadConfig configures skill discovery.
type LoadConfig struct {
	ExtraDirs       []string `yaml:"extraDirs" json:"extraDirs,omitempty"`
	Watch           bool     `yaml:"watch" json:"watch,omitempty"`
	WatchDebounceMs int      `yaml:"watchDebounceMs" json:"watchDebounceMs,omitempty"`
}

// SourceConfig names an additional discovery source.
type SourceConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SkillsConfig is the top-level skills configuration.
type SkillsConfig struct {
	Sources []SourceConfig          `yaml:"sources" json:"sources,omitempty"`
	Load    *LoadConfig             `yaml:"load" json:"load,omitempty"`
	Entries map[string]*SkillConfig `yaml:"entries" json:"entries,omitempty"`
}

// EligibilityResult reports whether a skill can run in this environment.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// Manager discovers skills and evaluates their eligibility.
type Manager struct {
	cfg           *SkillsConfig
	workspacePath string
	configValues  map[string]any

	mu        sync.RWMutex
	skills    map[string]*SkillEntry
	ineligible map[string]string
}

// NewManager creates a skill manager rooted at workspacePath, scanning
// workspacePath/.nexus/skills plus any configured extra directories.
func NewManager(cfg *SkillsConfig, workspacePath string, configValues map[string]any) (*Manager, error) {
	if cfg == nil {
		cfg = &SkillsConfig{}
	}
	return &Manager{
		cfg:           cfg,
		workspacePath: workspacePath,
		configValues:  configValues,
		skills:        make(map[string]*SkillEntry),
		ineligible:    make(map[string]string),
	}, nil
}

func (m *Manager) searchDirs() []string {
	var dirs []string
	if m.workspacePath != "" {
		dirs = append(dirs, filepath.Join(m.workspacePath, ".nexus", "skills"))
	}
	for _, src := range m.cfg.Sources {
		if src.Path != "" {
			dirs = append(dirs, src.Path)
		}
	}
	if m.cfg.Load != nil {
		dirs = append(dirs, m.cfg.Load.ExtraDirs...)
	}
	return dirs
}

// Discover scans every search directory for SKILL.md bundles.
func (m *Manager) Discover(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills = make(map[string]*SkillEntry)
	m.ineligible = make(map[string]string)

	for _, dir := range m.searchDirs() {
		source := filepath.Base(dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // optional source; skip missing directories
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			skillPath := filepath.Join(dir, entry.Name(), "SKILL.md")
			data, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			skill, err := parseSkill(entry.Name(), skillPath, source, data)
			if err != nil {
				m.ineligible[entry.Name()] = err.Error()
				continue
			}
			m.skills[skill.Name] = skill
		}
	}

	for name, skill := range m.skills {
		result := m.evaluate(skill)
		if !result.Eligible {
			m.ineligible[name] = result.Reason
		}
	}
	return nil
}

func parseSkill(name, path, source string, data []byte) (*SkillEntry, error) {
	content := string(data)
	meta := &Metadata{}
	description := ""
	homepage := ""
	body := content

	if strings.HasPrefix(content, "---") {
		parts := strings.SplitN(content[3:], "---", 2)
		if len(parts) == 2 {
			if err := yaml.Unmarshal([]byte(parts[0]), meta); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			body = strings.TrimSpace(parts[1])
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if description == "" && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			description = trimmed
		}
		if strings.HasPrefix(trimmed, "Homepage:") {
			homepage = strings.TrimSpace(strings.TrimPrefix(trimmed, "Homepage:"))
		}
	}

	return &SkillEntry{
		Name:        name,
		Description: description,
		Homepage:    homepage,
		Path:        path,
		Source:      source,
		Metadata:    meta,
		content:     body,
	}, nil
}

func (m *Manager) evaluate(skill *SkillEntry) *EligibilityResult {
	if skill.Metadata == nil || skill.Metadata.Requires == nil {
		return &EligibilityResult{Eligible: true}
	}
	req := skill.Metadata.Requires

	for _, bin := range req.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return &EligibilityResult{Eligible: false, Reason: fmt.Sprintf("missing required binary: %s", bin)}
		}
	}
	if len(req.AnyBins) > 0 {
		found := false
		for _, bin := range req.AnyBins {
			if _, err := exec.LookPath(bin); err == nil {
				found = true
				break
			}
		}
		if !found {
			return &EligibilityResult{Eligible: false, Reason: fmt.Sprintf("none of the binaries found: %v", req.AnyBins)}
		}
	}
	for _, env := range req.Env {
		if os.Getenv(env) == "" {
			return &EligibilityResult{Eligible: false, Reason: fmt.Sprintf("missing required env var: %s", env)}
		}
	}
	for _, key := range req.Config {
		if _, ok := m.configValues[key]; !ok {
			return &EligibilityResult{Eligible: false, Reason: fmt.Sprintf("missing required config key: %s", key)}
		}
	}
	return &EligibilityResult{Eligible: true}
}

// IsEnabled reports whether a skill is enabled given config overrides.
func (s *SkillEntry) IsEnabled(overrides map[string]*SkillConfig) bool {
	cfg, ok := overrides[s.ConfigKey()]
	if !ok || cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// ListAll returns every discovered skill, sorted by name.
func (m *Manager) ListAll() []*SkillEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SkillEntry, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListEligible returns discovered skills that are both enabled and eligible.
func (m *Manager) ListEligible() []*SkillEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SkillEntry, 0, len(m.skills))
	for name, s := range m.skills {
		if _, ineligible := m.ineligible[name]; ineligible {
			continue
		}
		if !s.IsEnabled(m.cfg.Entries) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetIneligibleReasons returns the reason each ineligible skill was excluded.
func (m *Manager) GetIneligibleReasons() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.ineligible))
	for k, v := range m.ineligible {
		out[k] = v
	}
	return out
}

// GetSkill looks up a discovered skill by name.
func (m *Manager) GetSkill(name string) (*SkillEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[name]
	return s, ok
}

// CheckEligibility re-evaluates a skill's eligibility by name.
func (m *Manager) CheckEligibility(name string) (*EligibilityResult, error) {
	m.mu.RLock()
	skill, ok := m.skills[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("skills: unknown skill %q", name)
	}
	return m.evaluate(skill), nil
}

// LoadContent returns the skill's body content (frontmatter stripped).
func (m *Manager) LoadContent(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	skill, ok := m.skills[name]
	if !ok {
		return "", fmt.Errorf("skills: unknown skill %q", name)
	}
	return skill.content, nil
}
