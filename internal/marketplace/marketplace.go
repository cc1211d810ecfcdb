// Package marketplace implements plugin discovery, installation, and
// signature verification against one or more registry indexes.
package marketplace

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/pluginsdk"
)

// ManagerConfig configures the marketplace manager.
type ManagerConfig struct {
	BasePath    string
	Registries  []string
	TrustedKeys map[string]string // name -> base64 ed25519 public key
	Logger      *slog.Logger
}

// SearchOptions filters a registry search.
type SearchOptions struct {
	Category string
	Limit    int
}

// DefaultSearchOptions returns the default search parameters.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 20}
}

// ValidatePluginID rejects IDs that could escape the plugin store path.
func ValidatePluginID(id string) error {
	if id == "" {
		return fmt.Errorf("marketplace: plugin id is required")
	}
	if strings.Contains(id, "..") || strings.HasPrefix(id, "/") || strings.ContainsAny(id, "\\\x00") {
		return fmt.Errorf("marketplace: invalid plugin id %q", id)
	}
	return nil
}

// VerifyResult is the outcome of verifying an installed plugin.
type VerifyResult struct {
	Valid            bool
	ComputedChecksum string
	SignedBy         string
	Error            error
}

// PluginInfoResult bundles registry and installation details for one plugin.
type PluginInfoResult struct {
	Manifest        *pluginsdk.MarketplaceManifest
	Installed       *pluginsdk.InstalledPlugin
	Compatible      bool
	UpdateAvailable bool
}

// InstallResult is the outcome of an install or update operation.
type InstallResult struct {
	Plugin          *pluginsdk.InstalledPlugin
	Updated         bool
	PreviousVersion string
}

// Info summarizes the marketplace's current state.
type Info struct {
	StorePath       string
	Platform        string
	InstalledCount  int
	EnabledCount    int
	AutoUpdateCount int
	HasTrustedKeys  bool
	Registries      []string
}

// Manager provides the high-level marketplace API: search, install,
// update, verify, and enable/disable installed plugins.
type Manager struct {
	basePath    string
	registries  []string
	trustedKeys map[string]ed25519.PublicKey
	logger      *slog.Logger
	httpClient  *http.Client

	mu      sync.RWMutex
	index   *pluginsdk.PluginIndex
	indexAt string
}

// NewManager creates a marketplace manager rooted at cfg.BasePath
// (defaulting to ~/.nexus/plugins), loading or initializing its index.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil {
		cfg = &ManagerConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "marketplace")
	}

	basePath := cfg.BasePath
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("marketplace: resolve home dir: %w", err)
		}
		basePath = filepath.Join(home, ".nexus", "plugins")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("marketplace: create store: %w", err)
	}

	keys := make(map[string]ed25519.PublicKey, len(cfg.TrustedKeys))
	for name, b64 := range cfg.TrustedKeys {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			logger.Warn("ignoring invalid trusted key", "name", name)
			continue
		}
		keys[name] = ed25519.PublicKey(raw)
	}

	m := &Manager{
		basePath:    basePath,
		registries:  cfg.Registries,
		trustedKeys: keys,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		indexAt:     filepath.Join(basePath, "index.json"),
	}
	if err := m.loadIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadIndex() error {
	data, err := os.ReadFile(m.indexAt)
	if os.IsNotExist(err) {
		m.index = pluginsdk.NewPluginIndex()
		m.index.Registries = m.registries
		return nil
	}
	if err != nil {
		return fmt.Errorf("marketplace: read index: %w", err)
	}
	var idx pluginsdk.PluginIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("marketplace: parse index: %w", err)
	}
	if idx.Plugins == nil {
		idx.Plugins = make(map[string]*pluginsdk.InstalledPlugin)
	}
	m.index = &idx
	return nil
}

func (m *Manager) saveIndexLocked() error {
	m.index.LastUpdated = time.Now()
	data, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.indexAt, data, 0o644)
}

func (m *Manager) fetchRegistry(ctx context.Context, url string) (*pluginsdk.RegistryIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace: fetch registry %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketplace: registry %s returned %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var idx pluginsdk.RegistryIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("marketplace: parse registry %s: %w", url, err)
	}
	return &idx, nil
}

// Search queries every configured registry and merges results, ranking
// exact and substring ID/name matches above others.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]*pluginsdk.PluginSearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	var results []*pluginsdk.PluginSearchResult

	for _, url := range m.registries {
		idx, err := m.fetchRegistry(ctx, url)
		if err != nil {
			m.logger.Warn("registry fetch failed", "registry", url, "error", err)
			continue
		}
		for _, manifest := range idx.Plugins {
			if opts.Category != "" && !containsString(manifest.Categories, opts.Category) {
				continue
			}
			score := matchScore(query, manifest)
			if query != "" && score <= 0 {
				continue
			}
			m.mu.RLock()
			installed, ok := m.index.Plugins[manifest.ID]
			m.mu.RUnlock()
			result := &pluginsdk.PluginSearchResult{Plugin: manifest, Score: score}
			if ok {
				result.Installed = true
				result.InstalledVersion = installed.Version
				result.UpdateAvailable = installed.Version != manifest.Version
			}
			results = append(results, result)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func matchScore(query string, m *pluginsdk.MarketplaceManifest) float64 {
	if query == "" {
		return 1
	}
	id := strings.ToLower(m.ID)
	name := strings.ToLower(m.Name)
	switch {
	case id == query || name == query:
		return 1
	case strings.Contains(id, query) || strings.Contains(name, query):
		return 0.7
	case strings.Contains(strings.ToLower(m.Description), query):
		return 0.4
	default:
		for _, kw := range m.Keywords {
			if strings.Contains(strings.ToLower(kw), query) {
				return 0.3
			}
		}
		return 0
	}
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func (m *Manager) findManifest(ctx context.Context, pluginID string) (*pluginsdk.MarketplaceManifest, error) {
	for _, url := range m.registries {
		idx, err := m.fetchRegistry(ctx, url)
		if err != nil {
			continue
		}
		for _, manifest := range idx.Plugins {
			if manifest.ID == pluginID {
				return manifest, nil
			}
		}
	}
	return nil, fmt.Errorf("marketplace: plugin %q not found in any registry", pluginID)
}

func (m *Manager) artifactFor(manifest *pluginsdk.MarketplaceManifest) (*pluginsdk.PluginArtifact, error) {
	for _, a := range manifest.Artifacts {
		if a.OS == runtime.GOOS && a.Arch == runtime.GOARCH {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("marketplace: no artifact for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// Install downloads, verifies, and registers a plugin.
func (m *Manager) Install(ctx context.Context, pluginID string, opts pluginsdk.InstallOptions) (*InstallResult, error) {
	if err := ValidatePluginID(pluginID); err != nil {
		return nil, err
	}
	manifest, err := m.findManifest(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if opts.Version != "" && manifest.Version != opts.Version {
		return nil, fmt.Errorf("marketplace: version %s not published for %s", opts.Version, pluginID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, alreadyInstalled := m.index.Plugins[pluginID]
	if alreadyInstalled && existing.Version == manifest.Version && !opts.Force {
		return &InstallResult{Plugin: existing}, nil
	}

	artifact, err := m.artifactFor(manifest)
	if err != nil {
		return nil, err
	}

	pluginDir := filepath.Join(m.basePath, sanitizeID(pluginID))
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return nil, err
	}
	binaryPath := filepath.Join(pluginDir, "plugin.so")

	data, checksum, err := m.download(ctx, artifact.URL)
	if err != nil {
		return nil, err
	}
	if !opts.SkipVerify {
		if artifact.Checksum != "" && artifact.Checksum != checksum {
			return nil, fmt.Errorf("marketplace: checksum mismatch for %s", pluginID)
		}
		if manifest.Signature != "" {
			if err := m.verifySignature(manifest, checksum); err != nil {
				return nil, err
			}
		}
	}
	if err := os.WriteFile(binaryPath, data, 0o755); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(pluginDir, "manifest.json")
	manifestData, _ := json.MarshalIndent(manifest, "", "  ")
	if err := os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return nil, err
	}

	now := time.Now()
	installed := &pluginsdk.InstalledPlugin{
		ID:           pluginID,
		Version:      manifest.Version,
		Path:         pluginDir,
		BinaryPath:   binaryPath,
		ManifestPath: manifestPath,
		Checksum:     checksum,
		Verified:     !opts.SkipVerify,
		InstalledAt:  now,
		UpdatedAt:    now,
		Source:       "registry",
		AutoUpdate:   opts.AutoUpdate,
		Enabled:      true,
		Config:       opts.Config,
		Manifest:     manifest,
	}

	result := &InstallResult{Plugin: installed}
	if alreadyInstalled {
		result.Updated = true
		result.PreviousVersion = existing.Version
		installed.InstalledAt = existing.InstalledAt
	}
	m.index.Plugins[pluginID] = installed
	if err := m.saveIndexLocked(); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("marketplace: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("marketplace: download %s returned %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func (m *Manager) verifySignature(manifest *pluginsdk.MarketplaceManifest, checksum string) error {
	if len(m.trustedKeys) == 0 {
		return fmt.Errorf("marketplace: no trusted keys configured to verify %s", manifest.ID)
	}
	sig, err := base64.StdEncoding.DecodeString(manifest.Signature)
	if err != nil {
		return fmt.Errorf("marketplace: invalid signature encoding: %w", err)
	}
	payload := []byte(manifest.ID + "@" + manifest.Version + ":" + checksum)
	for name, key := range m.trustedKeys {
		if ed25519.Verify(key, payload, sig) {
			m.logger.Debug("signature verified", "plugin", manifest.ID, "key", name)
			return nil
		}
	}
	return fmt.Errorf("marketplace: signature verification failed for %s", manifest.ID)
}

func sanitizeID(id string) string {
	return strings.ReplaceAll(id, "/", "__")
}

// List returns every installed plugin.
func (m *Manager) List() []*pluginsdk.InstalledPlugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*pluginsdk.InstalledPlugin, 0, len(m.index.Plugins))
	for _, p := range m.index.Plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns an installed plugin by ID.
func (m *Manager) Get(id string) (*pluginsdk.InstalledPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.index.Plugins[id]
	return p, ok
}

// CheckUpdates returns the latest available version for every installed
// plugin that has a newer version published in a registry.
func (m *Manager) CheckUpdates(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	installed := make([]*pluginsdk.InstalledPlugin, 0, len(m.index.Plugins))
	for _, p := range m.index.Plugins {
		installed = append(installed, p)
	}
	m.mu.RUnlock()

	updates := map[string]string{}
	for _, p := range installed {
		manifest, err := m.findManifest(ctx, p.ID)
		if err != nil {
			continue
		}
		if manifest.Version != p.Version {
			updates[p.ID] = manifest.Version
		}
	}
	return updates, nil
}

// UpdateAll updates every plugin with an available update.
func (m *Manager) UpdateAll(ctx context.Context) ([]*InstallResult, error) {
	updates, err := m.CheckUpdates(ctx)
	if err != nil {
		return nil, err
	}
	var results []*InstallResult
	for id := range updates {
		result, err := m.Install(ctx, id, pluginsdk.InstallOptions{Force: true})
		if err != nil {
			m.logger.Warn("update failed", "plugin", id, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// Update installs a specific version (or latest) over an existing plugin.
func (m *Manager) Update(ctx context.Context, id string, opts pluginsdk.UpdateOptions) (*InstallResult, error) {
	return m.Install(ctx, id, pluginsdk.InstallOptions{
		Version:    opts.Version,
		Force:      true,
		SkipVerify: opts.SkipVerify,
	})
}

// Uninstall removes an installed plugin's files and index entry.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.index.Plugins[id]
	if !ok {
		return fmt.Errorf("marketplace: plugin %q is not installed", id)
	}
	if err := os.RemoveAll(p.Path); err != nil {
		return err
	}
	delete(m.index.Plugins, id)
	return m.saveIndexLocked()
}

// Verify re-checks an installed plugin's binary checksum and signature.
func (m *Manager) Verify(ctx context.Context, id string) (*VerifyResult, error) {
	m.mu.RLock()
	p, ok := m.index.Plugins[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("marketplace: plugin %q is not installed", id)
	}
	data, err := os.ReadFile(p.BinaryPath)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err}, nil
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if checksum != p.Checksum {
		return &VerifyResult{Valid: false, ComputedChecksum: checksum, Error: fmt.Errorf("checksum mismatch")}, nil
	}
	signedBy := ""
	if p.Manifest != nil && p.Manifest.Signature != "" {
		for name, key := range m.trustedKeys {
			sig, err := base64.StdEncoding.DecodeString(p.Manifest.Signature)
			if err == nil && ed25519.Verify(key, []byte(p.Manifest.ID+"@"+p.Manifest.Version+":"+checksum), sig) {
				signedBy = name
				break
			}
		}
	}
	return &VerifyResult{Valid: true, ComputedChecksum: checksum, SignedBy: signedBy}, nil
}

// Info summarizes the marketplace store.
func (m *Manager) Info() *Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := &Info{
		StorePath:      m.basePath,
		Platform:       fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		InstalledCount: len(m.index.Plugins),
		HasTrustedKeys: len(m.trustedKeys) > 0,
		Registries:     m.registries,
	}
	for _, p := range m.index.Plugins {
		if p.Enabled {
			info.EnabledCount++
		}
		if p.AutoUpdate {
			info.AutoUpdateCount++
		}
	}
	return info
}

// PluginInfo returns registry and installation details for one plugin.
func (m *Manager) PluginInfo(ctx context.Context, id string) (*PluginInfoResult, error) {
	manifest, err := m.findManifest(ctx, id)
	if err != nil {
		manifest = nil
	}
	m.mu.RLock()
	installed, ok := m.index.Plugins[id]
	m.mu.RUnlock()

	result := &PluginInfoResult{Manifest: manifest, Compatible: true}
	if ok {
		result.Installed = installed
		if manifest != nil {
			result.UpdateAvailable = installed.Version != manifest.Version
		}
	}
	if manifest == nil && !ok {
		return nil, fmt.Errorf("marketplace: plugin %q not found", id)
	}
	return result, nil
}

// Enable marks an installed plugin enabled.
func (m *Manager) Enable(id string) error { return m.setEnabled(id, true) }

// Disable marks an installed plugin disabled.
func (m *Manager) Disable(id string) error { return m.setEnabled(id, false) }

func (m *Manager) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.index.Plugins[id]
	if !ok {
		return fmt.Errorf("marketplace: plugin %q is not installed", id)
	}
	p.Enabled = enabled
	p.UpdatedAt = time.Now()
	return m.saveIndexLocked()
}
