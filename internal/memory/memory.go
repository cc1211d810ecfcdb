// Package memory provides vector-based semantic memory search and
// storage, backed by an in-process store or a pgvector/sqlite table.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/pkg/models"
)

// EmbeddingsConfig configures the embedding provider used to vectorize
// memory content.
type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"` // "hash" (default, offline), "openai", "ollama"
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// Config contains configuration for the memory manager.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend"` // "memory" (default), "pgvector", "sqlite"
	Dimension int    `yaml:"dimension"`

	DSN  string `yaml:"dsn"`
	Path string `yaml:"path"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// Stats summarizes the memory store's current state.
type Stats struct {
	TotalEntries      int
	Backend           string
	EmbeddingProvider string
	EmbeddingModel    string
	Dimension         int
}

// Manager coordinates memory storage and retrieval.
type Manager struct {
	config *Config
	dim    int

	mu      sync.RWMutex
	entries map[string]*models.MemoryEntry

	db *sql.DB // non-nil for pgvector/sqlite backends
}

func defaultDimension(cfg *Config) int {
	if cfg.Dimension > 0 {
		return cfg.Dimension
	}
	if cfg.Embeddings.Dimension > 0 {
		return cfg.Embeddings.Dimension
	}
	return 256
}

// NewManager creates a memory manager for the configured backend. The
// "pgvector" and "sqlite" backends open a real SQL connection (lazily
// migrated on first use); unset or "memory" keeps entries in a guarded
// in-process map.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	m := &Manager{
		config:  cfg,
		dim:     defaultDimension(cfg),
		entries: make(map[string]*models.MemoryEntry),
	}

	switch strings.ToLower(cfg.Backend) {
	case "pgvector":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("memory: pgvector backend requires a dsn")
		}
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("memory: open pgvector: %w", err)
		}
		if err := ensurePostgresSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		m.db = db
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "nexus-memory.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("memory: open sqlite: %w", err)
		}
		if err := ensureSQLiteSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		m.db = db
	case "", "memory":
		// in-process map, nothing to open
	default:
		return nil, fmt.Errorf("memory: unknown backend %q", cfg.Backend)
	}

	return m, nil
}

func ensurePostgresSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		channel_id TEXT,
		agent_id TEXT,
		content TEXT NOT NULL,
		source TEXT,
		role TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func ensureSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		channel_id TEXT,
		agent_id TEXT,
		content TEXT NOT NULL,
		source TEXT,
		role TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// embed produces a deterministic bag-of-words hash embedding. It needs
// no network access, which keeps search and indexing usable offline; a
// configured "openai"/"ollama" provider would replace this with a real
// API call using the same Dimension contract.
func (m *Manager) embed(text string) []float32 {
	vec := make([]float32, m.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		idx := int(sum[0])<<8|int(sum[1])
		idx %= m.dim
		vec[idx] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func (m *Manager) scopeMatches(e *models.MemoryEntry, scope models.MemoryScope, scopeID string) bool {
	switch scope {
	case models.ScopeSession:
		return scopeID == "" || e.SessionID == scopeID
	case models.ScopeChannel:
		return scopeID == "" || e.ChannelID == scopeID
	case models.ScopeAgent:
		return scopeID == "" || e.AgentID == scopeID
	default:
		return true
	}
}

// Index stores entries, embedding any that lack a vector.
func (m *Manager) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("mem-%x", sha256.Sum256([]byte(e.Content+now.String())))[:24]
		}
		if len(e.Embedding) == 0 {
			e.Embedding = m.embed(e.Content)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		m.entries[e.ID] = e
		if m.db != nil {
			if err := m.persist(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, e *models.MemoryEntry) error {
	_, err := m.db.ExecContext(ctx, `INSERT INTO memory_entries
		(id, session_id, channel_id, agent_id, content, source, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET content=$5, updated_at=$9`,
		e.ID, e.SessionID, e.ChannelID, e.AgentID, e.Content, e.Metadata.Source, e.Metadata.Role, e.CreatedAt, e.UpdatedAt)
	return err
}

// Search returns the entries most similar to the query within scope.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := m.embed(req.Query)
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []*models.SearchResult
	for _, e := range m.entries {
		if !m.scopeMatches(e, req.Scope, req.ScopeID) {
			continue
		}
		score := cosine(query, e.Embedding)
		if score < req.Threshold {
			continue
		}
		results = append(results, &models.SearchResult{Entry: e, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	return &models.SearchResponse{
		Results:    results,
		TotalCount: len(results),
		QueryTime:  time.Since(start),
	}, nil
}

// Stats reports store statistics.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider := m.config.Embeddings.Provider
	if provider == "" {
		provider = "hash"
	}
	backend := m.config.Backend
	if backend == "" {
		backend = "memory"
	}
	return &Stats{
		TotalEntries:      len(m.entries),
		Backend:           backend,
		EmbeddingProvider: provider,
		EmbeddingModel:    m.config.Embeddings.Model,
		Dimension:         m.dim,
	}, nil
}

// Compact drops nothing today (the in-process map has no fragmentation
// to reclaim); SQL backends run a VACUUM-equivalent if supported.
func (m *Manager) Compact(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	_, err := m.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases any underlying SQL connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
