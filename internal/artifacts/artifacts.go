// Package artifacts stores and retrieves binary/text byproducts of tool
// execution (screenshots, generated files, audio clips) referenced by a
// short-lived Reference rather than kept inline in the conversation.
package artifacts

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is the metadata record for one stored artifact.
type Artifact struct {
	Id        string
	Type      string
	MimeType  string
	Filename  string
	Size      int64
	Reference string
	SessionID string
	EdgeID    string
	CreatedAt time.Time
}

// Filter restricts ListArtifacts results.
type Filter struct {
	SessionID string
	EdgeID    string
	Type      string
	Limit     int
}

// Repository stores artifact metadata and bytes.
type Repository interface {
	StoreArtifact(ctx context.Context, art *Artifact, data io.Reader) error
	GetArtifact(ctx context.Context, id string) (*Artifact, io.ReadCloser, error)
	ListArtifacts(ctx context.Context, filter Filter) ([]*Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
}

// MemoryRepository keeps artifacts in an in-process map; used for local
// and test deployments with no durable backend configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	meta   map[string]*Artifact
	data   map[string][]byte
	logger *slog.Logger
}

// NewMemoryRepository creates an in-process artifact repository.
func NewMemoryRepository(logger *slog.Logger) *MemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryRepository{
		meta:   make(map[string]*Artifact),
		data:   make(map[string][]byte),
		logger: logger.With("component", "artifacts"),
	}
}

func (r *MemoryRepository) StoreArtifact(ctx context.Context, art *Artifact, data io.Reader) error {
	if art.Id == "" {
		art.Id = uuid.NewString()
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("artifacts: read data: %w", err)
	}
	art.Size = int64(len(buf))
	art.Reference = fmt.Sprintf("mem://%s", art.Id)
	art.CreatedAt = time.Now()

	r.mu.Lock()
	r.meta[art.Id] = art
	r.data[art.Id] = buf
	r.mu.Unlock()

	r.logger.Info("artifact stored", "id", art.Id, "type", art.Type, "size", art.Size)
	return nil
}

func (r *MemoryRepository) GetArtifact(ctx context.Context, id string) (*Artifact, io.ReadCloser, error) {
	r.mu.RLock()
	meta, ok := r.meta[id]
	data := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("artifacts: not found: %s", id)
	}
	return meta, io.NopCloser(bytes.NewReader(data)), nil
}

func (r *MemoryRepository) ListArtifacts(ctx context.Context, filter Filter) ([]*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Artifact
	for _, a := range r.meta {
		if filter.SessionID != "" && a.SessionID != filter.SessionID {
			continue
		}
		if filter.EdgeID != "" && a.EdgeID != filter.EdgeID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteArtifact(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meta[id]; !ok {
		return fmt.Errorf("artifacts: not found: %s", id)
	}
	delete(r.meta, id)
	delete(r.data, id)
	return nil
}

// SQLRepository persists metadata in a SQL table (any database/sql
// driver) and bytes inline as a BYTEA/BLOB column, for deployments that
// want artifacts to survive a process restart.
type SQLRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLRepository wraps an already-open *sql.DB, ensuring the artifacts
// table exists.
func NewSQLRepository(db *sql.DB, logger *slog.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		type TEXT,
		mime_type TEXT,
		filename TEXT,
		size BIGINT,
		reference TEXT,
		session_id TEXT,
		edge_id TEXT,
		data BYTEA,
		created_at TIMESTAMPTZ
	)`); err != nil {
		return nil, fmt.Errorf("artifacts: ensure schema: %w", err)
	}
	return &SQLRepository{db: db, logger: logger.With("component", "artifacts")}, nil
}

func (r *SQLRepository) StoreArtifact(ctx context.Context, art *Artifact, data io.Reader) error {
	if art.Id == "" {
		art.Id = uuid.NewString()
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("artifacts: read data: %w", err)
	}
	art.Size = int64(len(buf))
	art.Reference = fmt.Sprintf("sql://%s", art.Id)
	art.CreatedAt = time.Now()

	_, err = r.db.ExecContext(ctx, `INSERT INTO artifacts
		(id, type, mime_type, filename, size, reference, session_id, edge_id, data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET data=$9, size=$5`,
		art.Id, art.Type, art.MimeType, art.Filename, art.Size, art.Reference, art.SessionID, art.EdgeID, buf, art.CreatedAt)
	if err != nil {
		return fmt.Errorf("artifacts: insert: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetArtifact(ctx context.Context, id string) (*Artifact, io.ReadCloser, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, type, mime_type, filename, size, reference, session_id, edge_id, data, created_at
		FROM artifacts WHERE id = $1`, id)
	var art Artifact
	var data []byte
	if err := row.Scan(&art.Id, &art.Type, &art.MimeType, &art.Filename, &art.Size, &art.Reference, &art.SessionID, &art.EdgeID, &data, &art.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("artifacts: get: %w", err)
	}
	return &art, io.NopCloser(bytes.NewReader(data)), nil
}

func (r *SQLRepository) ListArtifacts(ctx context.Context, filter Filter) ([]*Artifact, error) {
	query := `SELECT id, type, mime_type, filename, size, reference, session_id, edge_id, created_at FROM artifacts WHERE 1=1`
	var args []any
	n := 0
	addCond := func(cond, val string) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", cond, n)
		args = append(args, val)
	}
	if filter.SessionID != "" {
		addCond("session_id", filter.SessionID)
	}
	if filter.EdgeID != "" {
		addCond("edge_id", filter.EdgeID)
	}
	if filter.Type != "" {
		addCond("type", filter.Type)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: list: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var art Artifact
		if err := rows.Scan(&art.Id, &art.Type, &art.MimeType, &art.Filename, &art.Size, &art.Reference, &art.SessionID, &art.EdgeID, &art.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &art)
	}
	return out, rows.Err()
}

func (r *SQLRepository) DeleteArtifact(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("artifacts: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("artifacts: not found: %s", id)
	}
	return nil
}
