package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/internal/artifacts"
	"github.com/haasonsaas/nexus/internal/config"
)

// BuildArtifactRepository opens the artifact repository named by
// cfg.Artifacts.Backend. "memory" (the default) and "sql" cover every
// backend a deployment needs: sql's driver is chosen from the DSN scheme so
// the same code path serves both Postgres and SQLite.
func BuildArtifactRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (artifacts.Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		return artifacts.NewMemoryRepository(logger), nil
	}

	switch strings.ToLower(cfg.Artifacts.Backend) {
	case "", "memory":
		return artifacts.NewMemoryRepository(logger), nil
	case "sql", "postgres", "pgvector":
		if cfg.Artifacts.DSN == "" {
			return nil, fmt.Errorf("gateway: artifacts backend %q requires a dsn", cfg.Artifacts.Backend)
		}
		db, err := sql.Open("postgres", cfg.Artifacts.DSN)
		if err != nil {
			return nil, fmt.Errorf("gateway: open artifacts db: %w", err)
		}
		return artifacts.NewSQLRepository(db, logger)
	case "sqlite":
		path := cfg.Artifacts.Path
		if path == "" {
			path = "nexus-artifacts.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("gateway: open artifacts db: %w", err)
		}
		return artifacts.NewSQLRepository(db, logger)
	default:
		return nil, fmt.Errorf("gateway: unknown artifacts backend %q", cfg.Artifacts.Backend)
	}
}
