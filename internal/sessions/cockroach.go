package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/haasonsaas/nexus/pkg/models"
)

// CockroachStore is the durable Store implementation backing `nexus migrate`
// and the sessions-import/sessions-export commands. The live gateway path
// never uses it; Manager keeps sessions in memory by design.
type CockroachStore struct {
	db *sql.DB

	stmtCreateSession *sql.Stmt
	stmtGetSession    *sql.Stmt
	stmtUpdateSession *sql.Stmt
	stmtDeleteSession *sql.Stmt
	stmtGetByKey      *sql.Stmt
	stmtListSessions  *sql.Stmt
	stmtAppendMessage *sql.Stmt
	stmtGetHistory    *sql.Stmt
}

// DB exposes the underlying connection pool for migration tooling.
func (s *CockroachStore) DB() *sql.DB {
	return s.db
}

// CockroachConfig holds connection pool settings for CockroachStore.
type CockroachConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns sane pool defaults for a local cluster.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		Host:            "localhost",
		Port:            26257,
		User:            "root",
		Database:        "nexus",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewCockroachStore opens a store from discrete connection settings.
func NewCockroachStore(cfg *CockroachConfig) (*CockroachStore, error) {
	if cfg == nil {
		cfg = DefaultCockroachConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	return newCockroachStoreWithDSN(dsn, cfg)
}

// NewCockroachStoreFromDSN opens a store using a raw postgres-wire DSN, the
// form Config.Database.URL is stored in.
func NewCockroachStoreFromDSN(dsn string, cfg *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultCockroachConfig()
	}
	return newCockroachStoreWithDSN(dsn, cfg)
}

func newCockroachStoreWithDSN(dsn string, cfg *CockroachConfig) (*CockroachStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &CockroachStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return store, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, route_key, channel_id, user_id, agent_name, config, status, metadata, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("prepare create session: %w", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, route_key, channel_id, user_id, agent_name, config, status, metadata, created_at, last_active_at
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("prepare get session: %w", err)
	}

	s.stmtUpdateSession, err = s.db.Prepare(`
		UPDATE sessions SET status = $1, metadata = $2, last_active_at = $3 WHERE id = $4
	`)
	if err != nil {
		return fmt.Errorf("prepare update session: %w", err)
	}

	s.stmtDeleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("prepare delete session: %w", err)
	}

	s.stmtGetByKey, err = s.db.Prepare(`
		SELECT id, route_key, channel_id, user_id, agent_name, config, status, metadata, created_at, last_active_at
		FROM sessions WHERE route_key = $1
	`)
	if err != nil {
		return fmt.Errorf("prepare get by key: %w", err)
	}

	s.stmtListSessions, err = s.db.Prepare(`
		SELECT id, route_key, channel_id, user_id, agent_name, config, status, metadata, created_at, last_active_at
		FROM sessions WHERE agent_name = $1 OR $1 = ''
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`)
	if err != nil {
		return fmt.Errorf("prepare list sessions: %w", err)
	}

	s.stmtAppendMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, tool_calls, tool_call_id, is_error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("prepare append message: %w", err)
	}

	s.stmtGetHistory, err = s.db.Prepare(`
		SELECT id, session_id, role, content, tool_calls, tool_call_id, is_error, metadata, created_at
		FROM messages WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`)
	if err != nil {
		return fmt.Errorf("prepare get history: %w", err)
	}

	return nil
}

// Close releases prepared statements and the connection pool.
func (s *CockroachStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtUpdateSession, s.stmtDeleteSession,
		s.stmtGetByKey, s.stmtListSessions, s.stmtAppendMessage, s.stmtGetHistory,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

// Create persists a new session row.
func (s *CockroachStore) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	config, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.stmtCreateSession.ExecContext(ctx,
		session.ID, session.RouteKey, session.ChannelID, session.UserID, session.Config.AgentName,
		config, string(session.Status), metadata, session.CreatedAt, session.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get fetches a session by id.
func (s *CockroachStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return scanSession(s.stmtGetSession.QueryRowContext(ctx, id))
}

// GetByKey fetches a session by its route key.
func (s *CockroachStore) GetByKey(ctx context.Context, routeKey string) (*models.Session, error) {
	return scanSession(s.stmtGetByKey.QueryRowContext(ctx, routeKey))
}

// Update persists status, metadata, and last-active-at changes.
func (s *CockroachStore) Update(ctx context.Context, session *models.Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.stmtUpdateSession.ExecContext(ctx, string(session.Status), metadata, session.LastActiveAt, session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session row. Messages are left in place for audit trails.
func (s *CockroachStore) Delete(ctx context.Context, id string) error {
	_, err := s.stmtDeleteSession.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns sessions for an agent, or all sessions when agentName is empty.
func (s *CockroachStore) List(ctx context.Context, agentName string, opts ListOptions) ([]*models.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.stmtListSessions.QueryContext(ctx, agentName, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// AppendMessage records one message in a session's history.
func (s *CockroachStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		encoded, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = encoded
	}
	var metadata []byte
	if msg.Metadata != nil {
		encoded, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := s.stmtAppendMessage.ExecContext(ctx,
		msg.ID, sessionID, string(msg.Role), msg.Content, toolCalls, msg.ToolCallID, msg.IsError, metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetHistory returns up to limit messages for a session, newest first.
func (s *CockroachStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.stmtGetHistory.QueryContext(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var msg models.Message
		var toolCalls, metadata []byte
		var toolCallID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCalls, &toolCallID, &msg.IsError, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ToolCallID = toolCallID.String
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	return scanSessionRow(row)
}

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var session models.Session
	var userID sql.NullString
	var config, metadata []byte
	var status string
	if err := row.Scan(&session.ID, &session.RouteKey, &session.ChannelID, &userID, &session.Config.AgentName,
		&config, &status, &metadata, &session.CreatedAt, &session.LastActiveAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.UserID = userID.String
	session.Status = models.SessionStatus(status)
	if len(config) > 0 {
		agentName := session.Config.AgentName
		if err := json.Unmarshal(config, &session.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
		if session.Config.AgentName == "" {
			session.Config.AgentName = agentName
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &session, nil
}
