// import.go implements JSONL-based session/history import and export for
// the `nexus migrate sessions-import`/`sessions-export` commands.
package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ImportFormat identifies a JSONL record's payload type.
type ImportFormat string

const (
	FormatSession ImportFormat = "session"
	FormatMessage ImportFormat = "message"
)

// ImportRecord is a single line in a sessions JSONL file.
type ImportRecord struct {
	Type    ImportFormat   `json:"type"`
	Session *SessionRecord `json:"session,omitempty"`
	Message *MessageRecord `json:"message,omitempty"`
}

// SessionRecord is the JSONL shape of a models.Session.
type SessionRecord struct {
	ID           string         `json:"id"`
	AgentName    string         `json:"agent_name"`
	ChannelID    string         `json:"channel_id"`
	UserID       string         `json:"user_id,omitempty"`
	RouteKey     string         `json:"route_key"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at,omitempty"`
}

// MessageRecord is the JSONL shape of a models.Message.
type MessageRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ImportResult tracks the outcome of an import run.
type ImportResult struct {
	SessionsImported int
	SessionsSkipped  int
	MessagesImported int
	MessagesSkipped  int
	Errors           []string
	Warnings         []string
	Duration         time.Duration

	// SessionIDMap maps source session IDs to the IDs they were written under.
	SessionIDMap map[string]string
}

// ImportOptions configures how ImportFromFile/ImportFromReader behave.
type ImportOptions struct {
	DryRun         bool
	SkipDuplicates bool
	DefaultAgentID string
	PreserveIDs    bool
}

// Importer replays a JSONL export into a Store.
type Importer struct {
	store Store
}

// NewImporter creates an importer backed by store.
func NewImporter(store Store) *Importer {
	return &Importer{store: store}
}

// ImportFromFile opens path and imports it.
func (i *Importer) ImportFromFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()
	return i.ImportFromReader(ctx, file, opts)
}

// ImportFromReader imports sessions first, then messages, so message records
// can resolve their session's (possibly remapped) ID.
func (i *Importer) ImportFromReader(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{SessionIDMap: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	var sessionRecords, messageRecords []ImportRecord

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record ImportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: parse error: %v", lineNum, err))
			continue
		}
		switch record.Type {
		case FormatSession:
			if record.Session == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: session record missing session data", lineNum))
				continue
			}
			sessionRecords = append(sessionRecords, record)
		case FormatMessage:
			if record.Message == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: message record missing message data", lineNum))
				continue
			}
			messageRecords = append(messageRecords, record)
		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: unknown record type %q", lineNum, record.Type))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	for _, rec := range sessionRecords {
		if err := i.importSession(ctx, rec.Session, opts, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session %s: %v", rec.Session.ID, err))
		}
	}
	for _, rec := range messageRecords {
		if err := i.importMessage(ctx, rec.Message, opts, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", rec.Message.ID, err))
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (i *Importer) importSession(ctx context.Context, rec *SessionRecord, opts ImportOptions, result *ImportResult) error {
	agentName := rec.AgentName
	if agentName == "" {
		agentName = opts.DefaultAgentID
	}
	if agentName == "" {
		agentName = "default"
	}

	if existing, err := i.store.GetByKey(ctx, rec.RouteKey); err == nil && existing != nil {
		if opts.SkipDuplicates {
			result.SessionsSkipped++
			result.SessionIDMap[rec.ID] = existing.ID
			return nil
		}
		return fmt.Errorf("session already exists with route key %s", rec.RouteKey)
	}

	if opts.DryRun {
		result.SessionsImported++
		result.SessionIDMap[rec.ID] = rec.ID
		return nil
	}

	newID := rec.ID
	if !opts.PreserveIDs || newID == "" {
		newID = uuid.NewString()
	}

	session := &models.Session{
		ID:           newID,
		ChannelID:    rec.ChannelID,
		UserID:       rec.UserID,
		RouteKey:     rec.RouteKey,
		Config:       models.SessionConfig{AgentName: agentName},
		Status:       models.SessionStatus(rec.Status),
		CreatedAt:    rec.CreatedAt,
		LastActiveAt: rec.LastActiveAt,
	}
	if session.Status == "" {
		session.Status = models.SessionCompleted
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = session.CreatedAt
	}

	if err := i.store.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	result.SessionsImported++
	result.SessionIDMap[rec.ID] = newID
	return nil
}

func (i *Importer) importMessage(ctx context.Context, rec *MessageRecord, opts ImportOptions, result *ImportResult) error {
	sessionID, ok := result.SessionIDMap[rec.SessionID]
	if !ok {
		return fmt.Errorf("unknown session ID %s", rec.SessionID)
	}
	if opts.DryRun {
		result.MessagesImported++
		return nil
	}

	newID := rec.ID
	if !opts.PreserveIDs || newID == "" {
		newID = uuid.NewString()
	}

	msg := &models.Message{
		ID:         newID,
		SessionID:  sessionID,
		Role:       models.Role(rec.Role),
		Content:    rec.Content,
		ToolCalls:  rec.ToolCalls,
		ToolCallID: rec.ToolCallID,
		IsError:    rec.IsError,
		Metadata:   rec.Metadata,
		CreatedAt:  rec.CreatedAt,
	}

	if err := i.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	result.MessagesImported++
	return nil
}

// FormatImportResult renders a human-readable summary of an import run.
func FormatImportResult(result *ImportResult) string {
	var s string
	s += "Import Results\n"
	s += "==============\n\n"
	s += fmt.Sprintf("Sessions: %d imported, %d skipped\n", result.SessionsImported, result.SessionsSkipped)
	s += fmt.Sprintf("Messages: %d imported, %d skipped\n", result.MessagesImported, result.MessagesSkipped)
	s += fmt.Sprintf("Duration: %v\n", result.Duration.Round(time.Millisecond))

	if len(result.Errors) > 0 {
		s += fmt.Sprintf("\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			s += fmt.Sprintf("  - %s\n", e)
		}
	}
	if len(result.Warnings) > 0 {
		s += fmt.Sprintf("\nWarnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			s += fmt.Sprintf("  - %s\n", w)
		}
	}
	return s
}

// ExportToJSONL writes every session (optionally scoped to agentID) and its
// message history as a JSONL stream: one session record followed by its
// messages, oldest session first.
func ExportToJSONL(ctx context.Context, store Store, w io.Writer, agentID string) error {
	sessionList, err := store.List(ctx, agentID, ListOptions{Limit: 10000})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	encoder := json.NewEncoder(w)
	for _, session := range sessionList {
		rec := ImportRecord{
			Type: FormatSession,
			Session: &SessionRecord{
				ID:           session.ID,
				AgentName:    session.Config.AgentName,
				ChannelID:    session.ChannelID,
				UserID:       session.UserID,
				RouteKey:     session.RouteKey,
				Status:       string(session.Status),
				CreatedAt:    session.CreatedAt,
				LastActiveAt: session.LastActiveAt,
			},
		}
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("encode session %s: %w", session.ID, err)
		}

		messages, err := store.GetHistory(ctx, session.ID, 10000)
		if err != nil {
			return fmt.Errorf("get history for %s: %w", session.ID, err)
		}
		for _, msg := range messages {
			msgRec := ImportRecord{
				Type: FormatMessage,
				Message: &MessageRecord{
					ID:         msg.ID,
					SessionID:  session.ID,
					Role:       string(msg.Role),
					Content:    msg.Content,
					ToolCalls:  msg.ToolCalls,
					ToolCallID: msg.ToolCallID,
					IsError:    msg.IsError,
					Metadata:   msg.Metadata,
					CreatedAt:  msg.CreatedAt,
				},
			}
			if err := encoder.Encode(msgRec); err != nil {
				return fmt.Errorf("encode message %s: %w", msg.ID, err)
			}
		}
	}
	return nil
}
