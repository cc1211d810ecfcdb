// Package observability carries run/session/tool correlation identifiers
// through context so logs and traces can be joined across goroutines.
package observability

import "context"

type runIDKey struct{}
type sessionIDKey struct{}
type toolCallIDKey struct{}

// AddRunID attaches a run ID to the context.
func AddRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// GetRunID retrieves the run ID from context, or "" if unset.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// AddSessionID attaches a session ID to the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// GetSessionID retrieves the session ID from context, or "" if unset.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// AddToolCallID attaches a tool call ID to the context.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey{}, toolCallID)
}

// GetToolCallID retrieves the tool call ID from context, or "" if unset.
func GetToolCallID(ctx context.Context) string {
	id, _ := ctx.Value(toolCallIDKey{}).(string)
	return id
}
