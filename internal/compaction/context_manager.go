package compaction

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Strategy selects how ContextManager.Compact reduces a session's history
// when it exceeds budget.
type Strategy string

const (
	// StrategyDropOldest discards the oldest messages until under budget.
	StrategyDropOldest Strategy = "drop_oldest"
	// StrategySummarize replaces dropped messages with a generated summary.
	StrategySummarize Strategy = "summarize"
	// StrategySliding keeps only the most recent N messages regardless of tokens.
	StrategySliding Strategy = "sliding"
)

// ManagerConfig bounds a ContextManager's window.
type ManagerConfig struct {
	MaxTokens     int
	MaxMessages   int
	Strategy      Strategy
	Summarizer    Summarizer
	SlidingWindow int // message count retained under StrategySliding
}

// ContextManager owns one session's running conversation context: the
// system prompt plus a bounded, ordered message history. It never splits
// an assistant message with tool calls from the tool-role messages that
// answer them — compaction treats such a run as a single unit.
type ContextManager struct {
	mu           sync.Mutex
	cfg          ManagerConfig
	systemPrompt string
	messages     []*models.Message
}

// NewContextManager creates a context manager with the given bounds.
func NewContextManager(cfg ManagerConfig) *ContextManager {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultContextWindow
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyDropOldest
	}
	if cfg.SlidingWindow <= 0 {
		cfg.SlidingWindow = 40
	}
	return &ContextManager{cfg: cfg}
}

// SetSystemPrompt replaces the system prompt used on the next render.
func (c *ContextManager) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = prompt
}

// SystemPrompt returns the system prompt currently in effect.
func (c *ContextManager) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.systemPrompt
}

// AddMessage appends a message to the running history.
func (c *ContextManager) AddMessage(msg *models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// GetMessages returns a copy of the current history, system prompt excluded.
func (c *ContextManager) GetMessages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear drops all history, keeping the system prompt.
func (c *ContextManager) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// EstimatedTokens returns the current history's estimated token usage,
// including the system prompt.
func (c *ContextManager) EstimatedTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimateLocked()
}

func (c *ContextManager) estimateLocked() int {
	total := EstimateTokens(&Message{Content: c.systemPrompt})
	for _, m := range toCompactionMessages(c.messages) {
		total += EstimateTokens(m)
	}
	return total
}

// NeedsCompaction reports whether the current history exceeds its budget.
func (c *ContextManager) NeedsCompaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.MaxMessages > 0 && len(c.messages) > c.cfg.MaxMessages {
		return true
	}
	return c.estimateLocked() > c.cfg.MaxTokens
}

// Compact reduces history to fit within budget using the configured
// strategy, preserving tool-call/tool-result pairing at every boundary it
// chooses. It returns the number of messages dropped.
func (c *ContextManager) Compact(ctx context.Context) (dropped int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) == 0 {
		return 0, nil
	}

	switch c.cfg.Strategy {
	case StrategySliding:
		dropped = c.compactSlidingLocked()
		return dropped, nil
	case StrategySummarize:
		return c.compactSummarizeLocked(ctx)
	default:
		dropped = c.compactDropOldestLocked()
		return dropped, nil
	}
}

// compactDropOldestLocked drops whole messages from the front, never
// stopping in the middle of a tool-call/tool-result run.
func (c *ContextManager) compactDropOldestLocked() int {
	budget := c.cfg.MaxTokens
	total := c.estimateLocked()
	if total <= budget && (c.cfg.MaxMessages <= 0 || len(c.messages) <= c.cfg.MaxMessages) {
		return 0
	}

	kept := c.messages
	droppedCount := 0
	for len(kept) > 0 {
		fits := c.cfg.MaxMessages <= 0 || len(kept) <= c.cfg.MaxMessages
		if fits {
			est := EstimateTokens(&Message{Content: c.systemPrompt})
			for _, m := range toCompactionMessages(kept) {
				est += EstimateTokens(m)
			}
			if est <= budget {
				break
			}
		}
		cut := boundaryAfterDrop(kept)
		if cut <= 0 {
			cut = 1
		}
		kept = kept[cut:]
		droppedCount += cut
	}
	c.messages = kept
	return droppedCount
}

// compactSlidingLocked keeps only the most recent SlidingWindow messages,
// expanding the cut point backward if it would split a tool-call run.
func (c *ContextManager) compactSlidingLocked() int {
	window := c.cfg.SlidingWindow
	if len(c.messages) <= window {
		return 0
	}
	cut := len(c.messages) - window
	for cut > 0 && splitsToolRun(c.messages, cut) {
		cut--
	}
	c.messages = c.messages[cut:]
	return cut
}

// compactSummarizeLocked replaces the oldest half of history with a single
// system-role summary message, preserving the most recent messages intact.
func (c *ContextManager) compactSummarizeLocked(ctx context.Context) (int, error) {
	if c.cfg.Summarizer == nil {
		return c.compactDropOldestLocked(), nil
	}

	cut := len(c.messages) / 2
	for cut > 0 && splitsToolRun(c.messages, cut) {
		cut--
	}
	if cut == 0 {
		return 0, nil
	}

	toSummarize := c.messages[:cut]
	summary, err := SummarizeChunks(ctx, toCompactionMessages(toSummarize), c.cfg.Summarizer, DefaultSummarizationConfig())
	if err != nil {
		return 0, fmt.Errorf("summarize history: %w", err)
	}

	summaryMsg := &models.Message{
		Role:    models.RoleSystem,
		Content: "Earlier conversation summary: " + summary,
	}
	c.messages = append([]*models.Message{summaryMsg}, c.messages[cut:]...)
	return cut, nil
}

// boundaryAfterDrop returns how many leading messages can be dropped
// without cutting an assistant message's tool calls off from the tool
// messages that answer them.
func boundaryAfterDrop(messages []*models.Message) int {
	if len(messages) == 0 {
		return 0
	}
	cut := 1
	for cut < len(messages) && splitsToolRun(messages, cut) {
		cut++
	}
	return cut
}

// splitsToolRun reports whether cutting messages[:cut] from messages[cut:]
// would separate an assistant tool call from its answering tool message.
func splitsToolRun(messages []*models.Message, cut int) bool {
	if cut <= 0 || cut >= len(messages) {
		return false
	}
	if len(messages[cut].ToolCallID) == 0 {
		return false
	}
	// The message right after the cut is a tool result; its pairing
	// assistant call must be before the cut for this to be a clean split.
	for i := cut - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant && len(messages[i].ToolCalls) > 0 {
			return false
		}
		if messages[i].Role != models.RoleTool {
			break
		}
	}
	return true
}

func toCompactionMessages(messages []*models.Message) []*Message {
	out := make([]*Message, len(messages))
	for i, m := range messages {
		out[i] = &Message{
			Role:      string(m.Role),
			Content:   m.Content,
			ID:        m.ID,
			Timestamp: m.CreatedAt.Unix(),
		}
	}
	return out
}
