package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// TraceFilePath returns the path a run's trace file lives at under dir.
func TraceFilePath(dir, runID string) string {
	return filepath.Join(dir, runID+".jsonl")
}

// TracePlugin writes AgentEvents to a JSONL file for debugging and replay.
// Each event is written as a single JSON line, flushed immediately for crash safety.
type TracePlugin struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File // non-nil if we opened the file ourselves
	redactor Redactor
	header   *TraceHeader
	started  bool
}

// TraceHeader is the first line of a trace file, carrying run metadata.
type TraceHeader struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	AppVersion  string    `json:"app_version"`
	Environment string    `json:"environment"`
}

// Redactor strips sensitive data from an event in place before it is traced.
type Redactor func(e *models.AgentEvent)

// TraceOption configures a TracePlugin.
type TraceOption func(*TracePlugin)

// WithRedactor sets a custom redactor.
func WithRedactor(r Redactor) TraceOption {
	return func(p *TracePlugin) { p.redactor = r }
}

// WithAppVersion stamps the trace header with the running application version.
func WithAppVersion(version string) TraceOption {
	return func(p *TracePlugin) {
		if p.header != nil {
			p.header.AppVersion = version
		}
	}
}

// WithEnvironment stamps the trace header with the deployment environment.
func WithEnvironment(env string) TraceOption {
	return func(p *TracePlugin) {
		if p.header != nil {
			p.header.Environment = env
		}
	}
}

// NewTracePlugin creates a trace plugin writing JSONL events to w.
func NewTracePlugin(w io.Writer, runID string, opts ...TraceOption) *TracePlugin {
	p := &TracePlugin{
		writer: w,
		header: &TraceHeader{
			Version:   1,
			RunID:     runID,
			StartedAt: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewTracePluginFile creates a trace plugin writing to path, creating or
// truncating it. The caller must call Close when done.
func NewTracePluginFile(path string, runID string, opts ...TraceOption) (*TracePlugin, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	p := NewTracePlugin(f, runID, opts...)
	p.file = f
	return p, nil
}

// OnEvent implements the Plugin interface by writing the event as JSONL.
func (p *TracePlugin) OnEvent(ctx context.Context, e models.AgentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		p.writeHeaderLocked()
	}

	eventCopy := e
	if p.redactor != nil {
		p.redactor(&eventCopy)
	}

	data, err := json.Marshal(eventCopy)
	if err != nil {
		return
	}
	if _, err := p.writer.Write(data); err != nil {
		return
	}
	if _, err := p.writer.Write([]byte("\n")); err != nil {
		return
	}
	if p.file != nil {
		_ = p.file.Sync()
	}
}

func (p *TracePlugin) writeHeaderLocked() {
	data, err := json.Marshal(p.header)
	if err != nil {
		return
	}
	if _, err := p.writer.Write(data); err != nil {
		return
	}
	if _, err := p.writer.Write([]byte("\n")); err != nil {
		return
	}
	if p.file != nil {
		_ = p.file.Sync()
	}
}

// Close closes the underlying file, if one was opened by NewTracePluginFile.
func (p *TracePlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// TraceReader reads AgentEvents back out of a JSONL trace file.
type TraceReader struct {
	decoder *json.Decoder
	header  *TraceHeader
}

// NewTraceReader reads and validates the trace header from r.
func NewTraceReader(r io.Reader) (*TraceReader, error) {
	decoder := json.NewDecoder(r)

	var header TraceHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("read trace header: %w", err)
	}
	if header.Version != 1 {
		return nil, fmt.Errorf("unsupported trace version: %d", header.Version)
	}

	return &TraceReader{decoder: decoder, header: &header}, nil
}

// Header returns the trace's run metadata.
func (r *TraceReader) Header() *TraceHeader {
	return r.header
}

// ReadEvent reads the next event, returning io.EOF once exhausted.
func (r *TraceReader) ReadEvent() (*models.AgentEvent, error) {
	var event models.AgentEvent
	if err := r.decoder.Decode(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ReadAll reads every remaining event into a slice.
func (r *TraceReader) ReadAll() ([]models.AgentEvent, error) {
	var events []models.AgentEvent
	for {
		event, err := r.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return events, err
		}
		events = append(events, *event)
	}
	return events, nil
}

// DefaultRedactor blanks tool call args and results, the fields most likely
// to carry sensitive payloads.
func DefaultRedactor(e *models.AgentEvent) {
	if e.Tool == nil {
		return
	}
	if len(e.Tool.ArgsJSON) > 0 {
		e.Tool.ArgsJSON = []byte(`"[REDACTED]"`)
	}
	if len(e.Tool.ResultJSON) > 0 {
		e.Tool.ResultJSON = []byte(`"[REDACTED]"`)
	}
}

// TraceReplayer replays events from a trace file to an EventSink.
type TraceReplayer struct {
	reader  *TraceReader
	sink    EventSink
	speed   float64 // 1.0 = real-time, 0 = as fast as possible
	fromSeq uint64
	toSeq   uint64
}

// ReplayOption configures a TraceReplayer.
type ReplayOption func(*TraceReplayer)

// WithSpeed sets the replay speed multiplier. 1.0 is real-time, 0 replays as
// fast as possible.
func WithSpeed(speed float64) ReplayOption {
	return func(r *TraceReplayer) { r.speed = speed }
}

// WithSequenceRange limits replay to the given sequence number range.
func WithSequenceRange(from, to uint64) ReplayOption {
	return func(r *TraceReplayer) {
		r.fromSeq = from
		r.toSeq = to
	}
}

// NewTraceReplayer creates a replayer reading from reader and emitting to sink.
func NewTraceReplayer(reader *TraceReader, sink EventSink, opts ...ReplayOption) *TraceReplayer {
	r := &TraceReplayer{reader: reader, sink: sink}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replay plays every event from the trace to the sink and returns stats.
func (r *TraceReplayer) Replay(ctx context.Context) (*ReplayStats, error) {
	stats := &ReplayStats{Header: r.reader.Header()}

	var lastTime time.Time
	var events []models.AgentEvent

	for {
		event, err := r.reader.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}

		if r.fromSeq > 0 && event.Sequence < r.fromSeq {
			continue
		}
		if r.toSeq > 0 && event.Sequence > r.toSeq {
			break
		}

		if r.speed > 0 && !lastTime.IsZero() && !event.Time.IsZero() {
			delay := event.Time.Sub(lastTime)
			if delay > 0 {
				scaled := time.Duration(float64(delay) / r.speed)
				select {
				case <-time.After(scaled):
				case <-ctx.Done():
					return stats, ctx.Err()
				}
			}
		}
		lastTime = event.Time

		r.sink.Emit(ctx, *event)
		events = append(events, *event)
		stats.EventCount++

		if event.Sequence > stats.LastSequence {
			stats.LastSequence = event.Sequence
		}
		if stats.FirstSequence == 0 || event.Sequence < stats.FirstSequence {
			stats.FirstSequence = event.Sequence
		}
	}

	stats.Errors = r.validateTrace(events)
	return stats, nil
}

func (r *TraceReplayer) validateTrace(events []models.AgentEvent) []string {
	var errors []string

	if len(events) == 0 {
		return append(errors, "trace has no events")
	}

	if events[0].Type != models.AgentEventRunStarted {
		errors = append(errors, "first event should be run.started")
	}

	last := events[len(events)-1]
	if last.Type != models.AgentEventRunError && last.Type != models.AgentEventRunFinished {
		errors = append(errors, "last event should be run.finished or run.error")
	}

	var lastSeq uint64
	for i, e := range events {
		if i > 0 && e.Sequence <= lastSeq {
			errors = append(errors, fmt.Sprintf("sequence not strictly increasing at event %d: %d <= %d", i, e.Sequence, lastSeq))
		}
		lastSeq = e.Sequence
	}

	return errors
}

// ReplayStats reports the outcome of a trace replay.
type ReplayStats struct {
	Header        *TraceHeader
	EventCount    int
	FirstSequence uint64
	LastSequence  uint64
	Errors        []string
}

// Valid reports whether the replay passed all validation checks.
func (s *ReplayStats) Valid() bool {
	return len(s.Errors) == 0
}

// ReplayToStats replays a trace through a StatsCollector and returns the
// accumulated run statistics.
func ReplayToStats(reader *TraceReader) (*models.RunStats, error) {
	collector := NewStatsCollector(reader.Header().RunID)
	replayer := NewTraceReplayer(reader, NewCallbackSink(collector.OnEvent))

	if _, err := replayer.Replay(context.Background()); err != nil {
		return nil, err
	}
	return collector.Stats(), nil
}
