// Package cron evaluates cron-style job schedules once a minute and
// synthesises InboundMessages into the gateway's pipeline, the same way
// a real channel adapter would.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/nexus/pkg/models"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job describes one scheduled trigger.
type Job struct {
	Name     string
	Schedule string
	Message  string
	Enabled  bool
	UserID   string

	schedule cron.Schedule
}

// Dispatcher is how the scheduler feeds a fired job into the rest of the
// pipeline; the gateway wires this to the same inbound handling real
// channel adapters use.
type Dispatcher func(ctx context.Context, msg *models.InboundMessage) error

// Scheduler evaluates every registered job on each wall-clock minute
// tick and dispatches an InboundMessage for jobs whose schedule matches.
type Scheduler struct {
	dispatch Dispatcher
	logger   *slog.Logger

	mu       sync.Mutex
	jobs     map[string]*Job
	lastFire map[string]string // job name -> last trigger-minute dedup key

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler that calls dispatch for every job that
// fires.
func NewScheduler(dispatch Dispatcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		dispatch: dispatch,
		logger:   logger.With("component", "cron"),
		jobs:     make(map[string]*Job),
		lastFire: make(map[string]string),
	}
}

// AddJob registers or replaces a job by name.
func (s *Scheduler) AddJob(job Job) error {
	sched, err := parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", job.Schedule, err)
	}
	job.schedule = sched

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &job
	return nil
}

// RemoveJob unregisters a job by name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	delete(s.lastFire, name)
}

// Size returns the number of registered jobs.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins the per-minute evaluation loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop halts the evaluation loop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	minuteKey := now.Truncate(time.Minute).Format(time.RFC3339)

	s.mu.Lock()
	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if job.schedule == nil {
			continue
		}
		if s.lastFire[job.Name] == minuteKey {
			continue
		}
		prevMinute := now.Truncate(time.Minute).Add(-time.Minute)
		next := job.schedule.Next(prevMinute)
		if !next.After(prevMinute) || next.After(now.Truncate(time.Minute)) {
			continue
		}
		s.lastFire[job.Name] = minuteKey
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.fire(ctx, job, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, job *Job, now time.Time) {
	if s.dispatch == nil {
		return
	}
	msg := &models.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: "cron:" + job.Name,
		From:      models.From{ChannelID: "cron:" + job.Name, UserID: job.UserID},
		Text:      job.Message,
		Timestamp: now,
	}
	if err := s.dispatch(ctx, msg); err != nil {
		s.logger.Error("cron job dispatch failed", "job", job.Name, "error", err)
	}
}
