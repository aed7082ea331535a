// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic indexing and housekeeping jobs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/ocms-htmlpage/internal/indexer"
	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// Job names.
const (
	JobProcessIndex = "index_process"
	JobRebuildIndex = "index_rebuild"
	JobPruneEvents  = "events_prune"
)

// Default schedules.
const (
	DefaultIndexSchedule   = "@every 1m"
	DefaultReindexSchedule = "0 3 * * *"
	DefaultPruneSchedule   = "30 3 * * *"
	DefaultEventRetention  = 30 * 24 * time.Hour
)

// jobTimeout bounds a single job run.
const jobTimeout = 10 * time.Minute

// Indexer drains the action queue and rebuilds the search index.
type Indexer interface {
	ProcessPending(ctx context.Context) (int, error)
	IndexAll(ctx context.Context) (indexer.Rebuild, error)
}

// EventPruner deletes old event log rows.
type EventPruner interface {
	DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config wires a Scheduler. Empty schedules use the defaults; a nil Events
// skips event pruning.
type Config struct {
	Indexer         Indexer
	Events          EventPruner
	IndexSchedule   string
	ReindexSchedule string
	PruneSchedule   string
	EventRetention  time.Duration
	Logger          *slog.Logger
}

// Scheduler handles the background jobs.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler instance.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IndexSchedule == "" {
		cfg.IndexSchedule = DefaultIndexSchedule
	}
	if cfg.ReindexSchedule == "" {
		cfg.ReindexSchedule = DefaultReindexSchedule
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultPruneSchedule
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = DefaultEventRetention
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		cron:     c,
		registry: NewRegistry(c, cfg.Logger),
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the job registry.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.Indexer != nil {
		if err := s.add(JobProcessIndex, "Apply queued search index actions", s.cfg.IndexSchedule, s.processIndex); err != nil {
			return err
		}
		if err := s.add(JobRebuildIndex, "Rebuild the search index from the page table", s.cfg.ReindexSchedule, s.rebuildIndex); err != nil {
			return err
		}
	}
	if s.cfg.Events != nil {
		if err := s.add(JobPruneEvents, "Delete expired event log entries", s.cfg.PruneSchedule, s.pruneEvents); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) add(name, description, schedule string, fn JobFunc) error {
	return s.registry.Register(name, description, schedule, func() {
		s.wg.Add(1)
		defer s.wg.Done()
		if s.ctx.Err() != nil {
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled job failed", "category", model.EventCategorySystem, "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
}

func (s *Scheduler) processIndex(ctx context.Context) error {
	n, err := s.cfg.Indexer.ProcessPending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("search index updated", "actions", n)
	}
	return nil
}

func (s *Scheduler) rebuildIndex(ctx context.Context) error {
	rebuild, err := s.cfg.Indexer.IndexAll(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled search index rebuild finished", "run_id", rebuild.RunID, "documents", rebuild.Documents)
	return nil
}

func (s *Scheduler) pruneEvents(ctx context.Context) error {
	n, err := s.cfg.Events.DeleteOldEvents(ctx, s.cfg.EventRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("old events deleted", "count", n, "retention", s.cfg.EventRetention)
	}
	return nil
}
