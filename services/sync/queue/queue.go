// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queue is the durable secondary ingress for graph commands.
//
// Commands submitted over request/response transport are persisted as
// tasks in BadgerDB, then drained by a bounded pool of workers that call
// the same engine.Apply entry point the live websocket path uses, and
// push successful applies back through the broadcast path. Delivery is
// at-least-once: a task survives process restarts until a worker
// finishes it, and a crash between apply and task deletion replays the
// command.
//
// Delete-type commands drain ahead of everything else via a separate key
// lane that sorts first.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/engine"
	"github.com/AleutianAI/questgraph/services/sync/storage/badger"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("command queue is closed")

var (
	tasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_queue_tasks_enqueued_total",
		Help: "Tasks accepted by the command queue",
	}, []string{"lane"})

	tasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_queue_tasks_finished_total",
		Help: "Tasks finished by outcome",
	}, []string{"outcome"})
)

const (
	laneDelete = "0"
	laneNormal = "1"
)

// Task is one queued command.
type Task struct {
	ID         string            `json:"id"`
	Owner      string            `json:"owner"`
	DocID      string            `json:"docId"`
	Command    datatypes.Command `json:"command"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

func (t Task) lane() string {
	if t.Command.Type == datatypes.CmdDeleteNode || t.Command.Type == datatypes.CmdDeleteEdge {
		return laneDelete
	}
	return laneNormal
}

func (t Task) key() []byte {
	return []byte(fmt.Sprintf("queue:task:%s:%020d:%s", t.lane(), t.EnqueuedAt.UnixNano(), t.ID))
}

func deadKey(t Task) []byte {
	return []byte(fmt.Sprintf("queue:dead:%020d:%s", t.EnqueuedAt.UnixNano(), t.ID))
}

// Broadcaster re-enters the fan-out path after a queued apply succeeds.
// Satisfied by *broker.Broker.
type Broadcaster interface {
	BroadcastApplied(owner, docID string, cmd datatypes.Command, connectionID string)
}

// Config holds queue tuning.
type Config struct {
	// Workers bounds concurrent task execution.
	Workers int

	// PollInterval is the dispatcher's scan cadence when no enqueue has
	// nudged it.
	PollInterval time.Duration

	// MaxAttempts is per-task, including the first try.
	MaxAttempts int

	// RetryInitialInterval seeds the exponential backoff between
	// attempts.
	RetryInitialInterval time.Duration

	// Logger for queue operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the production defaults: 4 workers, 3 attempts,
// 250ms initial backoff.
func DefaultConfig() Config {
	return Config{
		Workers:              4,
		PollInterval:         500 * time.Millisecond,
		MaxAttempts:          3,
		RetryInitialInterval: 250 * time.Millisecond,
	}
}

// Queue is the durable, retrying command ingress.
//
// Thread Safety: safe for concurrent use.
type Queue struct {
	db          *badger.DB
	engine      *engine.Engine
	broadcaster Broadcaster
	cfg         Config
	logger      *slog.Logger

	nudge  chan struct{}
	cancel context.CancelFunc
	group  *errgroup.Group
	sem    *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
}

// New creates a Queue. Call Start to begin draining.
func New(db *badger.DB, eng *engine.Engine, bc Broadcaster, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultConfig().RetryInitialInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		db:          db,
		engine:      eng,
		broadcaster: bc,
		cfg:         cfg,
		logger:      cfg.Logger,
		nudge:       make(chan struct{}, 1),
		sem:         semaphore.NewWeighted(int64(cfg.Workers)),
		inflight:    make(map[string]struct{}),
	}
}

// Enqueue persists a command as a pending task and nudges the
// dispatcher. Returns the task id.
func (q *Queue) Enqueue(ctx context.Context, owner, docID string, cmd datatypes.Command) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", ErrQueueClosed
	}

	task := Task{
		ID:         uuid.New().String(),
		Owner:      owner,
		DocID:      docID,
		Command:    cmd,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	err = q.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(task.key(), raw)
	})
	if err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}
	tasksEnqueued.WithLabelValues(task.lane()).Inc()

	select {
	case q.nudge <- struct{}{}:
	default:
	}
	return task.ID, nil
}

// Start launches the dispatcher. Pending tasks from a previous process
// lifetime are picked up on the first scan.
func (q *Queue) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel
	q.group, ctx = errgroup.WithContext(ctx)
	q.group.Go(func() error {
		q.dispatch(ctx)
		return nil
	})
}

// Stop halts the dispatcher and waits for in-flight tasks to finish.
// Unfinished pending tasks stay in BadgerDB for the next start.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
		_ = q.group.Wait()
	}
}

// dispatch scans for pending tasks and hands them to workers, respecting
// the worker bound. Lexicographic key order makes the delete lane drain
// first.
func (q *Queue) dispatch(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		q.drainPending(ctx)
		select {
		case <-ctx.Done():
			return
		case <-q.nudge:
		case <-ticker.C:
		}
	}
}

func (q *Queue) drainPending(ctx context.Context) {
	tasks, err := q.pendingTasks(ctx)
	if err != nil {
		q.logger.Warn("queue scan failed", slog.String("error", err.Error()))
		return
	}
	for _, task := range tasks {
		if !q.claim(task.ID) {
			continue
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.release(task.ID)
			return
		}
		t := task
		q.group.Go(func() error {
			defer q.sem.Release(1)
			defer q.release(t.ID)
			q.run(ctx, t)
			return nil
		})
	}
}

func (q *Queue) pendingTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := q.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte("queue:task:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var t Task
			if err := json.Unmarshal(raw, &t); err != nil {
				q.logger.Warn("skipping undecodable task",
					slog.String("key", string(it.Item().Key())))
				continue
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

// run executes one task with exponential-backoff retries. Store
// unavailability retries up to MaxAttempts; command-level rejections
// (unknown type, missing target, bad payload) are permanent and never
// retried.
func (q *Queue) run(ctx context.Context, task Task) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(q.cfg.RetryInitialInterval)),
			uint64(q.cfg.MaxAttempts-1)),
		ctx)

	err := backoff.Retry(func() error {
		_, applyErr := q.engine.Apply(ctx, task.Owner, task.DocID, task.Command, "")
		if applyErr == nil {
			return nil
		}
		if errors.Is(applyErr, store.ErrUnavailable) {
			return applyErr
		}
		return backoff.Permanent(applyErr)
	}, policy)

	if err != nil {
		q.finish(ctx, task, err)
		return
	}

	if err := q.remove(ctx, task); err != nil {
		// The apply is durable; a replay of this task is the documented
		// at-least-once cost of failing here.
		q.logger.Warn("finished task not removed, will replay",
			slog.String("task_id", task.ID), slog.String("error", err.Error()))
	}
	tasksFinished.WithLabelValues("applied").Inc()
	if q.broadcaster != nil {
		q.broadcaster.BroadcastApplied(task.Owner, task.DocID, task.Command, "")
	}
}

// finish disposes of a failed task: permanent rejections are dropped,
// exhausted retries are parked under a dead-letter key for inspection.
func (q *Queue) finish(ctx context.Context, task Task, cause error) {
	if !errors.Is(cause, store.ErrUnavailable) {
		q.logger.Warn("queued command rejected",
			slog.String("task_id", task.ID), slog.String("command", string(task.Command.Type)),
			slog.String("error", cause.Error()))
		tasksFinished.WithLabelValues("rejected").Inc()
		_ = q.remove(ctx, task)
		return
	}

	q.logger.Error("queued command exhausted retries",
		slog.String("task_id", task.ID), slog.String("doc_id", task.DocID),
		slog.String("error", cause.Error()))
	tasksFinished.WithLabelValues("dead").Inc()
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	_ = q.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Delete(task.key()); err != nil {
			return err
		}
		return txn.Set(deadKey(task), raw)
	})
}

func (q *Queue) remove(ctx context.Context, task Task) error {
	return q.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete(task.key())
	})
}

func (q *Queue) claim(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.inflight[id]; busy {
		return false
	}
	q.inflight[id] = struct{}{}
	return true
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	delete(q.inflight, id)
	q.mu.Unlock()
}
