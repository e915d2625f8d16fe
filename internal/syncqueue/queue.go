package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/imagerelay/imagerelay/internal/domain"
	"github.com/imagerelay/imagerelay/internal/queue"
	"github.com/imagerelay/imagerelay/internal/storage"
)

const fallbackContentType = "application/octet-stream"

// Config holds the queue's concurrency and retry settings.
type Config struct {
	MaxConcurrent int
	MaxRetries    int
	RetryDelay    time.Duration
}

// Queue is the durable, bounded-concurrency relay that ships finished
// artifacts to remote object storage. Submit admits a task and returns
// immediately; a pool of MaxConcurrent workers drains the engine, retrying
// transport failures with a fixed delay before marking a task failed.
type Queue struct {
	engine queue.Engine
	store  storage.ObjectStorage
	cfg    Config

	mu    sync.RWMutex
	tasks map[string]*Task

	active atomic.Int64
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(engine queue.Engine, store storage.ObjectStorage, cfg Config) *Queue {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Queue{
		engine: engine,
		store:  store,
		cfg:    cfg,
		tasks:  make(map[string]*Task),
	}
}

// Submit sanitizes the file's metadata, durably admits the relay and returns
// its task identifier. The transfer itself happens asynchronously; callers
// needing completion must poll GetStatus.
func (q *Queue) Submit(ctx context.Context, info FileInfo) (string, error) {
	if info.Path == "" {
		return "", &domain.ValidationError{Field: "path", Reason: "must not be empty"}
	}
	if info.Key == "" {
		return "", &domain.ValidationError{Field: "key", Reason: "must not be empty"}
	}

	contentType := info.ContentType
	if contentType == "" {
		if mt, err := mimetype.DetectFile(info.Path); err == nil {
			contentType = mt.String()
		} else {
			contentType = fallbackContentType
		}
	}

	task := &Task{
		ID:          uuid.NewString(),
		Status:      TaskPending,
		SubmittedAt: time.Now(),
		Path:        info.Path,
		Key:         info.Key,
	}

	data, err := json.Marshal(payload{
		TaskID:            task.ID,
		Path:              info.Path,
		Key:               info.Key,
		ContentType:       contentType,
		Metadata:          sanitizeMetadata(info.Metadata),
		DeleteAfterUpload: info.DeleteAfterUpload,
		SubmittedAt:       task.SubmittedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sync task: %w", err)
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.mu.Unlock()

	if err := q.engine.Push(ctx, data); err != nil {
		q.mu.Lock()
		delete(q.tasks, task.ID)
		q.mu.Unlock()
		return "", fmt.Errorf("failed to admit sync task: %w", err)
	}

	log.Info().Str("task_id", task.ID).Str("key", info.Key).Msg("sync task admitted")
	return task.ID, nil
}

// Start launches the worker pool. Workers run until Stop is called.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < q.cfg.MaxConcurrent; i++ {
		q.group.Go(func() error {
			q.worker(ctx)
			return nil
		})
	}
}

// Stop halts the worker pool and waits for in-flight transfers to settle.
func (q *Queue) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	q.group.Wait()
	q.cancel = nil
}

func (q *Queue) worker(ctx context.Context) {
	for {
		delivery, err := q.engine.Reserve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("sync queue reserve failed")
			continue
		}

		q.active.Add(1)
		q.process(ctx, delivery)
		q.active.Add(-1)
	}
}

func (q *Queue) process(ctx context.Context, delivery *queue.Delivery) {
	var p payload
	if err := json.Unmarshal(delivery.Payload, &p); err != nil {
		log.Error().Err(err).Msg("sync queue dropped undecodable payload")
		delivery.Ack(ctx)
		return
	}

	q.reviveTask(p)
	q.setStatus(p.TaskID, TaskSyncing, "")

	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxRetries; attempt++ {
		lastErr = q.transfer(ctx, p)
		if lastErr == nil {
			q.complete(p)
			delivery.Ack(ctx)
			log.Info().Str("task_id", p.TaskID).Str("key", p.Key).Int("attempt", attempt).Msg("sync task finished")
			return
		}

		q.recordAttempt(p.TaskID, lastErr)
		if attempt < q.cfg.MaxRetries {
			log.Warn().Err(lastErr).Str("task_id", p.TaskID).Int("attempt", attempt).Msg("sync task retrying")
			select {
			case <-time.After(q.cfg.RetryDelay):
			case <-ctx.Done():
				// Leave the payload reserved; a restart recovers it.
				return
			}
		}
	}

	q.fail(p.TaskID, lastErr)
	delivery.Ack(ctx)
	log.Error().Err(lastErr).Str("task_id", p.TaskID).Str("key", p.Key).Msg("sync task failed")
}

func (q *Queue) transfer(ctx context.Context, p payload) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	if err := q.store.PutObject(ctx, p.Key, data, p.ContentType, p.Metadata); err != nil {
		return err
	}

	if p.DeleteAfterUpload {
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p.Path).Msg("failed to delete source after upload")
		}
	}
	return nil
}

// GetStatus returns the current view of a task, or ErrTaskNotFound.
func (q *Queue) GetStatus(ctx context.Context, taskID string) (TaskView, error) {
	q.mu.RLock()
	task, ok := q.tasks[taskID]
	var snap Task
	if ok {
		snap = *task
	}
	q.mu.RUnlock()

	if !ok {
		return TaskView{}, domain.ErrTaskNotFound
	}

	depth, err := q.engine.Depth(ctx)
	if err != nil {
		depth = -1
	}

	return TaskView{
		Task:          snap,
		QueueDepth:    depth,
		ActiveWorkers: q.active.Load(),
		MaxConcurrent: q.cfg.MaxConcurrent,
	}, nil
}

// GetQueueStats returns aggregate counters. A monitoring surface, not a
// control surface.
func (q *Queue) GetQueueStats(ctx context.Context) QueueStats {
	stats := QueueStats{
		MaxConcurrent: q.cfg.MaxConcurrent,
		MaxRetries:    q.cfg.MaxRetries,
	}

	q.mu.RLock()
	for _, t := range q.tasks {
		switch t.Status {
		case TaskPending:
			stats.Pending++
		case TaskSyncing:
			stats.Syncing++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		}
	}
	q.mu.RUnlock()

	return stats
}

// reviveTask recreates the registry entry for a payload whose task record
// did not survive a restart, keeping the original submission timestamp.
func (q *Queue) reviveTask(p payload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tasks[p.TaskID]; ok {
		return
	}
	q.tasks[p.TaskID] = &Task{
		ID:          p.TaskID,
		Status:      TaskPending,
		SubmittedAt: p.SubmittedAt,
		Path:        p.Path,
		Key:         p.Key,
	}
}

func (q *Queue) setStatus(taskID string, status TaskStatus, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[taskID]; ok {
		t.Status = status
		if errMsg != "" {
			t.LastError = errMsg
		}
	}
}

func (q *Queue) recordAttempt(taskID string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[taskID]; ok {
		t.Attempts++
		t.LastError = err.Error()
	}
}

func (q *Queue) complete(p payload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[p.TaskID]; ok {
		t.Status = TaskCompleted
		now := time.Now()
		t.CompletedAt = &now
	}
}

func (q *Queue) fail(taskID string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[taskID]; ok {
		t.Status = TaskFailed
		now := time.Now()
		t.CompletedAt = &now
		if err != nil {
			t.LastError = err.Error()
		}
	}
}
