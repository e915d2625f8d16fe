package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/imagerelay/imagerelay/internal/cleanup"
	"github.com/imagerelay/imagerelay/internal/domain"
	"github.com/imagerelay/imagerelay/internal/syncqueue"
	"github.com/imagerelay/imagerelay/internal/transform"
)

// CoordinatorConfig holds the directories and relay defaults the pipeline
// needs.
type CoordinatorConfig struct {
	ChunkDir          string
	ProcessingDir     string
	OutputDir         string
	KeyPrefix         string
	DeleteAfterUpload bool
}

// Coordinator orchestrates the upload lifecycle: chunk bookkeeping in the
// registry, the single-writer combine pipeline under the gate, handoff to
// the transform step, admission into the sync queue, and cleanup on every
// exit path.
type Coordinator struct {
	registry    *Registry
	gate        *Gate
	combiner    *Combiner
	ledger      *cleanup.Ledger
	transformer transform.Transformer
	queue       *syncqueue.Queue
	cfg         CoordinatorConfig
}

func NewCoordinator(registry *Registry, gate *Gate, combiner *Combiner, ledger *cleanup.Ledger, transformer transform.Transformer, queue *syncqueue.Queue, cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		registry:    registry,
		gate:        gate,
		combiner:    combiner,
		ledger:      ledger,
		transformer: transformer,
		queue:       queue,
		cfg:         cfg,
	}
}

// ChunkRequest carries one chunk-received event. The chunk's bytes are
// already on disk at the deterministic chunk path when ReceiveChunk runs.
type ChunkRequest struct {
	UploadID    string
	ChunkIndex  int
	TotalChunks int
	Filename    string
	Options     transform.Options
}

// Artifact describes the output of a completed pipeline.
type Artifact struct {
	Filename       string
	Path           string
	Key            string
	Size           int64
	ProcessingType string
	Reason         string
	SyncTaskID     string
}

// ChunkResult is the outcome of one ReceiveChunk call.
type ChunkResult struct {
	ChunksReceived    int
	TotalChunks       int
	Completed         bool
	AlreadyProcessing bool
	Artifact          *Artifact
}

// StatusView is the derived status surface for a live session.
type StatusView struct {
	UploadID       string
	Status         Status
	ChunksReceived int
	TotalChunks    int
	Filename       string
	LastError      string
	CreatedAt      time.Time
	LastChunkAt    time.Time
}

// Initialize creates a new upload session and returns its identifier.
func (c *Coordinator) Initialize() string {
	id := c.registry.Create()
	log.Info().Str("upload_id", id).Msg("upload initialized")
	return id
}

// ReceiveChunk records a chunk arrival. Duplicate indices are idempotent;
// totalChunks and filename follow last-writer-wins. When the received set
// reaches totalChunks and the processing gate is free, the combine pipeline
// runs synchronously and the result carries the final artifact. A held gate
// degrades to an "already processing" acknowledgment.
func (c *Coordinator) ReceiveChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if req.TotalChunks < 1 {
		return nil, &domain.ValidationError{Field: "totalChunks", Reason: "must be at least 1"}
	}
	if req.ChunkIndex < 0 {
		return nil, &domain.ValidationError{Field: "chunkIndex", Reason: "must not be negative"}
	}

	var received, total int
	ok := c.registry.Update(req.UploadID, func(s *Session) {
		s.Received[req.ChunkIndex] = struct{}{}
		s.TotalChunks = req.TotalChunks
		if req.Filename != "" {
			s.Filename = req.Filename
		}
		s.LastChunkAt = time.Now()
		if s.Status == StatusInitializing {
			s.Status = StatusInProgress
		}
		received = len(s.Received)
		total = s.TotalChunks
	})
	if !ok {
		return nil, domain.ErrUploadNotFound
	}

	if received < total {
		return &ChunkResult{ChunksReceived: received, TotalChunks: total}, nil
	}

	if !c.gate.TryAcquire(req.UploadID) {
		return &ChunkResult{ChunksReceived: received, TotalChunks: total, AlreadyProcessing: true}, nil
	}

	// A pipeline that finished between the registry update and the acquire
	// has already retired the session; do not start a second run over it.
	if _, ok := c.registry.Get(req.UploadID); !ok {
		c.gate.Release(req.UploadID)
		return &ChunkResult{ChunksReceived: received, TotalChunks: total, AlreadyProcessing: true}, nil
	}

	artifact, err := c.runPipeline(ctx, req)
	if err != nil {
		c.registry.Update(req.UploadID, func(s *Session) {
			s.Status = StatusFailed
			s.LastError = err.Error()
		})
		c.gate.Release(req.UploadID)
		c.ledger.Cleanup(req.UploadID, false)
		log.Error().Err(err).Str("upload_id", req.UploadID).Msg("combine pipeline failed")
		return nil, &domain.PipelineError{UploadID: req.UploadID, Err: err}
	}

	// Terminal success: the session is retired, not retained.
	c.registry.Delete(req.UploadID)
	c.gate.Release(req.UploadID)
	c.ledger.Cleanup(req.UploadID, true)
	log.Info().
		Str("upload_id", req.UploadID).
		Str("artifact", artifact.Filename).
		Str("sync_task_id", artifact.SyncTaskID).
		Msg("upload completed")

	return &ChunkResult{
		ChunksReceived: received,
		TotalChunks:    total,
		Completed:      true,
		Artifact:       artifact,
	}, nil
}

// runPipeline combines the chunks, transforms the result and admits the
// final artifact into the sync queue. The caller owns gate release and
// cleanup.
func (c *Coordinator) runPipeline(ctx context.Context, req ChunkRequest) (*Artifact, error) {
	tempPath := filepath.Join(c.cfg.ProcessingDir, req.UploadID+".tmp")
	chunkFiles := make([]string, 0, req.TotalChunks)
	for i := 0; i < req.TotalChunks; i++ {
		chunkFiles = append(chunkFiles, c.combiner.ChunkPath(req.UploadID, i))
	}
	c.ledger.Reset(req.UploadID, cleanup.Record{TempFile: tempPath, ChunkFiles: chunkFiles})

	if err := c.combiner.Combine(req.UploadID, req.TotalChunks, tempPath); err != nil {
		return nil, err
	}

	finalName := uuid.NewString() + "-" + filepath.Base(req.Filename)
	finalPath := filepath.Join(c.cfg.OutputDir, finalName)
	c.ledger.Register(req.UploadID, cleanup.Record{FinalFile: finalName})

	result, err := c.transformer.Transform(ctx, tempPath, finalPath, req.Options)
	if err != nil || !result.Success {
		// The transform step never destroys its input, so fall back to
		// relaying the combined bytes untouched.
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = result.Reason
		}
		log.Warn().Str("upload_id", req.UploadID).Str("reason", reason).Msg("transform failed, preserving original")
		preserve := transform.NewPreserveTransformer()
		result, err = preserve.Transform(ctx, tempPath, finalPath, req.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to preserve combined file: %w", err)
		}
		result.Reason = reason
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("final artifact missing after transform: %w", err)
	}

	key := c.cfg.KeyPrefix + finalName
	metadata := map[string]string{
		"original-filename": req.Filename,
		"upload-id":         req.UploadID,
		"processing-type":   result.ProcessingType,
	}
	for k, v := range req.Options.Metadata {
		metadata[k] = v
	}

	taskID, err := c.queue.Submit(ctx, syncqueue.FileInfo{
		Path:              finalPath,
		Key:               key,
		Metadata:          metadata,
		DeleteAfterUpload: c.cfg.DeleteAfterUpload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sync task: %w", err)
	}

	return &Artifact{
		Filename:       finalName,
		Path:           finalPath,
		Key:            key,
		Size:           info.Size(),
		ProcessingType: result.ProcessingType,
		Reason:         result.Reason,
		SyncTaskID:     taskID,
	}, nil
}

// Status derives the externally visible state of a live session. Processing
// takes precedence over in-progress, which takes precedence over
// initializing; a stored failure wins over all derivations.
func (c *Coordinator) Status(uploadID string) (StatusView, error) {
	s, ok := c.registry.Get(uploadID)
	if !ok {
		return StatusView{}, domain.ErrUploadNotFound
	}

	view := StatusView{
		UploadID:       uploadID,
		ChunksReceived: len(s.Received),
		TotalChunks:    s.TotalChunks,
		Filename:       s.Filename,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		LastChunkAt:    s.LastChunkAt,
	}

	switch {
	case s.Status == StatusFailed:
		view.Status = StatusFailed
	case c.gate.Held(uploadID):
		view.Status = StatusProcessing
	case len(s.Received) > 0:
		view.Status = StatusInProgress
	default:
		view.Status = StatusInitializing
	}
	return view, nil
}

// Cancel aborts a live session and removes all of its transient files. A
// session whose pipeline is running cannot be cancelled.
func (c *Coordinator) Cancel(uploadID string) error {
	if _, ok := c.registry.Get(uploadID); !ok {
		return domain.ErrUploadNotFound
	}

	// Hold the gate for the whole removal so a concurrent last chunk cannot
	// start a combine over files that are being deleted.
	if !c.gate.TryAcquire(uploadID) {
		return domain.ErrProcessingConflict
	}
	defer c.gate.Release(uploadID)

	if _, ok := c.registry.Get(uploadID); !ok {
		return domain.ErrUploadNotFound
	}

	c.ledger.Register(uploadID, cleanup.Record{
		TempFile: filepath.Join(c.cfg.ProcessingDir, uploadID+".tmp"),
	})
	c.ledger.Cleanup(uploadID, false)
	c.registry.Delete(uploadID)
	log.Info().Str("upload_id", uploadID).Msg("upload cancelled")
	return nil
}
