package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/imagerelay/imagerelay/internal/domain"
	"github.com/imagerelay/imagerelay/internal/transform"
	"github.com/imagerelay/imagerelay/internal/upload"
)

// UploadHandler is the upload-receiving surface: it lands each chunk's bytes
// at the deterministic chunk path and forwards the chunk metadata to the
// coordinator.
type UploadHandler struct {
	coordinator    *upload.Coordinator
	chunkDir       string
	defaultType    string
	defaultQuality int
}

func NewUploadHandler(coordinator *upload.Coordinator, chunkDir, defaultType string, defaultQuality int) *UploadHandler {
	return &UploadHandler{
		coordinator:    coordinator,
		chunkDir:       chunkDir,
		defaultType:    defaultType,
		defaultQuality: defaultQuality,
	}
}

// InitializeUpload creates a new upload session
func (h *UploadHandler) InitializeUpload(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uploadId": h.coordinator.Initialize()})
}

// SubmitChunk accepts one chunk of an upload
func (h *UploadHandler) SubmitChunk(c *gin.Context) {
	uploadID := strings.TrimSpace(c.PostForm("uploadId"))
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadId is required"})
		return
	}
	if !validUploadID(uploadID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadId is invalid"})
		return
	}

	chunkIndex, err := strconv.Atoi(c.PostForm("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunkIndex must be a non-negative integer"})
		return
	}

	totalChunks, err := strconv.Atoi(c.PostForm("totalChunks"))
	if err != nil || totalChunks < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totalChunks must be a positive integer"})
		return
	}

	file, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk file is required"})
		return
	}

	chunkPath := filepath.Join(h.chunkDir, uploadID+"-"+strconv.Itoa(chunkIndex))
	if err := c.SaveUploadedFile(file, chunkPath); err != nil {
		log.Error().Err(err).Str("upload_id", uploadID).Int("chunk", chunkIndex).Msg("failed to save chunk")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save chunk", "details": err.Error()})
		return
	}

	result, err := h.coordinator.ReceiveChunk(c.Request.Context(), upload.ChunkRequest{
		UploadID:    uploadID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Filename:    c.PostForm("filename"),
		Options:     h.parseOptions(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	switch {
	case result.AlreadyProcessing:
		c.JSON(http.StatusOK, gin.H{"message": "Upload is already being processed"})
	case result.Completed:
		c.JSON(http.StatusOK, gin.H{
			"message":        "Upload completed successfully",
			"filename":       result.Artifact.Filename,
			"size":           result.Artifact.Size,
			"processingType": result.Artifact.ProcessingType,
			"syncTaskId":     result.Artifact.SyncTaskID,
			"key":            result.Artifact.Key,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":        "Chunk received",
			"chunksReceived": result.ChunksReceived,
			"totalChunks":    result.TotalChunks,
		})
	}
}

// GetUploadStatus returns the derived status of a live upload session
func (h *UploadHandler) GetUploadStatus(c *gin.Context) {
	view, err := h.coordinator.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"uploadId":       view.UploadID,
		"status":         view.Status,
		"chunksReceived": view.ChunksReceived,
		"totalChunks":    view.TotalChunks,
		"filename":       view.Filename,
		"createdAt":      view.CreatedAt,
		"lastChunkAt":    view.LastChunkAt,
	}
	if view.LastError != "" {
		resp["lastError"] = view.LastError
	}
	c.JSON(http.StatusOK, resp)
}

// CancelUpload aborts an upload session and removes its transient files
func (h *UploadHandler) CancelUpload(c *gin.Context) {
	if err := h.coordinator.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *UploadHandler) parseOptions(c *gin.Context) transform.Options {
	opts := transform.Options{
		Type:    h.defaultType,
		Quality: h.defaultQuality,
	}
	switch t := c.PostForm("processingType"); t {
	case transform.TypePreserve, transform.TypeOptimize, transform.TypeAuto:
		opts.Type = t
	}
	if q, err := strconv.Atoi(c.PostForm("quality")); err == nil && q > 0 && q <= 100 {
		opts.Quality = q
	}
	return opts
}

// validUploadID rejects identifiers that could escape the chunk directory.
// The chunk path is built from the caller-supplied id before the session is
// looked up, so the id must be a plain file-name component.
func validUploadID(id string) bool {
	if id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, `/\`) {
		return false
	}
	return filepath.Base(id) == id
}

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUploadNotFound), errors.Is(err, domain.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProcessingConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}
