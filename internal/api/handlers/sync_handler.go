package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imagerelay/imagerelay/internal/syncqueue"
)

// SyncHandler exposes the sync queue's status and monitoring surfaces.
type SyncHandler struct {
	queue *syncqueue.Queue
}

func NewSyncHandler(queue *syncqueue.Queue) *SyncHandler {
	return &SyncHandler{queue: queue}
}

// GetSyncStatus returns the current state of one relay task
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	view, err := h.queue.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"taskId":        view.ID,
		"status":        view.Status,
		"submittedAt":   view.SubmittedAt,
		"key":           view.Key,
		"attempts":      view.Attempts,
		"queueDepth":    view.QueueDepth,
		"activeWorkers": view.ActiveWorkers,
		"maxConcurrent": view.MaxConcurrent,
	}
	if view.CompletedAt != nil {
		resp["completedAt"] = view.CompletedAt
	}
	if view.LastError != "" {
		resp["lastError"] = view.LastError
	}
	c.JSON(http.StatusOK, resp)
}

// GetQueueStats returns aggregate queue counters
func (h *SyncHandler) GetQueueStats(c *gin.Context) {
	stats := h.queue.GetQueueStats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"pending":       stats.Pending,
		"syncing":       stats.Syncing,
		"completed":     stats.Completed,
		"failed":        stats.Failed,
		"maxConcurrent": stats.MaxConcurrent,
		"maxRetries":    stats.MaxRetries,
	})
}
