// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/imagerelay/imagerelay/internal/api/handlers"
	"github.com/imagerelay/imagerelay/internal/api/middleware"
)

// Handlers groups the handler sets mounted on the router.
type Handlers struct {
	Upload *handlers.UploadHandler
	Sync   *handlers.SyncHandler
}

func NewRouter(h *Handlers, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	uploadGroup := apiGroup.Group("/uploads")
	{
		uploadGroup.POST("", h.Upload.InitializeUpload)
		uploadGroup.POST("/chunk", h.Upload.SubmitChunk)
		uploadGroup.GET("/:id/status", h.Upload.GetUploadStatus)
		uploadGroup.DELETE("/:id", h.Upload.CancelUpload)
	}

	syncGroup := apiGroup.Group("/sync")
	{
		syncGroup.GET("/stats", h.Sync.GetQueueStats)
		syncGroup.GET("/:taskId/status", h.Sync.GetSyncStatus)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
