// Package httpapi exposes the upload, download and admin operations over
// HTTP. Routes map one-to-one onto the service layer; no business logic
// lives here.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hibana-share/hibana/internal/logging"
	sc "github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/services"
	"github.com/hibana-share/hibana/internal/server/storage"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	upload  *services.UploadService
	access  *services.AccessService
	cleanup *services.CleanupService
	blobs   storage.BlobStore
	config  *sc.Config
	log     logging.Logger
}

func NewHandler(upload *services.UploadService, access *services.AccessService,
	cleanup *services.CleanupService, blobs storage.BlobStore,
	config *sc.Config, log logging.Logger) *Handler {
	return &Handler{
		upload:  upload,
		access:  access,
		cleanup: cleanup,
		blobs:   blobs,
		config:  config,
		log:     log.With("component", "http"),
	}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.requestLog())
	r.MaxMultipartMemory = 8 << 20

	api := r.Group("/api")
	{
		api.POST("/upload", h.handleUpload)
		api.POST("/upload/start", h.handleUploadStart)
		api.POST("/upload/:session_id/chunk/:index", h.handleUploadChunk)
		api.POST("/upload/:session_id/complete", h.handleUploadComplete)
		api.GET("/upload/:session_id/status", h.handleUploadStatus)

		api.GET("/files/:file_id", h.handleDownload)
		api.GET("/files/:file_id/info", h.handleInfo)

		api.POST("/admin/cleanup", h.handleAdminCleanup)
		api.GET("/admin/storage", h.handleAdminStorage)
	}

	r.GET("/healthz", h.handleHealth)

	return r
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
