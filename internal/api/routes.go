package api

import (
	"github.com/gin-gonic/gin"

	"github.com/JLAD75/FileGuard/internal/api/handlers"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes wires the file endpoints. Every file route sits behind the
// auth middleware, which supplies the trusted user_id.
func RegisterRoutes(r *gin.Engine, h *handlers.FileHandler, requireAuth gin.HandlerFunc) {
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)

		files := api.Group("/files", requireAuth)
		{
			files.POST("/upload/init", h.InitUpload)
			files.POST("/upload/:id/chunk", h.UploadChunk)
			files.POST("/upload/:id/complete", h.CompleteUpload)

			files.GET("", h.ListFiles)
			files.GET("/:id", h.GetFile)
			files.GET("/:id/download", h.DownloadFile)
			files.POST("/:id/snapshot", h.Snapshot)
			files.DELETE("/:id", h.DeleteFile)
		}
	}
}
