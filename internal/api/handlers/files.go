package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/store"
	"github.com/JLAD75/FileGuard/internal/upload"
)

// Max bytes accepted for a single chunk.
const maxChunkSize = 10 << 20

// FileHandler exposes the upload protocol and file CRUD over HTTP. The
// auth middleware has already placed a trusted user_id in the context.
type FileHandler struct {
	coordinator *upload.Coordinator
	store       store.Store
}

func NewFileHandler(coordinator *upload.Coordinator, st store.Store) *FileHandler {
	return &FileHandler{coordinator: coordinator, store: st}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// abortWithError maps core errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	var missing *backend.MissingChunkError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// InitUpload creates the file record; no bytes are accepted yet.
func (h *FileHandler) InitUpload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req upload.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.SizeBytes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size_bytes must be positive"})
		return
	}

	rec, err := h.coordinator.Init(c.Request.Context(), userID, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": rec})
}

// UploadChunk receives one chunk as multipart form data: the bytes under
// "chunk" and the zero-based index under "index".
func (h *FileHandler) UploadChunk(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	fileID := c.Param("id")

	index, err := strconv.Atoi(c.PostForm("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}

	fh, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no chunk provided"})
		return
	}
	if fh.Size > maxChunkSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open chunk: " + err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read chunk: " + err.Error()})
		return
	}

	if err := h.coordinator.ReceiveChunk(c.Request.Context(), fileID, userID, index, data); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "chunk received", "index": index})
}

// CompleteUpload assembles the declared chunks and hands the file off for
// scanning. The response does not wait on the scan.
func (h *FileHandler) CompleteUpload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	fileID := c.Param("id")

	var req struct {
		TotalChunks int `json:"total_chunks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.TotalChunks <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_chunks must be positive"})
		return
	}

	rec, err := h.coordinator.Complete(c.Request.Context(), fileID, userID, req.TotalChunks)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": rec})
}

func (h *FileHandler) ListFiles(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	files, err := h.store.ListFiles(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *FileHandler) GetFile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	rec, err := h.store.GetFile(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": rec})
}

// DownloadFile streams the assembled object to the client in 64 KiB reads.
func (h *FileHandler) DownloadFile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	rec, stream, err := h.coordinator.Download(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment")
	c.Header("Content-Type", rec.MimeType)
	c.Status(http.StatusOK)

	buf := make([]byte, backend.DownloadChunkSize)
	if _, err := io.CopyBuffer(c.Writer, stream, buf); err != nil {
		// Headers are gone; nothing to do but drop the connection.
		c.Abort()
	}
}

func (h *FileHandler) DeleteFile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	fileID := c.Param("id")

	if err := h.coordinator.Delete(c.Request.Context(), fileID, userID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully", "file_id": fileID})
}

// Snapshot creates a version snapshot of a completed file.
func (h *FileHandler) Snapshot(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	snapshot, err := h.coordinator.Snapshot(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": snapshot})
}
