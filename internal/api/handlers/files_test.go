package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JLAD75/FileGuard/internal/api"
	"github.com/JLAD75/FileGuard/internal/api/handlers"
	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/store"
	"github.com/JLAD75/FileGuard/internal/upload"
)

type nopPublisher struct{}

func (nopPublisher) EnqueueScan(ctx context.Context, fileID, ownerID string) error { return nil }
func (nopPublisher) EnqueueCleanup(ctx context.Context, days int) error            { return nil }

// stubAuth stands in for the OIDC middleware: the X-Test-User header becomes
// the trusted user id.
func stubAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader("X-Test-User")
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth"})
			return
		}
		c.Set("user_id", user)
		c.Next()
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	st := store.NewMemoryStore()
	coordinator := upload.NewCoordinator(st, be, nopPublisher{})

	r := gin.New()
	api.RegisterRoutes(r, handlers.NewFileHandler(coordinator, st), stubAuth())
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sendChunk(t *testing.T, r *gin.Engine, fileID, user string, index int, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("index", fmt.Sprintf("%d", index)))
	part, err := mw.CreateFormFile("chunk", "chunk.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/"+fileID+"/chunk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func initUpload(t *testing.T, r *gin.Engine, user string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/files/upload/init", user, gin.H{
		"size_bytes":     11,
		"mime_type":      "text/plain",
		"encrypted_name": "enc",
		"wrapped_dek":    "dek",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		File struct {
			ID string `json:"id"`
		} `json:"file"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.File.ID)
	return resp.File.ID
}

func TestHealthEndpointOpen(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestFileRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	fileID := initUpload(t, r, "alice")

	assert.Equal(t, http.StatusOK, sendChunk(t, r, fileID, "alice", 0, []byte("hello ")).Code)
	assert.Equal(t, http.StatusOK, sendChunk(t, r, fileID, "alice", 1, []byte("world")).Code)

	w := doJSON(t, r, http.MethodPost, "/api/files/upload/"+fileID+"/complete", "alice", gin.H{"total_chunks": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"upload_status":"complete"`)

	w = doJSON(t, r, http.MethodGet, "/api/files/"+fileID+"/download", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestCompleteWithMissingChunkIs400(t *testing.T) {
	r := newTestRouter(t)
	fileID := initUpload(t, r, "alice")

	require.Equal(t, http.StatusOK, sendChunk(t, r, fileID, "alice", 0, []byte("only")).Code)

	w := doJSON(t, r, http.MethodPost, "/api/files/upload/"+fileID+"/complete", "alice", gin.H{"total_chunks": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, strings.ToLower(w.Body.String()), "chunk 1")
}

func TestForeignFileIs404(t *testing.T) {
	r := newTestRouter(t)
	fileID := initUpload(t, r, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/files/"+fileID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/files/"+fileID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitRejectsBadSize(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/files/upload/init", "alice", gin.H{"size_bytes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkRejectsBadIndex(t *testing.T) {
	r := newTestRouter(t)
	fileID := initUpload(t, r, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("index", "-1"))
	part, err := mw.CreateFormFile("chunk", "chunk.bin")
	require.NoError(t, err)
	_, err = part.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/"+fileID+"/chunk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFiles(t *testing.T) {
	r := newTestRouter(t)
	initUpload(t, r, "alice")
	initUpload(t, r, "alice")
	initUpload(t, r, "bob")

	w := doJSON(t, r, http.MethodGet, "/api/files", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Files []json.RawMessage `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Files, 2)
}
