package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hibana-share/hibana/internal/cryptox"
	"github.com/hibana-share/hibana/internal/logging"
	sc "github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/services"
	"github.com/hibana-share/hibana/internal/server/storage"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.MaxUploadSize = 1024 * 1024
	cfg.BaseURL = "http://share.test"

	repos := repomanager.NewInMemoryRepositoryManager()
	blobs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	chunks, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	upload := services.NewUploadService(repos, blobs, chunks, cfg, log)
	access := services.NewAccessService(repos, blobs, log)
	cleanup := services.NewCleanupService(repos, blobs, chunks, cfg, log)

	return NewRouter(NewHandler(upload, access, cleanup, blobs, cfg, log))
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, data []byte, query string) map[string]any {
	t.Helper()
	body, contentType := multipartBody(t, "file", "secret.txt", data)
	req := httptest.NewRequest(http.MethodPost, "/api/upload"+query, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHTTP_UploadDownloadRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	plaintext := []byte("the plans are in the usual place")

	resp := doUpload(t, router, plaintext, "?expires_in_hours=24")
	fileID := resp["file_id"].(string)
	fragment := resp["fragment"].(string)
	assert.Equal(t, fmt.Sprintf("http://share.test/api/files/%s#%s", fileID, fragment),
		resp["download_url"])

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "secret.txt", rec.Header().Get("X-Filename"))
	assert.Equal(t, strconv.Itoa(len(plaintext)), rec.Header().Get("X-Original-Size"))

	ciphertext := rec.Body.Bytes()
	assert.NotEqual(t, plaintext, ciphertext)

	nonceHeader, err := base64.StdEncoding.DecodeString(rec.Header().Get("X-Nonce"))
	require.NoError(t, err)

	key, nonce, err := cryptox.DecodeKeyMaterial(fragment)
	require.NoError(t, err)
	assert.Equal(t, nonceHeader, nonce)

	decrypted, err := cryptox.Decrypt(ciphertext, key, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestHTTP_DownloadLimit(t *testing.T) {
	router := newTestRouter(t)

	resp := doUpload(t, router, []byte("0123456789"), "?expires_in_hours=1&max_downloads=2")
	fileID := resp["file_id"].(string)

	var nonces []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		nonces = append(nonces, rec.Header().Get("X-Nonce"))
	}
	assert.Equal(t, nonces[0], nonces[1])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "download limit exceeded")
}

func TestHTTP_UnknownFile(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/api/files/7b23a6a1-0000-0000-0000-000000000000",
		"/api/files/7b23a6a1-0000-0000-0000-000000000000/info",
		"/api/upload/7b23a6a1-0000-0000-0000-000000000000/status",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHTTP_UploadValidation(t *testing.T) {
	router := newTestRouter(t)

	// bad expiry
	body, contentType := multipartBody(t, "file", "x.txt", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload?expires_in_hours=-3", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// missing file field
	body, contentType = multipartBody(t, "not_file", "x.txt", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_ChunkedUploadFlow(t *testing.T) {
	router := newTestRouter(t)
	payload := []byte("abcdefghij")

	startBody := `{"filename":"chunked.bin","total_size":10,"chunk_size":4,"expires_in_hours":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/upload/start", strings.NewReader(startBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var start map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &start))
	sessionID := start["session_id"].(string)
	require.Equal(t, float64(3), start["total_chunks"])

	chunks := [][]byte{payload[0:4], payload[4:8], payload[8:10]}
	for i, chunk := range chunks {
		body, contentType := multipartBody(t, "chunk", "chunk", chunk)
		url := fmt.Sprintf("/api/upload/%s/chunk/%d", sessionID, i)
		req := httptest.NewRequest(http.MethodPost, url, body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/upload/"+sessionID+"/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"progress":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/upload/"+sessionID+"/complete", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	fileID := resp["file_id"].(string)
	fragment := resp["fragment"].(string)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	key, nonce, err := cryptox.DecodeKeyMaterial(fragment)
	require.NoError(t, err)
	decrypted, err := cryptox.Decrypt(rec.Body.Bytes(), key, nonce)
	require.NoError(t, err)
	assert.Equal(t, payload, decrypted)

	// completing again must not mint a second file
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/upload/"+sessionID+"/complete", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_InfoEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp := doUpload(t, router, []byte("metadata me"), "?max_downloads=3")
	fileID := resp["file_id"].(string)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID+"/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, fileID, info["file_id"])
	assert.Equal(t, "secret.txt", info["original_filename"])
	assert.Equal(t, float64(3), info["downloads_remaining"])
	assert.Equal(t, "active", info["status"])
}

func TestHTTP_AdminCleanup(t *testing.T) {
	router := newTestRouter(t)

	resp := doUpload(t, router, []byte("ephemeral"), "?max_downloads=1")
	fileID := resp["file_id"].(string)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"files_removed":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_AdminStorage(t *testing.T) {
	router := newTestRouter(t)

	doUpload(t, router, []byte("count me"), "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/storage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalFiles)
	assert.Greater(t, stats.TotalBytes, int64(0))
}

func TestHTTP_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
