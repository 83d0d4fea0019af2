package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/config"
	"github.com/Rib4ko/backendYT/delivery"
	"github.com/Rib4ko/backendYT/storage"
	"github.com/Rib4ko/backendYT/task"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunner stands in for the clip pipeline. It writes the artifact into the
// store so the download route can serve it.
type mockRunner struct {
	store *storage.Store
}

func (m *mockRunner) Run(ctx context.Context, runID string, req clip.Request, observe func(clip.State)) clip.Result {
	switch req.URL {
	case "https://example.com/blocked":
		return clip.Result{Err: clip.AccessBlocked("Sign in to confirm you're not a bot")}
	case "https://example.com/broken":
		return clip.Result{Err: clip.ExtractionError("Invalid data found when processing input", nil)}
	}
	name := clip.ArtifactName("abc123")
	if err := os.WriteFile(m.store.ArtifactPath(name), []byte("clip-bytes"), 0644); err != nil {
		return clip.Result{Err: err}
	}
	return clip.Result{
		Artifact:    &clip.Artifact{Filename: name, LocalPath: m.store.ArtifactPath(name)},
		WaitSeconds: 4,
		Warning:     clip.Warning,
	}
}

type testEnv struct {
	router    *gin.Engine
	cfg       *config.Config
	tm        *task.Manager
	store     *storage.Store
	scheduler *storage.Scheduler
}

func setupTestRouter(t *testing.T, cfg *config.Config, startManager bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if cfg == nil {
		cfg = &config.Config{MaxConcurrency: 1, QueueSize: 10, CORSOrigins: "*"}
	}
	logger := log.New(io.Discard, "", 0)
	store, err := storage.New(t.TempDir(), logger)
	require.NoError(t, err)

	tm := task.NewManager(cfg, &mockRunner{store: store}, nil, logger)
	if startManager {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		tm.Start(ctx)
	}

	scheduler := storage.NewScheduler(store.Remove, logger)
	t.Cleanup(func() { scheduler.Stop() })
	svc := delivery.NewService(store, scheduler, time.Hour, logger)

	return &testEnv{
		router:    SetupRouter(tm, svc, cfg, logger),
		cfg:       cfg,
		tm:        tm,
		store:     store,
		scheduler: scheduler,
	}
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["detail"]
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, nil, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleClip(t *testing.T) {
	env := setupTestRouter(t, nil, true)

	w := postJSON(env.router, "/clip", `{"url": "https://www.youtube.com/watch?v=abc123", "start": 5, "end": 10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ClipResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/download/abc123_clip.mp4", resp.DownloadURL)
	assert.Equal(t, 4, resp.WaitSeconds)
	assert.Equal(t, "Clip boundaries are accurate with re-encoding.", resp.Warning)
}

func TestHandleClip_BaseURL(t *testing.T) {
	cfg := &config.Config{MaxConcurrency: 1, QueueSize: 10, BaseURL: "https://clips.example.com/"}
	env := setupTestRouter(t, cfg, true)

	w := postJSON(env.router, "/clip", `{"url": "https://youtu.be/abc123", "start": 0, "end": 3}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ClipResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://clips.example.com/download/abc123_clip.mp4", resp.DownloadURL)
}

func TestHandleClip_Validation(t *testing.T) {
	env := setupTestRouter(t, nil, true)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{"start": 0, "end": 5}`, "url is required"},
		{"bad scheme", `{"url": "ftp://example.com/v", "start": 0, "end": 5}`, "url scheme must be http or https"},
		{"missing start", `{"url": "https://youtu.be/x", "end": 5}`, "start is required"},
		{"negative start", `{"url": "https://youtu.be/x", "start": -1, "end": 5}`, "start must be non-negative"},
		{"negative end", `{"url": "https://youtu.be/x", "start": 0, "end": -5}`, "end must be non-negative"},
		{"end equals start", `{"url": "https://youtu.be/x", "start": 10, "end": 10}`, "end must be greater than start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(env.router, "/clip", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, detailOf(t, w))
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		w := postJSON(env.router, "/clip", `{"url": "https://youtu.be/x", "start": "five"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, detailOf(t, w), "invalid request body")
	})

	assert.Empty(t, env.tm.List(), "invalid requests never reach the queue")
}

func TestHandleClip_ProcessingFailures(t *testing.T) {
	env := setupTestRouter(t, nil, true)

	w := postJSON(env.router, "/clip", `{"url": "https://example.com/blocked", "start": 0, "end": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, clip.MsgAccessBlocked, detailOf(t, w))

	w = postJSON(env.router, "/clip", `{"url": "https://example.com/broken", "start": 0, "end": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, clip.MsgProcessing, detailOf(t, w))
	assert.NotContains(t, w.Body.String(), "Invalid data found")
}

func TestHandleClip_QueueFull(t *testing.T) {
	env := setupTestRouter(t, &config.Config{MaxConcurrency: 1, QueueSize: 1}, false)
	_, err := env.tm.Submit(clip.Request{URL: "https://youtu.be/x", Start: 0, End: 1})
	require.NoError(t, err)

	w := postJSON(env.router, "/clip", `{"url": "https://youtu.be/abc123", "start": 0, "end": 5}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, clip.MsgUnavailable, detailOf(t, w))
}

func TestHandleDownload(t *testing.T) {
	env := setupTestRouter(t, nil, false)
	path := env.store.ArtifactPath("abc123_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip-bytes"), 0644))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/download/abc123_clip.mp4", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clip-bytes", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=abc123_clip.mp4`, w.Header().Get("Content-Disposition"))
	assert.True(t, env.scheduler.Pending(path), "deletion is scheduled on serve")

	// A second fetch within the grace period still works and does not reschedule.
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.scheduler.Len())
}

func TestHandleDownload_NotFound(t *testing.T) {
	env := setupTestRouter(t, nil, false)

	for _, path := range []string{"/download/missing_clip.mp4", "/download/.abc123_clip.mp4.123.part", "/download/.staging"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.JSONEq(t, `{"detail":"File not found"}`, w.Body.String())
	}
	assert.Equal(t, 0, env.scheduler.Len())
}

func TestClipThenDownload(t *testing.T) {
	env := setupTestRouter(t, nil, true)

	w := postJSON(env.router, "/clip", `{"url": "https://youtu.be/abc123", "start": 1, "end": 2}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ClipResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", resp.DownloadURL, nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clip-bytes", w.Body.String())
}

func TestJobs(t *testing.T) {
	env := setupTestRouter(t, nil, true)

	w := postJSON(env.router, "/api/v1/jobs", `{"url": "https://youtu.be/abc123", "start": 0, "end": 5}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	jobID := created["jobId"]
	require.NotEmpty(t, jobID)

	tk, found := env.tm.Get(jobID)
	require.True(t, found)
	<-tk.Done()

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/jobs/"+jobID, nil)
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap task.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, task.StatusCompleted, snap.Status)
	assert.Equal(t, "/download/abc123_clip.mp4", snap.DownloadURL)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/jobs", nil)
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list []task.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	// Finished jobs cannot be canceled.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/api/v1/jobs/"+jobID+"/cancel", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobs_NotFound(t *testing.T) {
	env := setupTestRouter(t, nil, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/jobs/nonexistent", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/api/v1/jobs/nonexistent/cancel", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobs_CancelQueued(t *testing.T) {
	env := setupTestRouter(t, nil, false)

	w := postJSON(env.router, "/api/v1/jobs", `{"url": "https://youtu.be/abc123", "start": 0, "end": 5}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/api/v1/jobs/"+created["jobId"]+"/cancel", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	tk, _ := env.tm.Get(created["jobId"])
	assert.Equal(t, task.StatusCanceled, tk.Status())
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		env := setupTestRouter(t, nil, false)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("OPTIONS", "/clip", nil)
		req.Header.Set("Origin", "https://frontend.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("explicit origins", func(t *testing.T) {
		cfg := &config.Config{MaxConcurrency: 1, QueueSize: 10, CORSOrigins: "https://a.example.com, https://b.example.com"}
		env := setupTestRouter(t, cfg, false)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://b.example.com")
		env.router.ServeHTTP(w, req)
		assert.Equal(t, "https://b.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		w = httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestHandleClip_ManagerStopped(t *testing.T) {
	env := setupTestRouter(t, nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	env.tm.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		w := postJSON(env.router, "/clip", `{"url": "https://youtu.be/abc123", "start": 0, "end": 5}`)
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return w.Code == http.StatusServiceUnavailable && resp["detail"] == clip.MsgUnavailable
	}, time.Second, 10*time.Millisecond)
}
