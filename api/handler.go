package api

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/config"
	"github.com/Rib4ko/backendYT/delivery"
	"github.com/Rib4ko/backendYT/task"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	taskManager *task.Manager
	delivery    *delivery.Service
	cfg         *config.Config
	logger      *log.Logger
}

func NewHandler(tm *task.Manager, svc *delivery.Service, cfg *config.Config, logger *log.Logger) *Handler {
	return &Handler{
		taskManager: tm,
		delivery:    svc,
		cfg:         cfg,
		logger:      logger,
	}
}

// ClipResponse is the body of a successful POST /clip.
type ClipResponse struct {
	DownloadURL string `json:"downloadUrl"`
	WaitSeconds int    `json:"waitSeconds"`
	Warning     string `json:"warning"`
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// statusFor maps a pipeline failure to an HTTP status. Processing failures are
// always 400; only capacity problems get a 503.
func statusFor(err error) int {
	switch clip.KindOf(err) {
	case clip.KindUnavailable, clip.KindCanceled:
		return http.StatusServiceUnavailable
	case clip.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// bindClipRequest decodes and validates the body. It writes the error response itself.
func (h *Handler) bindClipRequest(c *gin.Context) (clip.Request, bool) {
	var raw clip.RawRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return clip.Request{}, false
	}
	req, err := clip.Validate(raw)
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, clip.PublicMessage(err))
		return clip.Request{}, false
	}
	return req, true
}

func (h *Handler) submit(c *gin.Context, req clip.Request) (*task.Task, bool) {
	t, err := h.taskManager.Submit(req)
	if err != nil {
		if errors.Is(err, task.ErrQueueFull) || errors.Is(err, task.ErrStopped) {
			abortWithDetail(c, http.StatusServiceUnavailable, clip.MsgUnavailable)
			return nil, false
		}
		abortWithDetail(c, http.StatusInternalServerError, clip.MsgProcessing)
		return nil, false
	}
	return t, true
}

// handleClip runs a clip request to completion and answers with its download reference.
func (h *Handler) handleClip(c *gin.Context) {
	req, ok := h.bindClipRequest(c)
	if !ok {
		return
	}
	h.logger.Printf("Received clip request: %s", req)

	t, ok := h.submit(c, req)
	if !ok {
		return
	}

	res, err := h.taskManager.Wait(c.Request.Context(), t)
	if err != nil {
		h.logger.Printf("Client left before task %s finished: %v", t.ID, err)
		c.Abort()
		return
	}
	if res.Failed() {
		h.logger.Printf("Clip creation failed: %v", res.Err)
		abortWithDetail(c, statusFor(res.Err), res.Message())
		return
	}

	resp := ClipResponse{
		DownloadURL: h.buildDownloadURL(res.Artifact.Filename),
		WaitSeconds: res.WaitSeconds,
		Warning:     res.Warning,
	}
	h.logger.Printf("Clip created successfully: %s", resp.DownloadURL)
	c.JSON(http.StatusOK, resp)
}

// buildDownloadURL is relative unless a public base URL is configured.
func (h *Handler) buildDownloadURL(filename string) string {
	path := "/download/" + url.PathEscape(filename)
	if h.cfg.BaseURL == "" {
		return path
	}
	return strings.TrimSuffix(h.cfg.BaseURL, "/") + path
}

// handleDownload streams a produced clip. Its deletion is scheduled by the
// delivery service before the first byte is written.
func (h *Handler) handleDownload(c *gin.Context) {
	filename := c.Param("filename")
	f, info, err := h.delivery.Serve(filename)
	if err != nil {
		abortWithDetail(c, http.StatusNotFound, clip.MsgNotFound)
		return
	}
	defer f.Close()

	if filepath.Ext(filename) == "."+clip.Ext {
		c.Header("Content-Type", "video/mp4")
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	http.ServeContent(c.Writer, c.Request, filename, info.ModTime(), f)
}

// handleCreateJob queues a clip request and returns immediately.
func (h *Handler) handleCreateJob(c *gin.Context) {
	req, ok := h.bindClipRequest(c)
	if !ok {
		return
	}
	t, ok := h.submit(c, req)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": t.ID})
}

func (h *Handler) snapshot(t *task.Task) task.Snapshot {
	s := t.Snapshot()
	if s.Status == task.StatusCompleted && s.Filename != "" {
		s.DownloadURL = h.buildDownloadURL(s.Filename)
	}
	return s
}

func (h *Handler) handleListJobs(c *gin.Context) {
	tasks := h.taskManager.List()
	out := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, h.snapshot(t))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleGetJob(c *gin.Context) {
	t, found := h.taskManager.Get(c.Param("jobId"))
	if !found {
		abortWithDetail(c, http.StatusNotFound, "Job not found")
		return
	}
	c.JSON(http.StatusOK, h.snapshot(t))
}

func (h *Handler) handleCancelJob(c *gin.Context) {
	err := h.taskManager.Cancel(c.Param("jobId"))
	switch {
	case errors.Is(err, task.ErrNotFound):
		abortWithDetail(c, http.StatusNotFound, "Job not found")
	case err != nil:
		abortWithDetail(c, http.StatusBadRequest, err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Job cancellation requested"})
	}
}
