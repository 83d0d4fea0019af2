//go:build integration

package steps

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Rib4ko/backendYT/api"
	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/config"
	"github.com/Rib4ko/backendYT/delivery"
	"github.com/Rib4ko/backendYT/ffmpeg"
	"github.com/Rib4ko/backendYT/storage"
	"github.com/Rib4ko/backendYT/task"
	"github.com/Rib4ko/backendYT/ytdlp"
	"github.com/gin-gonic/gin"
)

// fakeBackend answers for both yt-dlp and ffmpeg. Downloads write a small file
// named after the video id; a video id of "blocked" fails like a login wall.
type fakeBackend struct {
	mu      sync.Mutex
	ytCalls int
	ffArgs  []string
	ffFail  string
}

func (f *fakeBackend) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch name {
	case "yt-dlp":
		return f.ytdlp(args)
	case "ffmpeg":
		return f.ffmpeg(args)
	}
	return nil, nil, errors.New("unexpected binary " + name)
}

func (f *fakeBackend) ytdlp(args []string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.ytCalls++
	f.mu.Unlock()

	var tmpl string
	for i, a := range args {
		if a == "-o" {
			tmpl = args[i+1]
		}
	}
	id := videoID(args[len(args)-1])
	if id == "blocked" {
		return nil, []byte("ERROR: [youtube] blocked: Sign in to confirm you're not a bot"), errors.New("exit status 1")
	}

	path := filepath.Join(filepath.Dir(tmpl), id+".mp4")
	if err := os.WriteFile(path, []byte("source-video"), 0644); err != nil {
		return nil, nil, err
	}
	return []byte(id + "\t" + path + "\n"), nil, nil
}

func (f *fakeBackend) ffmpeg(args []string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.ffArgs = args
	fail := f.ffFail
	f.mu.Unlock()

	if fail != "" {
		return nil, []byte(fail), errors.New("exit status 1")
	}
	return nil, nil, os.WriteFile(args[len(args)-1], []byte("clip-video"), 0644)
}

func videoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	return strings.Trim(u.Path, "/")
}

// serverContext is one clip server wired the way serve does it, with fake binaries.
type serverContext struct {
	cfg       *config.Config
	logger    *log.Logger
	backend   *fakeBackend
	store     *storage.Store
	manager   *task.Manager
	scheduler *storage.Scheduler
	router    *gin.Engine
	cancel    context.CancelFunc

	response *httptest.ResponseRecorder
	lastClip api.ClipResponse
}

// SharedServer is reset before each scenario via Before hook
var SharedServer *serverContext

func getServer() *serverContext {
	return SharedServer
}

func newServerContext(root string) (*serverContext, error) {
	gin.SetMode(gin.TestMode)
	logger := log.New(io.Discard, "", 0)
	cfg := &config.Config{
		MaxConcurrency:      2,
		QueueSize:           10,
		CORSOrigins:         "*",
		DownloadGrace:       delivery.DefaultGrace,
		OutputLocalLifetime: time.Hour,
	}

	store, err := storage.New(root, logger)
	if err != nil {
		return nil, err
	}
	backend := &fakeBackend{}
	pipeline := clip.NewPipeline(
		ytdlp.NewDownloader(ytdlp.WithRunner(backend), ytdlp.WithLogger(logger)),
		ffmpeg.NewExtractor(ffmpeg.WithRunner(backend), ffmpeg.WithLogger(logger)),
		store, nil, clip.Timeouts{Acquire: 5 * time.Second, Extract: 5 * time.Second}, logger,
	)
	manager := task.NewManager(cfg, pipeline, store, logger)
	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)

	s := &serverContext{
		cfg:       cfg,
		logger:    logger,
		backend:   backend,
		store:     store,
		manager:   manager,
		scheduler: storage.NewScheduler(store.Remove, logger),
		cancel:    cancel,
	}
	s.rebuildRouter()
	return s, nil
}

// rebuildRouter picks up changes to cfg such as the grace period.
func (s *serverContext) rebuildRouter() {
	svc := delivery.NewService(s.store, s.scheduler, s.cfg.DownloadGrace, s.logger)
	s.router = api.SetupRouter(s.manager, svc, s.cfg, s.logger)
}

func (s *serverContext) close() {
	s.cancel()
	s.scheduler.Stop()
	os.RemoveAll(s.store.Root())
}

func (s *serverContext) do(method, path, body string) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.router.ServeHTTP(w, req)
	s.response = w
}

// files lists visible regular files directly under the storage root.
func (s *serverContext) files() ([]string, error) {
	entries, err := os.ReadDir(s.store.Root())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
