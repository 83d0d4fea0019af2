package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rib4ko/backendYT/api"
	"github.com/Rib4ko/backendYT/delivery"
	"github.com/Rib4ko/backendYT/storage"
	"github.com/Rib4ko/backendYT/task"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clip HTTP API",
	Long: `Run the HTTP API.

Routes:
  POST  /clip                      produce a clip and return its download URL
  GET   /download/{filename}       fetch a clip; it is deleted after DOWNLOAD_GRACE
  GET   /health                    liveness probe
  POST  /api/v1/jobs               queue a clip and return its job id
  GET   /api/v1/jobs[/{id}]        inspect queued jobs
  PATCH /api/v1/jobs/{id}/cancel   cancel a job`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.StorageDir, logger)
	if err != nil {
		return err
	}
	b, err := newBackends(cfg, logger)
	if err != nil {
		return err
	}
	pipeline := newPipeline(cfg, b, store, logger)

	taskManager := task.NewManager(cfg, pipeline, store, logger)
	scheduler := storage.NewScheduler(store.Remove, logger)
	svc := delivery.NewService(store, scheduler, cfg.DownloadGrace, logger)

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(taskManager, svc, cfg, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskManager.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if n := scheduler.Stop(); n > 0 {
		logger.Printf("Dropped %d pending deletions; the next sweep removes those files", n)
	}

	logger.Println("Server exiting")
	return nil
}
