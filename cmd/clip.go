package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/storage"
	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"
)

var (
	clipURL       string
	clipStart     int
	clipEnd       int
	clipOutputDir string
)

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Produce a single clip without starting the server",
	Long: `Download a video, cut [start, end) seconds out of it and move the clip into
the output directory.

Example:
  backendyt clip --url "https://www.youtube.com/watch?v=dQw4w9WgXcQ" --start 5 --end 15 --output ./clips`,
	RunE: runClip,
}

func init() {
	rootCmd.AddCommand(clipCmd)
	clipCmd.Flags().StringVar(&clipURL, "url", "", "Video URL (required)")
	clipCmd.Flags().IntVar(&clipStart, "start", 0, "Clip start in seconds (required)")
	clipCmd.Flags().IntVar(&clipEnd, "end", 0, "Clip end in seconds (required)")
	clipCmd.Flags().StringVar(&clipOutputDir, "output", ".", "Directory the clip is written to")
	clipCmd.MarkFlagRequired("url")
	clipCmd.MarkFlagRequired("start")
	clipCmd.MarkFlagRequired("end")
}

func runClip(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	req, err := clip.Validate(clip.RawRequest{URL: clipURL, Start: &clipStart, End: &clipEnd})
	if err != nil {
		return err
	}

	store, release, err := openClipStore(cfg.StorageDir)
	if err != nil {
		return err
	}
	defer release()
	b, err := newBackends(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return RunClipWithDependencies(ctx, newPipeline(cfg, b, store, logger), req, clipOutputDir, cmd.OutOrStdout())
}

// openClipStore opens the working storage for a one-shot run. When no storage
// dir is configured a temp dir is created, and release removes it again.
func openClipStore(dir string) (*storage.Store, func(), error) {
	store, err := storage.New(dir, logger)
	if err != nil {
		return nil, nil, err
	}
	if dir != "" {
		return store, func() {}, nil
	}
	return store, func() {
		if err := os.RemoveAll(store.Root()); err != nil {
			logger.Printf("Warning: could not remove %s: %v", store.Root(), err)
		}
	}, nil
}

// ClipRunner produces one clip. *clip.Pipeline satisfies it.
type ClipRunner interface {
	Run(ctx context.Context, runID string, req clip.Request, observe func(clip.State)) clip.Result
}

// RunClipWithDependencies runs req through runner and moves the artifact into outputDir.
func RunClipWithDependencies(ctx context.Context, runner ClipRunner, req clip.Request, outputDir string, out io.Writer) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	res := runner.Run(ctx, "cli_"+shortuuid.New(), req, func(s clip.State) {
		fmt.Fprintf(out, "  %s...\n", s)
	})
	if res.Failed() {
		return errors.New(res.Message())
	}

	dest := filepath.Join(outputDir, res.Artifact.Filename)
	if err := moveFile(res.Artifact.LocalPath, dest); err != nil {
		return fmt.Errorf("failed to move clip to %s: %w", dest, err)
	}

	fmt.Fprintf(out, "Clip written to %s (%ds)\n", dest, res.WaitSeconds)
	fmt.Fprintln(out, res.Warning)
	return nil
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		os.Remove(dst)
		return err
	}
	if err := outFile.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
