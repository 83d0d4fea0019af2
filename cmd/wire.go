package cmd

import (
	"fmt"
	"log"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/config"
	"github.com/Rib4ko/backendYT/ffmpeg"
	"github.com/Rib4ko/backendYT/resources"
	"github.com/Rib4ko/backendYT/storage"
	"github.com/Rib4ko/backendYT/ytdlp"
)

type backends struct {
	downloader *ytdlp.Downloader
	extractor  *ffmpeg.Extractor
}

// newBackends builds the yt-dlp and ffmpeg adapters and checks both binaries.
func newBackends(cfg *config.Config, logger *log.Logger) (*backends, error) {
	ytArgs, err := ytdlp.ParseExtraArgs(cfg.YtDlpExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid YTDLP_EXTRA_ARGS: %w", err)
	}
	ffArgs, err := ffmpeg.ParseExtraArgs(cfg.FFExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid FF_EXTRA_ARGS: %w", err)
	}

	b := &backends{
		downloader: ytdlp.NewDownloader(
			ytdlp.WithBinary(cfg.YtDlpBin),
			ytdlp.WithCookiesFile(cfg.YtDlpCookies),
			ytdlp.WithMaxFileSize(cfg.MaxInputSize),
			ytdlp.WithExtraArgs(ytArgs),
			ytdlp.WithLogger(logger),
		),
		extractor: ffmpeg.NewExtractor(
			ffmpeg.WithBinary(cfg.FFBin),
			ffmpeg.WithExtraArgs(ffArgs),
			ffmpeg.WithLogger(logger),
		),
	}
	if err := b.downloader.VerifyInstalled(); err != nil {
		return nil, err
	}
	if err := b.extractor.VerifyInstalled(); err != nil {
		return nil, err
	}
	return b, nil
}

func newPipeline(cfg *config.Config, b *backends, store *storage.Store, logger *log.Logger) *clip.Pipeline {
	guard := resources.NewGuard(cfg.ThrottleCPU, cfg.ThrottleFreeMem, cfg.ThrottleFreeDisk, store.Root(), logger)
	return clip.NewPipeline(b.downloader, b.extractor, store, guard, clip.Timeouts{
		Acquire: cfg.YtDlpTimeout,
		Extract: cfg.FFTimeout,
	}, logger)
}
