package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/execrun"
)

const InstallURL = "https://ffmpeg.org/download.html"

// Profile is the fixed re-encoding profile. Re-encoding makes the cut land on
// the requested second instead of the nearest keyframe.
type Profile struct {
	VideoCodec   string
	AudioCodec   string
	VideoBitrate string
	AudioBitrate string
	Preset       string
	CRF          int
	Format       string
}

var DefaultProfile = Profile{
	VideoCodec:   "libx264",
	AudioCodec:   "aac",
	VideoBitrate: "3000k",
	AudioBitrate: "192k",
	Preset:       "medium",
	CRF:          18,
	Format:       "mp4",
}

// Extractor trims a local source into a re-encoded clip with ffmpeg.
type Extractor struct {
	bin       string
	runner    execrun.Runner
	profile   Profile
	extraArgs []string
	logger    *log.Logger
}

type Option func(*Extractor)

// WithBinary sets a custom ffmpeg executable path
func WithBinary(bin string) Option {
	return func(e *Extractor) { e.bin = bin }
}

// WithRunner sets a custom command runner (for testing)
func WithRunner(r execrun.Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func WithProfile(p Profile) Option {
	return func(e *Extractor) { e.profile = p }
}

// WithExtraArgs appends already-validated output options, see ParseExtraArgs.
func WithExtraArgs(args []string) Option {
	return func(e *Extractor) { e.extraArgs = args }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		bin:     "ffmpeg",
		runner:  execrun.Exec{},
		profile: DefaultProfile,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Args builds the ffmpeg argument list writing to out.
func (e *Extractor) Args(sourcePath string, start, end int, out string) []string {
	p := e.profile
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", strconv.Itoa(start),
		"-to", strconv.Itoa(end),
		"-i", sourcePath,
		"-c:v", p.VideoCodec,
		"-b:v", p.VideoBitrate,
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
	}
	args = append(args, e.extraArgs...)
	return append(args, "-f", p.Format, out)
}

// Extract writes the [start, end) range of sourcePath to outputPath, replacing
// any existing file. Output goes to a hidden sibling first and is renamed into
// place only once ffmpeg succeeded.
func (e *Extractor) Extract(ctx context.Context, sourcePath string, start, end int, outputPath string) error {
	dir, base := filepath.Split(outputPath)
	tmp, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return clip.ExtractionError("", fmt.Errorf("could not create partial output: %w", err))
	}
	partial := tmp.Name()
	tmp.Close()

	args := e.Args(sourcePath, start, end, partial)
	e.logger.Printf("Executing: %s %s", e.bin, strings.Join(args, " "))

	stdout, stderr, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		os.Remove(partial)
		diag := string(stdout) + string(stderr)
		if errors.Is(err, context.DeadlineExceeded) {
			return clip.ExtractionError("ffmpeg timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return clip.CanceledError(err)
		}
		return clip.ExtractionError(diag, fmt.Errorf("ffmpeg execution failed: %w", err))
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		os.Remove(partial)
		return clip.ExtractionError(string(stderr), errors.New("ffmpeg produced no output"))
	}
	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return clip.ExtractionError("", fmt.Errorf("could not move output into place: %w", err))
	}
	return nil
}

// VerifyInstalled checks that ffmpeg is available
func (e *Extractor) VerifyInstalled() error {
	return execrun.LookPath(e.bin, InstallURL)
}
