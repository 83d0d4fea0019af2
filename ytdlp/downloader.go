package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/execrun"
)

const (
	InstallURL = "https://github.com/yt-dlp/yt-dlp#installation"

	// Best video up to 1080p merged with the best audio, else the best single file.
	FormatSelector  = "bestvideo[height<=1080]+bestaudio/best"
	MergeFormat     = "mp4"
	OutputTemplate  = "%(id)s.%(ext)s"
	printTemplate   = "after_move:%(id)s\t%(filepath)s"
	printFieldSplit = "\t"
)

// Downloader resolves a remote video URL to a local file with yt-dlp.
// Playlists are never expanded: only the first item of a collection is fetched.
type Downloader struct {
	bin         string
	runner      execrun.Runner
	cookiesFile string
	maxFileSize int64
	extraArgs   []string
	logger      *log.Logger
}

type Option func(*Downloader)

func WithBinary(bin string) Option {
	return func(d *Downloader) { d.bin = bin }
}

func WithRunner(r execrun.Runner) Option {
	return func(d *Downloader) { d.runner = r }
}

// WithCookiesFile passes a cookies file to yt-dlp when the file exists.
func WithCookiesFile(path string) Option {
	return func(d *Downloader) { d.cookiesFile = path }
}

func WithMaxFileSize(n int64) Option {
	return func(d *Downloader) { d.maxFileSize = n }
}

func WithExtraArgs(args []string) Option {
	return func(d *Downloader) { d.extraArgs = args }
}

func WithLogger(l *log.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		bin:    "yt-dlp",
		runner: execrun.Exec{},
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ParseExtraArgs splits and validates operator-supplied yt-dlp options.
func ParseExtraArgs(command string) ([]string, error) {
	args, err := execrun.SplitArgs(command)
	if err != nil {
		return nil, err
	}
	if err := execrun.RejectShellMeta(args); err != nil {
		return nil, err
	}
	for _, arg := range args {
		switch arg {
		case "-o", "--output", "-P", "--paths", "--exec", "--yes-playlist", "-f", "--format":
			return nil, fmt.Errorf("option %s is managed by the downloader and cannot be overridden", arg)
		}
	}
	return args, nil
}

// Args builds the yt-dlp argument list downloading videoURL into dir.
func (d *Downloader) Args(videoURL, dir string) []string {
	args := []string{
		"--no-playlist",
		"--playlist-items", "1",
		"-f", FormatSelector,
		"--merge-output-format", MergeFormat,
		"-o", filepath.Join(dir, OutputTemplate),
		"--print", printTemplate,
		"--no-progress",
		"--no-simulate",
	}
	if d.maxFileSize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(d.maxFileSize, 10))
	}
	if d.cookiesFile != "" {
		if _, err := os.Stat(d.cookiesFile); err == nil {
			args = append(args, "--cookies", d.cookiesFile)
		}
	}
	args = append(args, d.extraArgs...)
	return append(args, "--", videoURL)
}

// Acquire downloads videoURL into dir and returns the file and its stable identifier.
func (d *Downloader) Acquire(ctx context.Context, videoURL, dir string) (*clip.SourceMedia, error) {
	args := d.Args(videoURL, dir)
	d.logger.Printf("Executing: %s %s", d.bin, strings.Join(args, " "))

	stdout, stderr, err := d.runner.Run(ctx, d.bin, args...)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, clip.AcquisitionError("acquisition timed out", "", err)
		case errors.Is(err, context.Canceled):
			return nil, clip.CanceledError(err)
		}
		return nil, Classify(string(stderr), err)
	}

	id, path, err := parsePrinted(stdout)
	if err != nil {
		return nil, clip.AcquisitionError("no file was downloaded", string(stderr), err)
	}
	if rel, err := filepath.Rel(dir, path); err != nil || strings.HasPrefix(rel, "..") {
		return nil, clip.AcquisitionError("downloaded file outside staging dir", path, errors.New("unexpected output path"))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, clip.AcquisitionError("downloaded file missing", path, err)
	}

	return &clip.SourceMedia{
		Identifier: StableID(id, videoURL),
		LocalPath:  path,
	}, nil
}

// parsePrinted reads the first "id<TAB>path" line yt-dlp printed after moving a file.
func parsePrinted(stdout []byte) (string, string, error) {
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, path, ok := strings.Cut(line, printFieldSplit)
		if !ok || path == "" {
			continue
		}
		return id, path, nil
	}
	return "", "", errors.New("yt-dlp reported no downloaded file")
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// StableID returns a filesystem-safe identifier for the remote resource. Safe
// backend ids are used as-is; anything else maps to a name-based UUID, so the
// same resource always yields the same name.
func StableID(backendID, videoURL string) string {
	if safeID.MatchString(backendID) {
		return backendID
	}
	name := backendID
	if name == "" {
		name = videoURL
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

var (
	blockedMarkers = []string{
		"sign in to confirm",
		"login required",
		"requires authentication",
		"use --cookies",
		"cookies for the authentication",
		"private video",
		"members-only",
		"join this channel",
		"confirm your age",
		"age-restricted",
		"captcha",
		"http error 403",
		"not available in your country",
		"geo restriction",
	}
	unsupportedMarkers = []string{
		"unsupported url",
		"is not a valid url",
	}
)

// Classify maps a failed yt-dlp run to the error taxonomy using its stderr.
func Classify(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return clip.AccessBlocked(stderr)
		}
	}
	for _, m := range unsupportedMarkers {
		if strings.Contains(lower, m) {
			return clip.AcquisitionError("unsupported URL", stderr, err)
		}
	}
	return clip.AcquisitionError("download failed", stderr, err)
}

func (d *Downloader) VerifyInstalled() error {
	return execrun.LookPath(d.bin, InstallURL)
}
