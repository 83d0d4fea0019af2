package clip

import (
	"context"
	"errors"
	"log"
	"time"
)

// Ext is the container extension of every produced clip.
const Ext = "mp4"

const Warning = "Clip boundaries are accurate with re-encoding."

// State is a step of one pipeline run.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateExtracting State = "extracting"
	StateCleaning   State = "cleaning"
	StateDone       State = "done"
	StateErrored    State = "errored"
)

// SourceMedia is a downloaded source, owned by a single run.
type SourceMedia struct {
	Identifier string
	LocalPath  string
}

// Artifact is a produced clip in storage.
type Artifact struct {
	Filename  string
	LocalPath string
	CreatedAt time.Time
}

// Result is the outcome of a run: either Artifact is set or Err is, never both.
type Result struct {
	Artifact    *Artifact
	WaitSeconds int
	Warning     string
	Err         error
}

func (r Result) Failed() bool { return r.Err != nil }

// Message is what the caller is allowed to see about a failure.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return PublicMessage(r.Err)
}

type Acquirer interface {
	Acquire(ctx context.Context, url, dir string) (*SourceMedia, error)
}

type Extractor interface {
	Extract(ctx context.Context, sourcePath string, start, end int, outputPath string) error
}

// Workspace is the slice of ephemeral storage the pipeline needs.
type Workspace interface {
	StagingDir(runID string) (string, error)
	ReleaseStaging(dir string)
	ArtifactPath(filename string) string
}

// Guard admits or refuses new work based on host capacity.
type Guard interface {
	Check() error
}

type Timeouts struct {
	Acquire time.Duration
	Extract time.Duration
}

// Pipeline runs acquisition then extraction for one request at a time per call.
// Runs share nothing but the storage directory.
type Pipeline struct {
	acquirer  Acquirer
	extractor Extractor
	workspace Workspace
	guard     Guard
	timeouts  Timeouts
	logger    *log.Logger
	now       func() time.Time
}

// NewPipeline wires a pipeline. guard may be nil.
func NewPipeline(a Acquirer, e Extractor, w Workspace, guard Guard, timeouts Timeouts, logger *log.Logger) *Pipeline {
	return &Pipeline{
		acquirer:  a,
		extractor: e,
		workspace: w,
		guard:     guard,
		timeouts:  timeouts,
		logger:    logger,
		now:       time.Now,
	}
}

// ArtifactName derives the clip filename from the source identifier.
func ArtifactName(identifier string) string {
	return identifier + "_clip." + Ext
}

// Run executes one request. observe, if not nil, sees every state change.
// Every failure comes back inside the Result.
func (p *Pipeline) Run(ctx context.Context, runID string, req Request, observe func(State)) Result {
	began := p.now()
	enter := func(s State) {
		p.logger.Printf("[RUN %s] %s", runID, s)
		if observe != nil {
			observe(s)
		}
	}
	enter(StateIdle)

	if p.guard != nil {
		if err := p.guard.Check(); err != nil {
			return p.fail(runID, enter, UnavailableError(err))
		}
	}

	art, err := p.produce(ctx, runID, req, enter)
	if err != nil {
		return p.fail(runID, enter, err)
	}
	waited := p.now().Sub(began)

	enter(StateDone)
	p.logger.Printf("[RUN %s] produced %s in %s", runID, art.Filename, waited.Round(time.Millisecond))
	return Result{
		Artifact:    art,
		WaitSeconds: int(waited / time.Second),
		Warning:     Warning,
	}
}

// produce acquires into a private staging dir and extracts into storage. The
// staging dir, and with it the source, is released however this returns.
func (p *Pipeline) produce(ctx context.Context, runID string, req Request, enter func(State)) (art *Artifact, err error) {
	enter(StateAcquiring)
	dir, err := p.workspace.StagingDir(runID)
	if err != nil {
		return nil, AcquisitionError("could not prepare staging dir", "", err)
	}
	defer func() {
		if err == nil {
			enter(StateCleaning)
		}
		p.workspace.ReleaseStaging(dir)
	}()

	src, err := p.acquire(ctx, req.URL, dir)
	if err != nil {
		return nil, err
	}
	p.logger.Printf("[RUN %s] acquired %s as %s", runID, req.URL, src.Identifier)

	enter(StateExtracting)
	name := ArtifactName(src.Identifier)
	out := p.workspace.ArtifactPath(name)
	if err := p.extract(ctx, src.LocalPath, req.Start, req.End, out); err != nil {
		return nil, err
	}

	return &Artifact{Filename: name, LocalPath: out, CreatedAt: p.now()}, nil
}

func (p *Pipeline) acquire(ctx context.Context, url, dir string) (*SourceMedia, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Acquire)
	defer cancel()

	src, err := p.acquirer.Acquire(ctx, url, dir)
	if err != nil {
		return nil, normalize(err, KindAcquisition)
	}
	if src == nil || src.Identifier == "" || src.LocalPath == "" {
		return nil, AcquisitionError("backend returned no source", "", errors.New("empty source media"))
	}
	return src, nil
}

func (p *Pipeline) extract(ctx context.Context, src string, start, end int, out string) error {
	ctx, cancel := withTimeout(ctx, p.timeouts.Extract)
	defer cancel()

	if err := p.extractor.Extract(ctx, src, start, end, out); err != nil {
		return normalize(err, KindExtraction)
	}
	return nil
}

func (p *Pipeline) fail(runID string, enter func(State), err error) Result {
	enter(StateErrored)
	p.logger.Printf("[RUN %s] ERROR: %v", runID, err)
	var ce *Error
	if errors.As(err, &ce) && ce.Detail != "" {
		p.logger.Printf("[RUN %s] backend output: %s", runID, tail(ce.Detail, 4096))
	}
	return Result{Err: err}
}

// normalize makes sure adapter errors carry a Kind.
func normalize(err error, kind Kind) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return CanceledError(err)
	}
	return &Error{Kind: kind, Message: string(kind) + " failed", Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
