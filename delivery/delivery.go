package delivery

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/storage"
)

// DefaultGrace is how long a served clip stays on disk after the serve call.
const DefaultGrace = 25 * time.Second

// Scheduler defers a file removal. *storage.Scheduler satisfies it.
type Scheduler interface {
	DeleteAfter(path string, d time.Duration) bool
}

// Service hands produced clips to callers and makes sure each one is removed
// once the grace period after its first serve has passed.
type Service struct {
	store     *storage.Store
	scheduler Scheduler
	grace     time.Duration
	logger    *log.Logger
}

func NewService(store *storage.Store, scheduler Scheduler, grace time.Duration, logger *log.Logger) *Service {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Service{store: store, scheduler: scheduler, grace: grace, logger: logger}
}

func (s *Service) Grace() time.Duration { return s.grace }

// Serve opens filename for streaming. The deletion is scheduled before the file
// is opened, so the grace period runs from the call and not from the end of the
// transfer. Unknown or malformed names yield a not-found error and schedule nothing.
// The caller closes the returned file.
func (s *Service) Serve(filename string) (*os.File, fs.FileInfo, error) {
	path, info, err := s.store.Resolve(filename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, storage.ErrInvalidName) {
			s.logger.Printf("Warning: could not stat %s: %v", filename, err)
		}
		return nil, nil, clip.NotFoundError(filename)
	}

	if s.scheduler.DeleteAfter(path, s.grace) {
		s.logger.Printf("Scheduled deletion of %s in %s", filename, s.grace)
	}

	f, err := os.Open(path)
	if err != nil {
		// Lost a race with the deletion or the sweep.
		return nil, nil, clip.NotFoundError(filename)
	}
	return f, info, nil
}
