package storage

import (
	"io/fs"
	"log"
	"os"
	"sync"
	"time"
)

// Scheduler runs delayed, fire-and-forget deletions. At most one deletion is
// pending per file: the first request wins and later ones are no-ops until it
// fires. A deletion only ever removes the file it was scheduled for; if the path
// has since been replaced by a new file, the new file is left alone.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingDelete
	remove  func(path string) error
	logger  *log.Logger
}

type pendingDelete struct {
	timer *time.Timer
	info  fs.FileInfo // nil if the file could not be stat'ed when scheduled
}

func NewScheduler(remove func(path string) error, logger *log.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*pendingDelete),
		remove:  remove,
		logger:  logger,
	}
}

// replaced reports whether cur is a different file than the one scheduled.
func replaced(scheduled, cur fs.FileInfo) bool {
	return cur != nil && (scheduled == nil || !os.SameFile(scheduled, cur))
}

func stat(path string) fs.FileInfo {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return info
}

// DeleteAfter schedules removal of path after d. It reports whether a new
// deletion was scheduled.
func (s *Scheduler) DeleteAfter(path string, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := stat(path)
	if p, ok := s.pending[path]; ok {
		if !replaced(p.info, cur) {
			return false
		}
		// The scheduled file was overwritten; the new one gets its own grace period.
		p.timer.Stop()
	}
	p := &pendingDelete{info: cur}
	p.timer = time.AfterFunc(d, func() { s.fire(path, p) })
	s.pending[path] = p
	return true
}

func (s *Scheduler) fire(path string, p *pendingDelete) {
	s.mu.Lock()
	if s.pending[path] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, path)
	s.mu.Unlock()

	if replaced(p.info, stat(path)) {
		s.logger.Printf("Skipped deletion of %s: replaced since it was served", path)
		return
	}
	if err := s.remove(path); err != nil {
		s.logger.Printf("Warning: could not delete served file %s: %v", path, err)
		return
	}
	s.logger.Printf("Deleted served file: %s", path)
}

// Pending reports whether a deletion is scheduled for path.
func (s *Scheduler) Pending(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[path]
	return ok
}

// Len is the number of pending deletions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending deletion and returns how many were canceled.
// Files left behind are picked up by the storage sweep.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for path, p := range s.pending {
		if p.timer.Stop() {
			n++
		}
		delete(s.pending, path)
	}
	return n
}
