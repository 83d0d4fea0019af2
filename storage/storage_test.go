package storage

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), discardLogger())
	require.NoError(t, err)
	return s
}

func TestStore_Resolve(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.ArtifactPath("abc_clip.mp4"), []byte("data"), 0644))
	require.NoError(t, os.WriteFile(s.ArtifactPath(".abc_clip.mp4.run.part"), []byte("data"), 0644))

	t.Run("existing artifact", func(t *testing.T) {
		path, info, err := s.Resolve("abc_clip.mp4")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(s.Root(), "abc_clip.mp4"), path)
		assert.Equal(t, int64(4), info.Size())
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, _, err := s.Resolve("nope_clip.mp4")
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("path traversal", func(t *testing.T) {
		_, _, err := s.Resolve("../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("hidden partial output", func(t *testing.T) {
		_, _, err := s.Resolve(".abc_clip.mp4.run.part")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("staging dir", func(t *testing.T) {
		_, _, err := s.Resolve(".staging")
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestStore_StagingLifecycle(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.StagingDir("run1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.mp4"), []byte("src"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.f137.mp4.part"), []byte("partial"), 0644))

	s.ReleaseStaging(dir)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = s.StagingDir("../escape")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestStore_RemoveMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Remove(s.ArtifactPath("gone.mp4")))
}

func TestStore_Sweep(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	oldArtifact := s.ArtifactPath("old_clip.mp4")
	newArtifact := s.ArtifactPath("new_clip.mp4")
	require.NoError(t, os.WriteFile(oldArtifact, nil, 0644))
	require.NoError(t, os.WriteFile(newArtifact, nil, 0644))
	require.NoError(t, os.Chtimes(oldArtifact, old, old))

	staleRun, err := s.StagingDir("stale")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(staleRun, old, old))
	liveRun, err := s.StagingDir("live")
	require.NoError(t, err)

	removed := s.Sweep(time.Hour, now)

	assert.ElementsMatch(t, []string{oldArtifact, staleRun}, removed)
	assert.FileExists(t, newArtifact)
	assert.DirExists(t, liveRun)
	assert.DirExists(t, filepath.Join(s.Root(), stagingDirName))
}

func TestScheduler_DeletesOnceAfterDelay(t *testing.T) {
	s := newTestStore(t)
	path := s.ArtifactPath("abc_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0644))

	var calls atomic.Int32
	sched := NewScheduler(func(p string) error {
		calls.Add(1)
		return s.Remove(p)
	}, discardLogger())

	assert.True(t, sched.DeleteAfter(path, 50*time.Millisecond))
	assert.False(t, sched.DeleteAfter(path, 50*time.Millisecond), "second schedule must not stack")
	assert.True(t, sched.Pending(path))

	time.Sleep(20 * time.Millisecond)
	assert.FileExists(t, path, "file removed before the grace period")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, sched.Pending(path))
	assert.Equal(t, 0, sched.Len())
}

func TestScheduler_Stop(t *testing.T) {
	var calls atomic.Int32
	sched := NewScheduler(func(string) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	sched.DeleteAfter("/tmp/a", time.Hour)
	sched.DeleteAfter("/tmp/b", time.Hour)

	assert.Equal(t, 2, sched.Stop())
	assert.Equal(t, 0, sched.Len())
	assert.Equal(t, int32(0), calls.Load())
}

// replaceFile mimics the extractor: write a sibling, then rename it over path.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".new"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestScheduler_KeepsFileReplacedDuringGrace(t *testing.T) {
	s := newTestStore(t)
	path := s.ArtifactPath("abc_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("first run"), 0644))

	var calls atomic.Int32
	sched := NewScheduler(func(p string) error {
		calls.Add(1)
		return s.Remove(p)
	}, discardLogger())

	require.True(t, sched.DeleteAfter(path, 40*time.Millisecond))
	replaceFile(t, path, "second run")

	require.Eventually(t, func() bool { return !sched.Pending(path) }, time.Second, 5*time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err, "a clip written after the serve must survive the old timer")
	assert.Equal(t, "second run", string(data))
	assert.Equal(t, int32(0), calls.Load())
}

func TestScheduler_ReschedulesReplacedFile(t *testing.T) {
	s := newTestStore(t)
	path := s.ArtifactPath("abc_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("first run"), 0644))

	sched := NewScheduler(s.Remove, discardLogger())
	t.Cleanup(func() { sched.Stop() })

	require.True(t, sched.DeleteAfter(path, time.Hour))
	replaceFile(t, path, "second run")

	assert.True(t, sched.DeleteAfter(path, 40*time.Millisecond), "the new file gets its own grace period")
	assert.Equal(t, 1, sched.Len())
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)
}
