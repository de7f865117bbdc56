package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Henrique-Coder/unifysync/internal/config"
	"github.com/Henrique-Coder/unifysync/internal/domain"
	"github.com/Henrique-Coder/unifysync/internal/mediatype"
	"github.com/Henrique-Coder/unifysync/internal/merge"
	"github.com/Henrique-Coder/unifysync/internal/workspace"
)

type fakeTarget struct {
	path string
	err  error
}

func (f *fakeTarget) Resolve(requested, sessionID string) (string, error) {
	return f.path, f.err
}

type fakeProbe struct {
	exts map[string]string
}

func (f *fakeProbe) Resolve(ctx context.Context, url string) (string, error) {
	if ext, ok := f.exts[url]; ok {
		return ext, nil
	}
	return "", mediatype.ErrUnresolved
}

type fakeFetcher struct {
	delay time.Duration
	fail  map[string]error
	skip  map[string]bool
	calls atomic.Int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	f.calls.Add(1)
	if err, ok := f.fail[url]; ok {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
	}
	if f.skip[url] {
		return nil
	}
	return os.WriteFile(dest, []byte("data"), 0o644)
}

type fakeMerger struct {
	err  error
	jobs []domain.MergeJob
	// observed records whether both inputs existed when Merge ran.
	observed bool
}

func (f *fakeMerger) Merge(ctx context.Context, job domain.MergeJob) error {
	f.jobs = append(f.jobs, job)
	_, vErr := os.Stat(job.VideoPath)
	_, aErr := os.Stat(job.AudioPath)
	f.observed = vErr == nil && aErr == nil
	return f.err
}

func testConfig() config.Config {
	return config.Config{
		VideoURL:     "http://x/a.mov",
		AudioURL:     "http://x/b.wav",
		WaitInterval: 10 * time.Millisecond,
		WaitRounds:   8,
		WaitTimeout:  2 * time.Second,
	}
}

func testSession(t *testing.T) workspace.Session {
	t.Helper()
	return workspace.Session{ID: "a1B2c3D4", Dir: t.TempDir()}
}

func foundTool() (string, error) { return "/usr/bin/ffmpeg", nil }

func TestRunHappyPathMergesAfterBothStaged(t *testing.T) {
	session := testSession(t)
	outPath := filepath.Join(t.TempDir(), "final.mp4")
	merger := &fakeMerger{}
	fetcher := &fakeFetcher{delay: 30 * time.Millisecond}

	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		session,
		&fakeTarget{path: outPath},
		&fakeProbe{exts: map[string]string{
			"http://x/a.mov": ".mov",
			"http://x/b.wav": ".wav",
		}},
		fetcher,
		merger,
		foundTool,
		os.Stat,
	)

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, merger.jobs, 1)
	job := merger.jobs[0]
	assert.Equal(t, "/usr/bin/ffmpeg", job.Tool)
	assert.Equal(t, filepath.Join(session.Dir, ".video_a1B2c3D4.mov"), job.VideoPath)
	assert.Equal(t, filepath.Join(session.Dir, ".audio_a1B2c3D4.wav"), job.AudioPath)
	assert.Equal(t, outPath, job.OutputPath)
	assert.True(t, merger.observed, "merge must only run once both staged files exist")
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestRunMissingToolFailsBeforeAnyFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		fetcher,
		&fakeMerger{},
		func() (string, error) { return "", merge.ErrToolNotFound },
		os.Stat,
	)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, merge.ErrToolNotFound)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, domain.StagePrepare, pErr.Stage)
	assert.Equal(t, int64(0), fetcher.calls.Load(), "no fetch may start without the merge tool")
}

func TestRunProbeFailureDegradesToFallbacks(t *testing.T) {
	session := testSession(t)
	merger := &fakeMerger{}

	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		session,
		&fakeTarget{path: filepath.Join(t.TempDir(), "out.mp4")},
		&fakeProbe{}, // every probe unresolved
		&fakeFetcher{},
		merger,
		foundTool,
		os.Stat,
	)

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, merger.jobs, 1)
	assert.True(t, strings.HasSuffix(merger.jobs[0].VideoPath, ".video_a1B2c3D4.mp4"))
	assert.True(t, strings.HasSuffix(merger.jobs[0].AudioPath, ".audio_a1B2c3D4.mp3"))
}

func TestRunFetchErrorAbortsWait(t *testing.T) {
	merger := &fakeMerger{}
	fetcher := &fakeFetcher{
		delay: 5 * time.Millisecond,
		fail:  map[string]error{"http://x/b.wav": errors.New("connection refused")},
	}

	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		fetcher,
		merger,
		foundTool,
		os.Stat,
	)

	err := p.Run(context.Background())
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, domain.StageDownload, pErr.Stage)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, merger.jobs, "merge must not run after a download failure")
}

func TestRunTimesOutWhenFilesNeverAppear(t *testing.T) {
	cfg := testConfig()
	cfg.WaitInterval = 5 * time.Millisecond
	cfg.WaitRounds = 2
	cfg.WaitTimeout = 40 * time.Millisecond

	// A fetcher that hangs until cancelled.
	fetcher := &fakeFetcher{delay: time.Hour}

	p := NewForTests(
		cfg,
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		fetcher,
		&fakeMerger{},
		foundTool,
		os.Stat,
	)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrDownloadTimeout)
}

func TestRunFetchSuccessWithoutFilesIsAnError(t *testing.T) {
	cfg := testConfig()
	fetcher := &fakeFetcher{
		delay: time.Millisecond,
		skip: map[string]bool{
			"http://x/a.mov": true,
			"http://x/b.wav": true,
		},
	}

	p := NewForTests(
		cfg,
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		fetcher,
		&fakeMerger{},
		foundTool,
		os.Stat,
	)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged files are missing")
}

func TestRunMergeFailureSurfacesStage(t *testing.T) {
	merger := &fakeMerger{err: errors.New("exit status 1")}

	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		&fakeFetcher{},
		merger,
		foundTool,
		os.Stat,
	)

	err := p.Run(context.Background())
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, domain.StageMerge, pErr.Stage)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{delay: time.Hour}
	p := NewForTests(
		testConfig(),
		zaptest.NewLogger(t),
		testSession(t),
		&fakeTarget{path: "/tmp/out.mp4"},
		&fakeProbe{},
		fetcher,
		&fakeMerger{},
		foundTool,
		os.Stat,
	)

	err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
