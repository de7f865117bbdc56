// Package pipeline orchestrates one acquisition-and-merge run: tool
// lookup, extension probing, concurrent staging downloads, the
// readiness wait, and the final stream-copy merge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Henrique-Coder/unifysync/internal/config"
	"github.com/Henrique-Coder/unifysync/internal/domain"
	"github.com/Henrique-Coder/unifysync/internal/fetch"
	"github.com/Henrique-Coder/unifysync/internal/mediatype"
	"github.com/Henrique-Coder/unifysync/internal/merge"
	"github.com/Henrique-Coder/unifysync/internal/output"
	"github.com/Henrique-Coder/unifysync/internal/workspace"
)

// ErrDownloadTimeout means the readiness wait expired before both
// staged files appeared.
var ErrDownloadTimeout = errors.New("pipeline: downloads did not complete before deadline")

// Error is a stage-aware pipeline failure.
type Error struct {
	Stage   domain.Stage
	Message string
	Err     error
}

// Error formats the failure with its pipeline stage.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// extensionResolver probes a URL for its filename extension.
type extensionResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// targetResolver normalizes the requested output path.
type targetResolver interface {
	Resolve(requested, sessionID string) (string, error)
}

// mediaMerger runs the stream-copy mux.
type mediaMerger interface {
	Merge(ctx context.Context, job domain.MergeJob) error
}

// Pipeline runs one complete acquisition-and-merge cycle inside a
// session workspace.
type Pipeline struct {
	cfg     config.Config
	logger  *zap.Logger
	session workspace.Session

	target     targetResolver
	probe      extensionResolver
	fetcher    fetch.Fetcher
	merger     mediaMerger
	locateTool func() (string, error)
	stat       func(string) (os.FileInfo, error)
}

// New builds the production pipeline for a session.
func New(cfg config.Config, logger *zap.Logger, session workspace.Session) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		target:     output.NewResolver(),
		probe:      mediatype.NewResolver(),
		fetcher:    fetch.NewHTTPFetcher(logger, cfg.MaxConnections),
		merger:     merge.NewMerger(logger),
		locateTool: merge.LocateTool,
		stat:       os.Stat,
	}
}

// Run executes the pipeline. The merge tool is located before any
// network work so a missing tool fails fast; the merge step never runs
// until both staged files are confirmed present.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("checking merge tool availability")
	tool, err := p.locateTool()
	if err != nil {
		return &Error{Stage: domain.StagePrepare, Message: "merge tool unavailable", Err: err}
	}
	p.logger.Info("using merge tool", zap.String("tool", tool))

	outputPath, err := p.target.Resolve(p.cfg.OutputPath, p.session.ID)
	if err != nil {
		return &Error{Stage: domain.StagePrepare, Message: "cannot resolve output target", Err: err}
	}

	video := p.stageResource(ctx, domain.RoleVideo, p.cfg.VideoURL)
	audio := p.stageResource(ctx, domain.RoleAudio, p.cfg.AudioURL)

	p.logger.Info("resolved pipeline paths",
		zap.String("video_staged", video.StagedPath),
		zap.String("audio_staged", audio.StagedPath),
		zap.String("output", outputPath))

	fetchDone := p.dispatchFetches(ctx, video, audio)

	if err := p.waitForStaged(ctx, fetchDone, video.StagedPath, audio.StagedPath); err != nil {
		return err
	}

	job := domain.MergeJob{
		Tool:       tool,
		VideoPath:  video.StagedPath,
		AudioPath:  audio.StagedPath,
		OutputPath: outputPath,
	}
	if err := p.merger.Merge(ctx, job); err != nil {
		return &Error{Stage: domain.StageMerge, Message: "stream-copy merge failed", Err: err}
	}

	return nil
}

// stageResource resolves the extension for one resource and derives
// its staged path. Probe failure degrades to the role fallback and is
// logged, never fatal.
func (p *Pipeline) stageResource(ctx context.Context, role domain.Role, url string) domain.MediaResource {
	ext, err := p.probe.Resolve(ctx, url)
	if err != nil {
		ext = role.FallbackExt()
		p.logger.Error("extension probe failed, using fallback",
			zap.String("role", string(role)),
			zap.String("url", url),
			zap.String("fallback", ext),
			zap.Error(err))
	}

	return domain.MediaResource{
		Role:       role,
		SourceURL:  url,
		Ext:        ext,
		StagedPath: filepath.Join(p.session.Dir, role.StagedName(p.session.ID, ext)),
	}
}

// dispatchFetches starts both downloads concurrently and returns a
// channel that yields the combined fetch result once.
func (p *Pipeline) dispatchFetches(ctx context.Context, resources ...domain.MediaResource) <-chan error {
	g, gctx := errgroup.WithContext(ctx)
	for _, res := range resources {
		res := res
		p.logger.Info("downloading content",
			zap.String("role", string(res.Role)),
			zap.String("url", res.SourceURL))
		g.Go(func() error {
			if err := p.fetcher.Fetch(gctx, res.SourceURL, res.StagedPath); err != nil {
				return fmt.Errorf("%s download: %w", res.Role, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	return done
}

// waitForStaged polls for both staged files, logging a countdown each
// round and looping until both exist, a fetch fails, the overall
// timeout expires, or the context is cancelled.
func (p *Pipeline) waitForStaged(ctx context.Context, fetchDone <-chan error, paths ...string) error {
	var deadline time.Time
	if p.cfg.WaitTimeout > 0 {
		deadline = time.Now().Add(p.cfg.WaitTimeout)
	}

	for {
		for round := p.cfg.WaitRounds; round > 0; round-- {
			if p.allExist(paths) {
				p.logger.Info("all staged files present")
				return nil
			}

			p.logger.Info("waiting for staged files", zap.Int("countdown", round))

			select {
			case err := <-fetchDone:
				if err != nil {
					return &Error{Stage: domain.StageDownload, Message: "download failed", Err: err}
				}
				if p.allExist(paths) {
					p.logger.Info("all staged files present")
					return nil
				}
				return &Error{
					Stage:   domain.StageDownload,
					Message: "downloads finished but staged files are missing",
				}
			case <-ctx.Done():
				return &Error{Stage: domain.StageDownload, Message: "wait cancelled", Err: ctx.Err()}
			case <-time.After(p.cfg.WaitInterval):
			}

			if !deadline.IsZero() && time.Now().After(deadline) {
				return &Error{Stage: domain.StageDownload, Message: "readiness wait expired", Err: ErrDownloadTimeout}
			}
		}
	}
}

// allExist reports whether every path is present on disk.
func (p *Pipeline) allExist(paths []string) bool {
	for _, path := range paths {
		if _, err := p.stat(path); err != nil {
			return false
		}
	}
	return true
}

// NewForTests builds a pipeline with injectable dependencies.
func NewForTests(
	cfg config.Config,
	logger *zap.Logger,
	session workspace.Session,
	target targetResolver,
	probe extensionResolver,
	fetcher fetch.Fetcher,
	merger mediaMerger,
	locateTool func() (string, error),
	stat func(string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		target:     target,
		probe:      probe,
		fetcher:    fetcher,
		merger:     merger,
		locateTool: locateTool,
		stat:       stat,
	}
}
