// Package bootstrap wires configuration, session workspace, logger,
// and pipeline, and guarantees workspace teardown on every exit path.
package bootstrap

import (
	"context"

	"go.uber.org/zap"

	"github.com/Henrique-Coder/unifysync/internal/config"
	"github.com/Henrique-Coder/unifysync/internal/logging"
	"github.com/Henrique-Coder/unifysync/internal/pipeline"
	"github.com/Henrique-Coder/unifysync/internal/workspace"
)

// pipelineRunner isolates the merge pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context) error
}

// sessionCloser isolates workspace teardown behind an interface.
type sessionCloser interface {
	Teardown(workspace.Session) error
}

// App holds one run's wired components.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	session  workspace.Session
	closer   sessionCloser
	pipeline pipelineRunner
}

// New creates the session workspace and builds the logger and pipeline
// around it. The session must exist before the logger because the
// logfile mode derives its filename from the session identifier.
func New(cfg config.Config) (*App, error) {
	manager := workspace.NewManager(zap.NewNop(), cfg.CollisionRetries)
	session, err := manager.Create()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Quiet, cfg.GenerateLogfile, session.ID)
	if err != nil {
		_ = manager.Teardown(session)
		return nil, err
	}

	logger.Info("initializing application",
		zap.String("session_id", session.ID),
		zap.String("workspace", session.Dir))

	return &App{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		closer:   workspace.NewManager(logger, cfg.CollisionRetries),
		pipeline: pipeline.New(cfg, logger, session),
	}, nil
}

// Logger exposes the run logger for final status reporting.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run executes the pipeline. Workspace teardown runs on success, merge
// failure, and download failure alike.
func (a *App) Run(ctx context.Context) (err error) {
	defer func() {
		if tErr := a.closer.Teardown(a.session); tErr != nil {
			if err == nil {
				err = tErr
			} else {
				a.logger.Error("workspace teardown failed", zap.Error(tErr))
			}
		}
		_ = a.logger.Sync()
	}()

	err = a.pipeline.Run(ctx)
	return err
}

// NewForTests builds an app with injectable dependencies.
func NewForTests(
	cfg config.Config,
	logger *zap.Logger,
	session workspace.Session,
	closer sessionCloser,
	runner pipelineRunner,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		closer:   closer,
		pipeline: runner,
	}
}
