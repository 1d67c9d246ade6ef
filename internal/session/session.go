// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/browser"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/observability"
)

// ErrAcquire wraps every failure to bring up the browser session.
var ErrAcquire = errors.New("failed to acquire browser session")

// releaseTimeout bounds browser teardown once the run's own context is gone.
const releaseTimeout = 10 * time.Second

// Context is the per-run holder of the live browser and the run settings.
// It is passed explicitly to whoever needs it and never stored globally.
type Context struct {
	RunID       string
	Driver      schemas.BrowserDriver
	Config      *config.Config
	Credentials config.CredentialsConfig
	Logger      *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
}

// Acquire launches the browser and returns the session holding it.
func Acquire(ctx context.Context, cfg *config.Config, launch browser.Launcher, logger *zap.Logger) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrAcquire)
	}
	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))

	driver, err := launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	log.Debug("Browser session acquired.")
	return &Context{
		RunID:       runID,
		Driver:      driver,
		Config:      cfg,
		Credentials: cfg.Credentials,
		Logger:      log,
	}, nil
}

// ForTarget returns the session logger tagged with the run target.
func (s *Context) ForTarget(target string) *zap.Logger {
	return observability.ForRun(s.Logger, s.RunID, target)
}

// Release closes the browser. Only the first call does any work; later calls
// return the first result. Teardown survives a canceled ctx.
func (s *Context) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := s.Driver.Close(closeCtx); err != nil {
			s.releaseErr = fmt.Errorf("failed to release browser session: %w", err)
			s.Logger.Warn("Browser teardown reported an error.", zap.Error(err))
			return
		}
		s.Logger.Debug("Browser session released.")
	})
	return s.releaseErr
}

// With acquires a session, runs fn and releases the session on every exit
// path. A panic in fn is re-raised after the release.
func With(ctx context.Context, cfg *config.Config, launch browser.Launcher, logger *zap.Logger, fn func(*Context) error) (err error) {
	sess, err := Acquire(ctx, cfg, launch, logger)
	if err != nil {
		return err
	}

	defer func() {
		r := recover()
		relErr := sess.Release(ctx)
		if r != nil {
			panic(r)
		}
		if err == nil {
			err = relErr
		}
	}()

	return fn(sess)
}
