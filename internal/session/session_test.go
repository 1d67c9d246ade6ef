// internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/browser"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func launcherFor(driver schemas.BrowserDriver) browser.Launcher {
	return func(context.Context) (schemas.BrowserDriver, error) { return driver, nil }
}

func newDriver() *mocks.MockBrowserDriver {
	d := new(mocks.MockBrowserDriver)
	d.On("Close", mock.Anything).Return(nil).Once()
	return d
}

func TestAcquireRelease(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Credentials = config.CredentialsConfig{Username: "alice", Password: "pw"}
	driver := newDriver()

	sess, err := Acquire(context.Background(), cfg, launcherFor(driver), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.RunID)
	assert.Same(t, driver, sess.Driver)
	assert.Equal(t, "alice", sess.Credentials.Username)

	require.NoError(t, sess.Release(context.Background()))
	// Idempotent: the driver is closed exactly once.
	require.NoError(t, sess.Release(context.Background()))
	driver.AssertNumberOfCalls(t, "Close", 1)
}

func TestRelease_CanceledContextStillCloses(t *testing.T) {
	var closeErr error = errors.New("close not called")
	driver := new(mocks.MockBrowserDriver)
	driver.On("Close", mock.Anything).Run(func(args mock.Arguments) {
		closeErr = args.Get(0).(context.Context).Err()
	}).Return(nil).Once()

	sess, err := Acquire(context.Background(), config.NewDefaultConfig(), launcherFor(driver), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sess.Release(ctx))
	assert.NoError(t, closeErr, "teardown must not inherit the caller's cancellation")
}

func TestRelease_ReportsCloseError(t *testing.T) {
	driver := new(mocks.MockBrowserDriver)
	driver.On("Close", mock.Anything).Return(errors.New("target crashed")).Once()

	sess, err := Acquire(context.Background(), config.NewDefaultConfig(), launcherFor(driver), zaptest.NewLogger(t))
	require.NoError(t, err)

	err = sess.Release(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, sess.Release(context.Background()))
}

func TestAcquire_LaunchFailure(t *testing.T) {
	failing := func(context.Context) (schemas.BrowserDriver, error) { return nil, errors.New("chrome not found") }

	_, err := Acquire(context.Background(), config.NewDefaultConfig(), failing, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquire)
	assert.Contains(t, err.Error(), "chrome not found")

	_, err = Acquire(context.Background(), nil, launcherFor(newDriver()), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrAcquire)
}

func TestWith(t *testing.T) {
	cfg := config.NewDefaultConfig()

	t.Run("releases after success", func(t *testing.T) {
		driver := newDriver()
		var seen *Context
		err := With(context.Background(), cfg, launcherFor(driver), zaptest.NewLogger(t), func(s *Context) error {
			seen = s
			return nil
		})
		require.NoError(t, err)
		require.NotNil(t, seen)
		driver.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("releases after error and keeps the run error", func(t *testing.T) {
		driver := new(mocks.MockBrowserDriver)
		driver.On("Close", mock.Anything).Return(errors.New("close failed")).Once()
		runErr := errors.New("classifier unavailable")

		err := With(context.Background(), cfg, launcherFor(driver), zaptest.NewLogger(t), func(*Context) error { return runErr })
		assert.ErrorIs(t, err, runErr)
		driver.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("surfaces release error when the run succeeded", func(t *testing.T) {
		driver := new(mocks.MockBrowserDriver)
		driver.On("Close", mock.Anything).Return(errors.New("close failed")).Once()

		err := With(context.Background(), cfg, launcherFor(driver), zaptest.NewLogger(t), func(*Context) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close failed")
	})

	t.Run("releases on panic and re-panics", func(t *testing.T) {
		driver := newDriver()
		assert.PanicsWithValue(t, "boom", func() {
			_ = With(context.Background(), cfg, launcherFor(driver), zaptest.NewLogger(t), func(*Context) error { panic("boom") })
		})
		driver.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("does not run fn when acquisition fails", func(t *testing.T) {
		called := false
		failing := func(context.Context) (schemas.BrowserDriver, error) { return nil, errors.New("no browser") }
		err := With(context.Background(), cfg, failing, zaptest.NewLogger(t), func(*Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrAcquire)
		assert.False(t, called)
	})
}
