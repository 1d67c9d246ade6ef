// internal/llmclient/retry.go
package llmclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// isTransientStatus reports whether an HTTP status is worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isTransientNetErr covers connection resets and dial timeouts.
func isTransientNetErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// newBackOff builds the exponential schedule shared by every provider.
func newBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	if maxElapsed > 0 {
		b.MaxElapsedTime = maxElapsed
	}
	return b
}

// generateWithRetry runs call until it succeeds, fails permanently, or the
// schedule runs out. transient decides which errors are retried.
func generateWithRetry(ctx context.Context, logger *zap.Logger, maxElapsed time.Duration, transient func(error) bool, call func(context.Context) (string, error)) (string, error) {
	var out string
	operation := func() error {
		text, err := call(ctx)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil || !transient(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("Transient LLM error, retrying.", zap.Error(err))
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(newBackOff(maxElapsed), ctx)); err != nil {
		return "", err
	}
	return out, nil
}
