package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/internal/flow"
	"github.com/xkilldash9x/waypoint/internal/mocks"
)

func TestObserveResult(t *testing.T) {
	success := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(RunsTotal.WithLabelValues("failed"))
	missing := testutil.ToFloat64(RunErrorsTotal.WithLabelValues("MissingCredentials"))
	other := testutil.ToFloat64(RunErrorsTotal.WithLabelValues("other"))

	ObserveResult(&flow.Result{Status: flow.StatusSuccess})
	ObserveResult(&flow.Result{Status: flow.StatusFailed, State: flow.RunState{
		LastError: flow.KindMissingCredentials.Describe("no password"),
	}})
	ObserveResult(&flow.Result{Status: flow.StatusFailed, State: flow.RunState{LastError: "context deadline exceeded"}})
	ObserveResult(nil)

	assert.Equal(t, success+1, testutil.ToFloat64(RunsTotal.WithLabelValues("success")))
	assert.Equal(t, failed+2, testutil.ToFloat64(RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, missing+1, testutil.ToFloat64(RunErrorsTotal.WithLabelValues("MissingCredentials")))
	assert.Equal(t, other+1, testutil.ToFloat64(RunErrorsTotal.WithLabelValues("other")))
}

func TestInstrument(t *testing.T) {
	m, err := flow.NewMachine(flow.Deps{
		Driver:     new(mocks.MockBrowserDriver),
		Classifier: new(mocks.MockClassifier),
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	Instrument(m)

	before := testutil.ToFloat64(StepErrorsTotal.WithLabelValues("DiscoverURL"))
	// No URL and no search provider: discovery aborts on the first real step.
	_, err = m.Run(context.Background(), flow.Input{TargetName: "Acme"})
	require.ErrorIs(t, err, flow.ErrDiscovery)

	assert.Equal(t, before+1, testutil.ToFloat64(StepErrorsTotal.WithLabelValues("DiscoverURL")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(TransitionsTotal.WithLabelValues("Start", "DiscoverURL")), 1.0)
}

func TestServer(t *testing.T) {
	s := NewServer("127.0.0.1:0", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	RunsTotal.WithLabelValues("searching").Add(0)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "waypoint_runs_total")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	err = <-done
	assert.False(t, errors.Is(err, http.ErrServerClosed))
	assert.NoError(t, err)
}
