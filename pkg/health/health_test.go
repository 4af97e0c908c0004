package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func probe(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func runTimes(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, pass)
	h.AddLivenessCheck("gc", time.Second, pass)

	rec := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLiveEndpoint_FailureThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, fail("connection refused"))
	c := h.snapshot(Liveness)[0]

	runTimes(c, 2)
	assert.Equal(t, http.StatusOK, probe(t, h.LiveEndpoint).Code, "two failures stay below the threshold")

	runTimes(c, 1)
	rec := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"connection refused"}}`, rec.Body.String())
}

func TestWithThresholds(t *testing.T) {
	h := New()
	h.Add(Readiness, "redis", time.Second, fail("down"), WithThresholds(1, 2))
	h.SetReady(true)
	c := h.snapshot(Readiness)[0]

	runTimes(c, 1)
	assert.False(t, h.IsReady())

	c.fn = pass
	runTimes(c, 1)
	assert.False(t, h.IsReady(), "one pass is below the success threshold")
	runTimes(c, 1)
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.AddReadinessCheck("redis", time.Second, fail("i/o timeout"))

	rec := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, rec.Body.String())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, probe(t, h.ReadyEndpoint).Code)

	runTimes(h.snapshot(Readiness)[1], 3)
	rec = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"redis":"i/o timeout"}}`, rec.Body.String())

	h.SetReady(false)
	rec = probe(t, h.ReadyEndpoint)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready","redis":"i/o timeout"}}`, rec.Body.String())
}

func TestReadyEndpoint_NoChecks(t *testing.T) {
	h := New()
	h.SetReady(true)
	assert.Equal(t, http.StatusOK, probe(t, h.ReadyEndpoint).Code)
	assert.Equal(t, http.StatusOK, probe(t, h.LiveEndpoint).Code)
}

func TestCheck_LastError(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, fail("timeout"))
	c := h.snapshot(Liveness)[0]

	assert.NoError(t, c.err())
	runTimes(c, 1)
	assert.EqualError(t, c.err(), "timeout")
}

func TestStartStop(t *testing.T) {
	h := New()
	var (
		mu    sync.Mutex
		calls int
	)
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, fail("err"))
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				probe(t, h.LiveEndpoint)
				probe(t, h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	assert.NoError(t, PingCheck("postgres", pinger{})(ctx))
	assert.EqualError(t, PingCheck("postgres", pinger{err: errors.New("refused")})(ctx), "postgres ping: refused")
}
