package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/job", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>Go Engineer</h1></body></html>"))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body>access denied</body></html>"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPageSuccess(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "job-scraper-bot/2.0"})

	resp, err := f.FetchPage(context.Background(), srv.URL+"/job")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Go Engineer")
	assert.False(t, resp.UsedHeadless)
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetchPageCapturesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{})

	resp, err := f.FetchPage(context.Background(), srv.URL+"/blocked")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "access denied")
}

func TestFetchPageContextCancel(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := f.FetchPage(ctx, srv.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchPageUnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	_, err := f.FetchPage(context.Background(), "http://127.0.0.1:1/job")
	assert.Error(t, err)
}

func TestPerDomainThrottle(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{PerDomainRPS: 5})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.FetchPage(context.Background(), srv.URL+"/job")
		require.NoError(t, err)
	}
	// 3 requests at 5 rps with burst 1 needs at least 400ms.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}
