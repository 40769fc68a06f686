package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/alymdu/shortest-plates/internal/classifier"
	"github.com/alymdu/shortest-plates/internal/plates"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotTrace = r.Header.Get("X-Trace")
		_, _ = w.Write([]byte("<p>plate " + r.URL.Query().Get("plate") + " is available</p>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{
		UserAgent: "platechecker-test",
		Timeout:   time.Second,
		Headers:   http.Header{"X-Trace": {"yes"}},
	})
	body, err := f.Fetch(context.Background(), srv.URL+"/check?plate=AB")
	require.NoError(t, err)
	require.Equal(t, "<p>plate AB is available</p>", body)
	require.Equal(t, "platechecker-test", gotUA)
	require.Equal(t, "yes", gotTrace)
}

func TestFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/check?plate=AA")
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchKeepsErrorPageBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("Please try again later."))
	}))
	t.Cleanup(srv.Close)

	body, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Please try again later.", body)
}

func TestFetchEmptyBodyClassifiesAsUnknown(t *testing.T) {
	t.Parallel()

	for name, status := range map[string]int{"ok": http.StatusOK, "no content": http.StatusNoContent} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			t.Cleanup(srv.Close)

			body, err := New(Config{}).Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			require.Empty(t, body)

			res := classifier.Default().Classify(body, err)
			require.Equal(t, plates.StatusUnknown, res.Status)
			require.Empty(t, res.Note)
		})
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), url)
	require.Error(t, err)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchLimiterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("limiter closed")
	f := New(Config{Limiter: limiterFunc(func(context.Context, string) error { return boom })})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/")
	require.ErrorIs(t, err, boom)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}})
	var result visitResult
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, "body", result.body)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, result.err, "boom")
}

type limiterFunc func(ctx context.Context, rawURL string) error

func (f limiterFunc) Wait(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
