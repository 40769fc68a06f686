// Package collyfetcher implements plates.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// DefaultTimeout bounds a single lookup when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Limiter paces outgoing requests. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
	Limiter   Limiter
}

// Fetcher retrieves lookup pages with a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitResult struct {
	body string
	err  error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Error pages still carry the phrases the classifier looks for.
	c.ParseHTTPErrorResponse = true
	// Every run revisits the same 676 URLs.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch performs a single GET of rawURL and returns the body as text. An empty
// body is returned as "" with no error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return "", fmt.Errorf("colly fetch: %w", err)
		}
	}

	collector, result := f.buildCollector(ctx)
	done := make(chan visitResult, 1)
	go func() {
		err := collector.Visit(rawURL)
		if err == nil {
			err = result.err
		}
		done <- visitResult{body: result.body, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("colly fetch canceled: %w", err)
		}
		if res.err != nil {
			return "", fmt.Errorf("colly visit failed: %w", res.err)
		}
		return res.body, nil
	}
}

func (f *Fetcher) buildCollector(ctx context.Context) (*colly.Collector, *visitResult) {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}

	result := &visitResult{}
	f.configureCollectorHooks(collector, result)
	return collector, result
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.body = string(r.Body)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		result.err = err
	})
}

// newHTTPTransport is sized for one target host probed sequentially.
func newHTTPTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
	}
}
